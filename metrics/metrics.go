package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AffiliateLockDuration tracks how long a ledger transaction held the affiliate lock
	AffiliateLockDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ledger_affiliate_lock_duration_seconds",
			Help: "Duration of transactions holding an affiliate row lock",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.5,   // 500ms
				1.0,   // 1s
				5.0,   // 5s
			},
		},
		[]string{"status"}, // success, failure or transient
	)

	LockRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_lock_retries_total",
		Help: "Number of affiliate lock transactions retried after contention",
	})

	CommissionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_commissions_created_total",
		Help: "Number of commissions written to the ledger",
	})

	CommissionsMatured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_commissions_matured_total",
		Help: "Number of commissions moved from pending to available",
	})

	CommissionsVoided = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_commissions_voided_total",
		Help: "Number of commissions voided",
	})

	PayoutRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_payout_requests_total",
			Help: "Payout requests by outcome",
		},
		[]string{"outcome"},
	)

	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_event_publish_failures_total",
			Help: "Domain events a sink failed to deliver",
		},
		[]string{"sink"},
	)
)

func RecordLockDuration(status string, duration float64) {
	AffiliateLockDuration.WithLabelValues(status).Observe(duration)
}

func RecordPayoutRequest(outcome string) {
	PayoutRequests.WithLabelValues(outcome).Inc()
}
