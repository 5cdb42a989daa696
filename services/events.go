package services

import (
	"context"
	"log"
	"time"

	"github.com/anjiri1684/affiliate_ledger/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventReferralAttributed = "referral.attributed"
	EventCommissionCreated  = "commission.created"
	EventCommissionMatured  = "commission.matured"
	EventCommissionVoided   = "commission.voided"
	EventPayoutRequested    = "payout.requested"
	EventPayoutProcessing   = "payout.processing"
	EventPayoutSettled      = "payout.settled"
	EventPayoutRejected     = "payout.rejected"
	EventPayoutFailed       = "payout.failed"
	EventAffiliateApproved  = "affiliate.approved"
	EventAffiliateRejected  = "affiliate.rejected"
	EventAffiliateSuspended = "affiliate.suspended"
	EventBankVerified       = "bank_account.verified"
	EventBankRejected       = "bank_account.rejected"
)

// Event is emitted after the transaction that caused it has committed.
type Event struct {
	Type         string          `json:"type"`
	AffiliateID  uuid.UUID       `json:"affiliate_id"`
	UserID       uuid.UUID       `json:"user_id,omitempty"`
	CommissionID *uuid.UUID      `json:"commission_id,omitempty"`
	PayoutID     *uuid.UUID      `json:"payout_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Reference    string          `json:"reference,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	log.Printf("📣 %s affiliate=%s amount=%s ref=%s", e.Type, e.AffiliateID, e.Amount.String(), e.Reference)
	return nil
}

type namedSink struct {
	name string
	sink EventPublisher
}

// Dispatcher fans events out to every registered sink. Sink failures are
// logged and counted, never returned.
type Dispatcher struct {
	sinks []namedSink
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) Register(name string, sink EventPublisher) {
	d.sinks = append(d.sinks, namedSink{name: name, sink: sink})
}

func (d *Dispatcher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	for _, s := range d.sinks {
		if err := s.sink.Publish(ctx, e); err != nil {
			metrics.EventPublishFailures.WithLabelValues(s.name).Inc()
			log.Printf("🔥 Failed to publish %s to %s: %v", e.Type, s.name, err)
		}
	}
	return nil
}

// Async hands each event to sink on its own goroutine. Used for sinks that
// talk to slow third parties.
func Async(name string, sink EventPublisher, timeout time.Duration) EventPublisher {
	return asyncPublisher{name: name, sink: sink, timeout: timeout}
}

type asyncPublisher struct {
	name    string
	sink    EventPublisher
	timeout time.Duration
}

func (a asyncPublisher) Publish(_ context.Context, e Event) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.sink.Publish(ctx, e); err != nil {
			metrics.EventPublishFailures.WithLabelValues(a.name).Inc()
			log.Printf("🔥 Failed to publish %s to %s: %v", e.Type, a.name, err)
		}
	}()
	return nil
}

func publish(ctx context.Context, p EventPublisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Printf("🔥 Failed to publish %s: %v", e.Type, err)
	}
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
