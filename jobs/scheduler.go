package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	config "github.com/anjiri1684/affiliate_ledger/configs"
	"github.com/robfig/cron/v3"
)

const jobTimeout = 30 * time.Minute

// NewScheduler registers the ledger's nightly jobs. Reconciliation runs
// before maturation so a cancelled order's commission is voided rather than
// released.
func NewScheduler(cfg config.JobsConfig, holdingDays int, maturation *MaturationJob, stats *DailyStatsJob) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	entries := []struct {
		name     string
		schedule string
		run      func(ctx context.Context) error
	}{
		{"reconcile cancelled orders", cfg.ReconcileSchedule, func(ctx context.Context) error {
			_, err := maturation.ReconcileCancelled(ctx)
			return err
		}},
		{"mature commissions", cfg.MaturationSchedule, func(ctx context.Context) error {
			_, err := maturation.MatureDue(ctx, holdingDays, false)
			return err
		}},
		{"aggregate daily stats", cfg.StatsSchedule, func(ctx context.Context) error {
			_, err := stats.Run(ctx)
			return err
		}},
	}

	for _, e := range entries {
		e := e
		if _, err := c.AddFunc(e.schedule, func() {
			log.Printf("Running job: %s...", e.name)
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if err := e.run(ctx); err != nil {
				log.Printf("🔥 Job %s failed: %v", e.name, err)
			}
		}); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", e.schedule, e.name, err)
		}
	}
	return c, nil
}
