package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/anjiri1684/affiliate_ledger/metrics"
	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/anjiri1684/affiliate_ledger/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MaturationItem struct {
	CommissionID uuid.UUID       `json:"commission_id"`
	AffiliateID  uuid.UUID       `json:"affiliate_id"`
	OrderID      uuid.UUID       `json:"order_id"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedAt    time.Time       `json:"created_at"`
}

type MaturationReport struct {
	DryRun bool             `json:"dry_run"`
	Cutoff time.Time        `json:"cutoff"`
	Count  int              `json:"count"`
	Total  decimal.Decimal  `json:"total"`
	Items  []MaturationItem `json:"items"`
}

// MaturationJob releases pending commissions once their holding period has
// passed, and voids commissions whose order was cancelled or refunded.
type MaturationJob struct {
	db          *gorm.DB
	locker      *services.AffiliateLocker
	commissions *services.CommissionService
	events      services.EventPublisher
	clock       services.Clock
}

func NewMaturationJob(db *gorm.DB, locker *services.AffiliateLocker, commissions *services.CommissionService, events services.EventPublisher, clock services.Clock) *MaturationJob {
	if clock == nil {
		clock = services.SystemClock
	}
	return &MaturationJob{db: db, locker: locker, commissions: commissions, events: events, clock: clock}
}

// eligible selects pending commissions created at or before cutoff whose
// order is still alive.
func eligible(tx *gorm.DB, cutoff time.Time) *gorm.DB {
	return tx.Model(&models.Commission{}).
		Where("status = ? AND created_at <= ?", models.CommissionStatusPending, cutoff).
		Where("order_id NOT IN (?)", tx.Model(&models.Order{}).Select("id").Where("status IN ?", models.TerminatedOrderStatuses))
}

// MatureDue moves every eligible commission to available. Each affiliate is
// handled under its own lock, and the update only touches rows that are
// still pending, so overlapping runs cannot mature a commission twice.
func (j *MaturationJob) MatureDue(ctx context.Context, holdingDays int, dryRun bool) (*MaturationReport, error) {
	now := j.clock()
	report := &MaturationReport{
		DryRun: dryRun,
		Cutoff: now.Add(-time.Duration(holdingDays) * 24 * time.Hour),
		Items:  []MaturationItem{},
	}

	var candidates []models.Commission
	if err := eligible(j.db.WithContext(ctx), report.Cutoff).Order("created_at ASC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to select due commissions: %w", err)
	}

	if dryRun {
		for _, c := range candidates {
			report.add(c)
		}
		log.Printf("Dry run: %d commission(s) totalling %s would mature.", report.Count, report.Total)
		return report, nil
	}

	byAffiliate := map[uuid.UUID]bool{}
	var affiliates []uuid.UUID
	for _, c := range candidates {
		if !byAffiliate[c.AffiliateID] {
			byAffiliate[c.AffiliateID] = true
			affiliates = append(affiliates, c.AffiliateID)
		}
	}

	for _, affiliateID := range affiliates {
		matured, err := j.matureAffiliate(ctx, affiliateID, report.Cutoff, now)
		if err != nil {
			log.Printf("🔥 Failed to mature commissions for affiliate %s: %v", affiliateID, err)
			continue
		}
		if len(matured) == 0 {
			continue
		}

		total := decimal.Zero
		for _, c := range matured {
			report.add(c)
			total = total.Add(c.Amount)
		}
		metrics.CommissionsMatured.Add(float64(len(matured)))
		if j.events != nil {
			if err := j.events.Publish(ctx, services.Event{
				Type:        services.EventCommissionMatured,
				AffiliateID: affiliateID,
				Amount:      total,
				Reference:   fmt.Sprintf("%d commission(s)", len(matured)),
				OccurredAt:  now,
			}); err != nil {
				log.Printf("🔥 Failed to publish maturation for affiliate %s: %v", affiliateID, err)
			}
		}
	}

	log.Printf("✅ Matured %d commission(s) totalling %s.", report.Count, report.Total)
	return report, nil
}

func (j *MaturationJob) matureAffiliate(ctx context.Context, affiliateID uuid.UUID, cutoff, now time.Time) ([]models.Commission, error) {
	var matured []models.Commission
	err := j.locker.WithAffiliate(ctx, affiliateID, func(tx *gorm.DB, _ *models.Affiliate) error {
		var due []models.Commission
		if err := eligible(tx, cutoff).Where("affiliate_id = ?", affiliateID).Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(due))
		for i, c := range due {
			ids[i] = c.ID
		}
		result := tx.Model(&models.Commission{}).
			Where("id IN ? AND status = ?", ids, models.CommissionStatusPending).
			Updates(map[string]interface{}{
				"status":     models.CommissionStatusAvailable,
				"matured_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if int(result.RowsAffected) != len(due) {
			return fmt.Errorf("expected to mature %d commission(s), updated %d", len(due), result.RowsAffected)
		}
		matured = due
		return nil
	})
	return matured, err
}

func (r *MaturationReport) add(c models.Commission) {
	r.Items = append(r.Items, MaturationItem{
		CommissionID: c.ID,
		AffiliateID:  c.AffiliateID,
		OrderID:      c.OrderID,
		Amount:       c.Amount,
		CreatedAt:    c.CreatedAt,
	})
	r.Count++
	r.Total = r.Total.Add(c.Amount)
}

type ReconcileReport struct {
	Voided int             `json:"voided"`
	Total  decimal.Decimal `json:"total"`
}

// ReconcileCancelled voids pending and available commissions whose order
// ended up cancelled or refunded.
func (j *MaturationJob) ReconcileCancelled(ctx context.Context) (*ReconcileReport, error) {
	type row struct {
		CommissionID uuid.UUID
		OrderStatus  string
	}
	var rows []row
	err := j.db.WithContext(ctx).Table("commissions").
		Select("commissions.id AS commission_id, orders.status AS order_status").
		Joins("JOIN orders ON orders.id = commissions.order_id").
		Where("commissions.status IN ?", []string{models.CommissionStatusPending, models.CommissionStatusAvailable}).
		Where("orders.status IN ?", models.TerminatedOrderStatuses).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find commissions of terminated orders: %w", err)
	}

	report := &ReconcileReport{}
	for _, r := range rows {
		c, voided, err := j.commissions.TryVoid(ctx, r.CommissionID, "order "+r.OrderStatus)
		if err != nil {
			log.Printf("🔥 Failed to void commission %s: %v", r.CommissionID, err)
			continue
		}
		if voided {
			report.Voided++
			report.Total = report.Total.Add(c.Amount)
		}
	}

	if report.Voided > 0 {
		log.Printf("✅ Voided %d commission(s) of cancelled or refunded orders.", report.Voided)
	}
	return report, nil
}
