package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	config "github.com/anjiri1684/affiliate_ledger/configs"
	"github.com/anjiri1684/affiliate_ledger/metrics"
	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CommissionService struct {
	db        *gorm.DB
	locker    *AffiliateLocker
	referrals *ReferralService
	policy    config.LedgerPolicy
	events    EventPublisher
	clock     Clock
}

func NewCommissionService(db *gorm.DB, locker *AffiliateLocker, referrals *ReferralService, policy config.LedgerPolicy, events EventPublisher, clock Clock) *CommissionService {
	if clock == nil {
		clock = SystemClock
	}
	return &CommissionService{db: db, locker: locker, referrals: referrals, policy: policy, events: events, clock: clock}
}

// BalanceSummary is the affiliate's money broken down by commission state.
// Withdrawable is what a payout request may draw on right now.
type BalanceSummary struct {
	Pending      decimal.Decimal `json:"pending"`
	Available    decimal.Decimal `json:"available"`
	InFlight     decimal.Decimal `json:"in_flight"`
	Withdrawable decimal.Decimal `json:"withdrawable"`
	Paid         decimal.Decimal `json:"paid"`
	Total        decimal.Decimal `json:"total"`
}

// CommissionRate picks the rate for an order: the affiliate's custom rate,
// then the product rate, then the policy default.
func CommissionRate(affiliate *models.Affiliate, product *models.Product, fallback decimal.Decimal) decimal.Decimal {
	if affiliate != nil && affiliate.CustomCommissionRate.Valid {
		return affiliate.CustomCommissionRate.Decimal
	}
	if product != nil && product.CommissionRate.Valid {
		return product.CommissionRate.Decimal
	}
	return fallback
}

// CalculateCommission returns orderAmount * rate / 100 rounded half away from
// zero to whole currency units, never below zero.
func CalculateCommission(orderAmount, rate decimal.Decimal) decimal.Decimal {
	amount := orderAmount.Mul(rate).Div(hundred).Round(0)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// CreateCommission writes the pending commission for a referral of a paid
// order. A second call for the same referral returns the commission written
// by the first.
func (s *CommissionService) CreateCommission(ctx context.Context, order *models.Order, referral *models.Referral) (*models.Commission, error) {
	if !order.IsPaid() {
		return nil, fmt.Errorf("%w: order %s is %s and has not been paid", ErrInvalidOrderState, order.OrderNumber, order.Status)
	}

	var commission models.Commission
	created := false

	err := s.locker.WithAffiliate(ctx, referral.AffiliateID, func(tx *gorm.DB, affiliate *models.Affiliate) error {
		err := tx.Where("referral_id = ?", referral.ID).First(&commission).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var product models.Product
		var productPtr *models.Product
		if err := tx.First(&product, "id = ?", order.ProductID).Error; err == nil {
			productPtr = &product
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		rate := CommissionRate(affiliate, productPtr, s.policy.DefaultCommissionRate)
		commission = models.Commission{
			AffiliateID:    affiliate.ID,
			ReferralID:     referral.ID,
			OrderID:        order.ID,
			OrderAmount:    order.FinalAmount,
			CommissionRate: rate,
			Amount:         CalculateCommission(order.FinalAmount, rate),
			PaidAmount:     decimal.Zero,
			Status:         models.CommissionStatusPending,
		}
		if err := tx.Omit(clause.Associations).Create(&commission).Error; err != nil {
			return fmt.Errorf("failed to create commission: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		metrics.CommissionsCreated.Inc()
		log.Printf("✅ Commission %s created for order %s: %s at %s%%", commission.ID, order.OrderNumber, commission.Amount, commission.CommissionRate)
		publish(ctx, s.events, Event{
			Type:         EventCommissionCreated,
			AffiliateID:  commission.AffiliateID,
			CommissionID: uuidPtr(commission.ID),
			Amount:       commission.Amount,
			Reference:    order.OrderNumber,
			OccurredAt:   s.clock(),
		})
	}
	return &commission, nil
}

// CreateCommissionForOrder creates the commission for an already attributed
// order. Orders without a referral yield no commission.
func (s *CommissionService) CreateCommissionForOrder(ctx context.Context, orderID uuid.UUID) (*models.Commission, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	referral, err := s.referrals.FindByOrder(ctx, orderID)
	if errors.Is(err, ErrReferralNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.CreateCommission(ctx, &order, referral)
}

// ComputeBalance must run inside a transaction that holds the affiliate lock.
func ComputeBalance(tx *gorm.DB, affiliateID uuid.UUID) (decimal.Decimal, error) {
	var available struct{ Total decimal.Decimal }
	err := tx.Model(&models.Commission{}).
		Select("COALESCE(SUM(amount - paid_amount), 0) AS total").
		Where("affiliate_id = ? AND status = ?", affiliateID, models.CommissionStatusAvailable).
		Scan(&available).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum available commissions: %w", err)
	}

	inFlight, err := inFlightPayouts(tx, affiliateID)
	if err != nil {
		return decimal.Zero, err
	}
	return available.Total.Sub(inFlight), nil
}

func inFlightPayouts(tx *gorm.DB, affiliateID uuid.UUID) (decimal.Decimal, error) {
	var reserved struct{ Total decimal.Decimal }
	err := tx.Model(&models.Payout{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("affiliate_id = ? AND status IN ?", affiliateID, models.InFlightPayoutStatuses).
		Scan(&reserved).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum in-flight payouts: %w", err)
	}
	return reserved.Total, nil
}

func (s *CommissionService) GetBalance(ctx context.Context, affiliateID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.locker.WithAffiliate(ctx, affiliateID, func(tx *gorm.DB, _ *models.Affiliate) error {
		var err error
		balance, err = ComputeBalance(tx, affiliateID)
		return err
	})
	return balance, err
}

// GetSummary reads every bucket under the affiliate lock so the numbers are
// consistent with each other.
func (s *CommissionService) GetSummary(ctx context.Context, affiliateID uuid.UUID) (*BalanceSummary, error) {
	summary := &BalanceSummary{}
	err := s.locker.WithAffiliate(ctx, affiliateID, func(tx *gorm.DB, _ *models.Affiliate) error {
		var rows []struct {
			Status string
			Total  decimal.Decimal
			Paid   decimal.Decimal
		}
		err := tx.Model(&models.Commission{}).
			Select("status, COALESCE(SUM(amount), 0) AS total, COALESCE(SUM(paid_amount), 0) AS paid").
			Where("affiliate_id = ?", affiliateID).
			Group("status").
			Scan(&rows).Error
		if err != nil {
			return fmt.Errorf("failed to summarize commissions: %w", err)
		}

		for _, r := range rows {
			switch r.Status {
			case models.CommissionStatusPending:
				summary.Pending = summary.Pending.Add(r.Total)
			case models.CommissionStatusAvailable:
				summary.Available = summary.Available.Add(r.Total.Sub(r.Paid))
				summary.Paid = summary.Paid.Add(r.Paid)
			case models.CommissionStatusPaid:
				summary.Paid = summary.Paid.Add(r.Total)
			}
		}

		summary.InFlight, err = inFlightPayouts(tx, affiliateID)
		if err != nil {
			return err
		}
		summary.Withdrawable = summary.Available.Sub(summary.InFlight)
		summary.Total = summary.Pending.Add(summary.Available).Add(summary.Paid)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// Void cancels a pending or available commission. Voiding a commission that
// is already voided, paid or partly paid out changes nothing.
func (s *CommissionService) Void(ctx context.Context, commissionID uuid.UUID, reason string) (*models.Commission, error) {
	commission, _, err := s.TryVoid(ctx, commissionID, reason)
	return commission, err
}

// TryVoid is Void that also reports whether this call changed the row.
func (s *CommissionService) TryVoid(ctx context.Context, commissionID uuid.UUID, reason string) (*models.Commission, bool, error) {
	var commission models.Commission
	if err := s.db.WithContext(ctx).First(&commission, "id = ?", commissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrCommissionNotFound
		}
		return nil, false, err
	}

	voided := false
	err := s.locker.WithAffiliate(ctx, commission.AffiliateID, func(tx *gorm.DB, _ *models.Affiliate) error {
		if err := tx.First(&commission, "id = ?", commissionID).Error; err != nil {
			return err
		}
		if !commission.CanVoid() {
			if commission.Status == models.CommissionStatusAvailable {
				log.Printf("⚠️ Commission %s not voided: %s of it is already paid out", commission.ID, commission.PaidAmount)
			}
			return nil
		}

		now := s.clock()
		result := tx.Model(&models.Commission{}).
			Where("id = ? AND status IN ?", commission.ID, []string{models.CommissionStatusPending, models.CommissionStatusAvailable}).
			Updates(map[string]interface{}{
				"status":        models.CommissionStatusVoided,
				"voided_at":     now,
				"voided_reason": reason,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to void commission: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Model(&models.Referral{}).Where("id = ?", commission.ReferralID).
			Update("status", models.ReferralStatusVoided).Error; err != nil {
			return fmt.Errorf("failed to void referral: %w", err)
		}

		commission.Status = models.CommissionStatusVoided
		commission.VoidedAt = &now
		commission.VoidedReason = reason
		voided = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if voided {
		metrics.CommissionsVoided.Inc()
		log.Printf("✅ Commission %s voided: %s", commission.ID, reason)
		publish(ctx, s.events, Event{
			Type:         EventCommissionVoided,
			AffiliateID:  commission.AffiliateID,
			CommissionID: uuidPtr(commission.ID),
			Amount:       commission.Amount,
			Reference:    reason,
			OccurredAt:   s.clock(),
		})
	}
	return &commission, voided, nil
}

// VoidForOrder voids the commission of a cancelled or refunded order, if any.
func (s *CommissionService) VoidForOrder(ctx context.Context, orderID uuid.UUID, reason string) (*models.Commission, error) {
	var commission models.Commission
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&commission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Void(ctx, commission.ID, reason)
}

type CommissionFilter struct {
	Status string
	Limit  int
	Offset int
}

func (s *CommissionService) ListForAffiliate(ctx context.Context, affiliateID uuid.UUID, f CommissionFilter) ([]models.Commission, error) {
	query := s.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID)
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	var commissions []models.Commission
	err := query.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&commissions).Error
	return commissions, err
}
