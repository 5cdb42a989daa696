package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	config "github.com/anjiri1684/affiliate_ledger/configs"
	"github.com/anjiri1684/affiliate_ledger/metrics"
	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PayoutService struct {
	db     *gorm.DB
	locker *AffiliateLocker
	policy config.LedgerPolicy
	events EventPublisher
	clock  Clock
}

func NewPayoutService(db *gorm.DB, locker *AffiliateLocker, policy config.LedgerPolicy, events EventPublisher, clock Clock) *PayoutService {
	if clock == nil {
		clock = SystemClock
	}
	return &PayoutService{db: db, locker: locker, policy: policy, events: events, clock: clock}
}

// RequestPayout reserves amount from the affiliate's withdrawable balance.
// The balance check and the insert share the affiliate lock, so two
// concurrent requests can never both spend the same funds.
func (s *PayoutService) RequestPayout(ctx context.Context, affiliateID, bankAccountID uuid.UUID, amount decimal.Decimal) (*models.Payout, error) {
	var payout models.Payout

	err := s.locker.WithAffiliate(ctx, affiliateID, func(tx *gorm.DB, affiliate *models.Affiliate) error {
		if !affiliate.IsApproved() {
			return ErrAffiliateNotApproved
		}

		var bank models.BankAccount
		if err := tx.Where("id = ? AND affiliate_id = ?", bankAccountID, affiliateID).First(&bank).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBankAccountNotFound
			}
			return err
		}
		if !bank.IsVerified() {
			return ErrBankNotVerified
		}

		if amount.LessThan(s.policy.MinPayoutAmount) {
			return fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, s.policy.MinPayoutAmount)
		}

		balance, err := ComputeBalance(tx, affiliateID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(balance) {
			return fmt.Errorf("%w: requested %s, withdrawable %s", ErrInsufficientBalance, amount, balance)
		}

		payout = models.Payout{
			AffiliateID:           affiliateID,
			BankAccountID:         bank.ID,
			Amount:                amount,
			Status:                models.PayoutStatusPending,
			BankNameSnapshot:      bank.BankName,
			AccountNumberSnapshot: bank.AccountNumber,
			AccountHolderSnapshot: bank.AccountHolder,
		}
		return tx.Omit(clause.Associations).Create(&payout).Error
	})
	if err != nil {
		metrics.RecordPayoutRequest(payoutOutcome(err))
		return nil, err
	}

	metrics.RecordPayoutRequest("created")
	log.Printf("✅ Payout %s of %s requested by affiliate %s", payout.ID, payout.Amount, affiliateID)
	publish(ctx, s.events, Event{
		Type:        EventPayoutRequested,
		AffiliateID: affiliateID,
		PayoutID:    uuidPtr(payout.ID),
		Amount:      payout.Amount,
		OccurredAt:  s.clock(),
	})
	return &payout, nil
}

func payoutOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, ErrBankNotVerified), errors.Is(err, ErrBankAccountNotFound):
		return "bank_account"
	case errors.Is(err, ErrAffiliateNotApproved):
		return "not_approved"
	case errors.Is(err, ErrTransient):
		return "transient"
	}
	return "error"
}

func (s *PayoutService) MarkProcessing(ctx context.Context, payoutID uuid.UUID, notes string) (*models.Payout, error) {
	return s.transition(ctx, payoutID, EventPayoutProcessing, []string{models.PayoutStatusPending},
		func(tx *gorm.DB, p *models.Payout, now time.Time) (map[string]interface{}, error) {
			return map[string]interface{}{
				"status":      models.PayoutStatusProcessing,
				"admin_notes": notes,
			}, nil
		})
}

func (s *PayoutService) RejectPayout(ctx context.Context, payoutID uuid.UUID, reason string) (*models.Payout, error) {
	return s.transition(ctx, payoutID, EventPayoutRejected, models.InFlightPayoutStatuses,
		func(tx *gorm.DB, p *models.Payout, now time.Time) (map[string]interface{}, error) {
			return map[string]interface{}{
				"status":           models.PayoutStatusRejected,
				"rejection_reason": reason,
				"processed_at":     now,
			}, nil
		})
}

func (s *PayoutService) FailPayout(ctx context.Context, payoutID uuid.UUID, reason string) (*models.Payout, error) {
	return s.transition(ctx, payoutID, EventPayoutFailed, []string{models.PayoutStatusProcessing},
		func(tx *gorm.DB, p *models.Payout, now time.Time) (map[string]interface{}, error) {
			return map[string]interface{}{
				"status":           models.PayoutStatusFailed,
				"rejection_reason": reason,
				"processed_at":     now,
			}, nil
		})
}

// SettlePayout marks the payout paid and draws its amount from the
// affiliate's available commissions, oldest first. Commissions covered in
// full become paid; a partly covered one keeps the covered part in
// paid_amount and stays available.
func (s *PayoutService) SettlePayout(ctx context.Context, payoutID uuid.UUID, reference string) (*models.Payout, error) {
	return s.transition(ctx, payoutID, EventPayoutSettled, models.InFlightPayoutStatuses,
		func(tx *gorm.DB, p *models.Payout, now time.Time) (map[string]interface{}, error) {
			if err := allocateCommissions(tx, p, now); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"status":             models.PayoutStatusPaid,
				"transfer_reference": reference,
				"transfer_date":      now,
				"processed_at":       now,
			}, nil
		})
}

func allocateCommissions(tx *gorm.DB, p *models.Payout, now time.Time) error {
	var commissions []models.Commission
	err := tx.Where("affiliate_id = ? AND status = ?", p.AffiliateID, models.CommissionStatusAvailable).
		Order("created_at ASC").Order("id ASC").
		Find(&commissions).Error
	if err != nil {
		return fmt.Errorf("failed to load available commissions: %w", err)
	}

	remaining := p.Amount
	for _, c := range commissions {
		if !remaining.IsPositive() {
			break
		}
		unpaid := c.Unpaid()
		if !unpaid.IsPositive() {
			continue
		}

		if remaining.GreaterThanOrEqual(unpaid) {
			err := tx.Model(&models.Commission{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
				"status":      models.CommissionStatusPaid,
				"paid_amount": c.Amount,
				"payout_id":   p.ID,
				"paid_at":     now,
			}).Error
			if err != nil {
				return fmt.Errorf("failed to mark commission %s paid: %w", c.ID, err)
			}
			if err := tx.Model(&models.Referral{}).Where("id = ?", c.ReferralID).
				Update("status", models.ReferralStatusPaid).Error; err != nil {
				return fmt.Errorf("failed to mark referral paid: %w", err)
			}
			remaining = remaining.Sub(unpaid)
			continue
		}

		if err := tx.Model(&models.Commission{}).Where("id = ?", c.ID).
			Update("paid_amount", c.PaidAmount.Add(remaining)).Error; err != nil {
			return fmt.Errorf("failed to record partial payment on commission %s: %w", c.ID, err)
		}
		remaining = decimal.Zero
	}

	if remaining.IsPositive() {
		log.Printf("⚠️ Payout %s settled with %s not backed by available commissions", p.ID, remaining)
	}
	return nil
}

type payoutUpdate func(tx *gorm.DB, p *models.Payout, now time.Time) (map[string]interface{}, error)

func (s *PayoutService) transition(ctx context.Context, payoutID uuid.UUID, eventType string, from []string, update payoutUpdate) (*models.Payout, error) {
	var payout models.Payout
	if err := s.db.WithContext(ctx).First(&payout, "id = ?", payoutID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}

	err := s.locker.WithAffiliate(ctx, payout.AffiliateID, func(tx *gorm.DB, _ *models.Affiliate) error {
		if err := tx.First(&payout, "id = ?", payoutID).Error; err != nil {
			return err
		}
		if !containsStatus(from, payout.Status) {
			return fmt.Errorf("%w: payout is %s", ErrInvalidPayoutTransition, payout.Status)
		}

		now := s.clock()
		changes, err := update(tx, &payout, now)
		if err != nil {
			return err
		}
		result := tx.Model(&models.Payout{}).
			Where("id = ? AND status = ?", payout.ID, payout.Status).
			Updates(changes)
		if result.Error != nil {
			return fmt.Errorf("failed to update payout: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInvalidPayoutTransition
		}
		return tx.First(&payout, "id = ?", payoutID).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Payout %s is now %s", payout.ID, payout.Status)
	publish(ctx, s.events, Event{
		Type:        eventType,
		AffiliateID: payout.AffiliateID,
		PayoutID:    uuidPtr(payout.ID),
		Amount:      payout.Amount,
		Reference:   payout.TransferReference,
		OccurredAt:  s.clock(),
	})
	return &payout, nil
}

func (s *PayoutService) Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := s.db.WithContext(ctx).Preload("Affiliate.User").First(&payout, "id = ?", payoutID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &payout, nil
}

func (s *PayoutService) ListForAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.Payout, error) {
	var payouts []models.Payout
	err := s.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID).Order("created_at DESC").Find(&payouts).Error
	return payouts, err
}

// List returns payouts for the admin queue, newest first. An empty status
// lists everything.
func (s *PayoutService) List(ctx context.Context, status string) ([]models.Payout, error) {
	query := s.db.WithContext(ctx).Preload("Affiliate.User")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var payouts []models.Payout
	err := query.Order("created_at DESC").Find(&payouts).Error
	return payouts, err
}

// SetReceiptURL records where the settlement receipt was uploaded.
func (s *PayoutService) SetReceiptURL(ctx context.Context, payoutID uuid.UUID, url string) error {
	return s.db.WithContext(ctx).Model(&models.Payout{}).Where("id = ?", payoutID).Update("receipt_url", url).Error
}

func containsStatus(statuses []string, status string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
