package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/anjiri1684/affiliate_ledger/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AffiliateService struct {
	db     *gorm.DB
	locker *AffiliateLocker
	events EventPublisher
	clock  Clock
}

func NewAffiliateService(db *gorm.DB, locker *AffiliateLocker, events EventPublisher, clock Clock) *AffiliateService {
	if clock == nil {
		clock = SystemClock
	}
	return &AffiliateService{db: db, locker: locker, events: events, clock: clock}
}

type ApplyInput struct {
	WhatsApp        string
	City            string
	PrimaryPlatform string
	Reason          string
}

type BankAccountInput struct {
	BankName      string
	AccountNumber string
	AccountHolder string
	KTPImageURL   *string
}

// Apply creates a pending affiliate profile with a fresh referral code.
func (s *AffiliateService) Apply(ctx context.Context, userID uuid.UUID, in ApplyInput) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Affiliate{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAffiliateExists
		}

		code, err := utils.GenerateUniqueAffiliateCode(tx)
		if err != nil {
			return err
		}

		affiliate = models.Affiliate{
			UserID:          userID,
			Code:            code,
			Status:          models.AffiliateStatusPending,
			WhatsApp:        in.WhatsApp,
			City:            in.City,
			PrimaryPlatform: in.PrimaryPlatform,
			Reason:          in.Reason,
		}
		return tx.Omit(clause.Associations).Create(&affiliate).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Affiliate application %s received with code %s", affiliate.ID, affiliate.Code)
	return &affiliate, nil
}

func (s *AffiliateService) Get(ctx context.Context, affiliateID uuid.UUID) (*models.Affiliate, error) {
	return s.findOne(ctx, "id = ?", affiliateID)
}

func (s *AffiliateService) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Affiliate, error) {
	return s.findOne(ctx, "user_id = ?", userID)
}

func (s *AffiliateService) GetByCode(ctx context.Context, code string) (*models.Affiliate, error) {
	return s.findOne(ctx, "code = ?", strings.ToUpper(strings.TrimSpace(code)))
}

func (s *AffiliateService) findOne(ctx context.Context, query string, arg interface{}) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := s.db.WithContext(ctx).Preload("User").Where(query, arg).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAffiliateNotFound
		}
		return nil, err
	}
	return &affiliate, nil
}

func (s *AffiliateService) List(ctx context.Context, status string) ([]models.Affiliate, error) {
	query := s.db.WithContext(ctx).Preload("User")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var affiliates []models.Affiliate
	err := query.Order("created_at DESC").Find(&affiliates).Error
	return affiliates, err
}

// Approve activates the affiliate and promotes its user to the affiliate role.
func (s *AffiliateService) Approve(ctx context.Context, affiliateID uuid.UUID) (*models.Affiliate, error) {
	return s.changeStatus(ctx, affiliateID, EventAffiliateApproved, func(tx *gorm.DB, a *models.Affiliate) error {
		now := s.clock()
		a.Status = models.AffiliateStatusApproved
		a.ApprovedAt = &now
		a.RejectionReason = ""
		if err := tx.Model(&models.User{}).Where("id = ? AND role = ?", a.UserID, models.RoleCustomer).
			Update("role", models.RoleAffiliate).Error; err != nil {
			return err
		}
		return nil
	})
}

func (s *AffiliateService) Reject(ctx context.Context, affiliateID uuid.UUID, reason string) (*models.Affiliate, error) {
	return s.changeStatus(ctx, affiliateID, EventAffiliateRejected, func(tx *gorm.DB, a *models.Affiliate) error {
		if a.Status != models.AffiliateStatusPending {
			return fmt.Errorf("%w: only pending applications can be rejected, affiliate is %s", ErrInvalidAffiliateState, a.Status)
		}
		a.Status = models.AffiliateStatusRejected
		a.RejectionReason = reason
		return nil
	})
}

// Suspend stops new attributions and payout requests. Existing commissions
// keep maturing.
func (s *AffiliateService) Suspend(ctx context.Context, affiliateID uuid.UUID, reason string) (*models.Affiliate, error) {
	return s.changeStatus(ctx, affiliateID, EventAffiliateSuspended, func(tx *gorm.DB, a *models.Affiliate) error {
		a.Status = models.AffiliateStatusSuspended
		a.RejectionReason = reason
		return nil
	})
}

// SetCustomRate overrides the commission rate for future commissions. An
// invalid NullDecimal clears the override.
func (s *AffiliateService) SetCustomRate(ctx context.Context, affiliateID uuid.UUID, rate decimal.NullDecimal) (*models.Affiliate, error) {
	if rate.Valid && (rate.Decimal.IsNegative() || rate.Decimal.GreaterThan(hundred)) {
		return nil, fmt.Errorf("%w, got %s", ErrInvalidRate, rate.Decimal)
	}
	return s.changeStatus(ctx, affiliateID, "", func(tx *gorm.DB, a *models.Affiliate) error {
		a.CustomCommissionRate = rate
		return nil
	})
}

func (s *AffiliateService) changeStatus(ctx context.Context, affiliateID uuid.UUID, eventType string, mutate func(tx *gorm.DB, a *models.Affiliate) error) (*models.Affiliate, error) {
	var updated models.Affiliate
	err := s.locker.WithAffiliate(ctx, affiliateID, func(tx *gorm.DB, a *models.Affiliate) error {
		if err := mutate(tx, a); err != nil {
			return err
		}
		if err := tx.Model(a).Select("status", "approved_at", "rejection_reason", "custom_commission_rate").Updates(a).Error; err != nil {
			return fmt.Errorf("failed to update affiliate: %w", err)
		}
		updated = *a
		return nil
	})
	if err != nil {
		return nil, err
	}

	if eventType != "" {
		publish(ctx, s.events, Event{
			Type:        eventType,
			AffiliateID: updated.ID,
			UserID:      updated.UserID,
			Reference:   updated.Code,
			OccurredAt:  s.clock(),
		})
	}
	return &updated, nil
}

// AddBankAccount stores a new, unverified bank account. The first account an
// affiliate adds becomes primary.
func (s *AffiliateService) AddBankAccount(ctx context.Context, affiliateID uuid.UUID, in BankAccountInput) (*models.BankAccount, error) {
	account := models.BankAccount{
		AffiliateID:        affiliateID,
		BankName:           strings.TrimSpace(in.BankName),
		AccountNumber:      strings.TrimSpace(in.AccountNumber),
		AccountHolder:      strings.TrimSpace(in.AccountHolder),
		KTPImageURL:        in.KTPImageURL,
		VerificationStatus: models.BankVerificationPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.BankAccount{}).Where("affiliate_id = ?", affiliateID).Count(&count).Error; err != nil {
			return err
		}
		account.IsPrimary = count == 0
		return tx.Create(&account).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add bank account: %w", err)
	}
	return &account, nil
}

func (s *AffiliateService) ListBankAccounts(ctx context.Context, affiliateID uuid.UUID) ([]models.BankAccount, error) {
	var accounts []models.BankAccount
	err := s.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID).
		Order("is_primary DESC").Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

// SetPrimaryBankAccount makes bankAccountID the only primary account.
func (s *AffiliateService) SetPrimaryBankAccount(ctx context.Context, affiliateID, bankAccountID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.BankAccount
		if err := tx.Where("id = ? AND affiliate_id = ?", bankAccountID, affiliateID).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBankAccountNotFound
			}
			return err
		}
		if err := tx.Model(&models.BankAccount{}).Where("affiliate_id = ? AND id <> ?", affiliateID, bankAccountID).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		return tx.Model(&account).Update("is_primary", true).Error
	})
}

// VerifyBankAccount records the admin's KTP/bank check.
func (s *AffiliateService) VerifyBankAccount(ctx context.Context, bankAccountID uuid.UUID, approve bool) (*models.BankAccount, error) {
	var account models.BankAccount
	if err := s.db.WithContext(ctx).First(&account, "id = ?", bankAccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBankAccountNotFound
		}
		return nil, err
	}

	err := s.locker.WithAffiliate(ctx, account.AffiliateID, func(tx *gorm.DB, _ *models.Affiliate) error {
		if approve {
			now := s.clock()
			account.VerificationStatus = models.BankVerificationVerified
			account.VerifiedAt = &now
		} else {
			account.VerificationStatus = models.BankVerificationRejected
			account.VerifiedAt = nil
		}
		return tx.Model(&account).Select("verification_status", "verified_at").Updates(&account).Error
	})
	if err != nil {
		return nil, err
	}

	eventType := EventBankVerified
	if !approve {
		eventType = EventBankRejected
	}
	publish(ctx, s.events, Event{
		Type:        eventType,
		AffiliateID: account.AffiliateID,
		Reference:   account.BankName + " " + account.MaskedNumber(),
		OccurredAt:  s.clock(),
	})
	return &account, nil
}
