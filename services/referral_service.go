package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	config "github.com/anjiri1684/affiliate_ledger/configs"
	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralService struct {
	db     *gorm.DB
	policy config.LedgerPolicy
	events EventPublisher
	clock  Clock
}

func NewReferralService(db *gorm.DB, policy config.LedgerPolicy, events EventPublisher, clock Clock) *ReferralService {
	if clock == nil {
		clock = SystemClock
	}
	return &ReferralService{db: db, policy: policy, events: events, clock: clock}
}

// Attribute links order to the affiliate owning code. It returns a nil
// referral when there is nothing to attribute: no code, an unknown or
// unapproved affiliate, or a self-referral. Calling it again for the same
// order returns the existing referral.
func (s *ReferralService) Attribute(ctx context.Context, order *models.Order, code string) (*models.Referral, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}

	db := s.db.WithContext(ctx)

	var affiliate models.Affiliate
	if err := db.Where("code = ? AND status = ?", code, models.AffiliateStatusApproved).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("⚠️ Attribution skipped for order %s: invalid or unapproved affiliate code %s", order.OrderNumber, code)
			return nil, nil
		}
		return nil, err
	}

	if order.UserID == affiliate.UserID && !(order.IsInternalTest && s.policy.AllowInternalTestSelfReferral) {
		log.Printf("⚠️ Attribution skipped for order %s: self-referral by affiliate %s", order.OrderNumber, affiliate.Code)
		return nil, nil
	}

	var customer models.User
	if err := db.First(&customer, "id = ?", order.UserID).Error; err != nil {
		return nil, fmt.Errorf("failed to load customer for order %s: %w", order.OrderNumber, err)
	}

	name := order.RecipientName
	if name == "" {
		name = customer.FullName
	}
	status := models.ReferralStatusPending
	if order.IsPaid() {
		status = models.ReferralStatusConfirmed
	}

	referral := models.Referral{
		ID:                  uuid.New(),
		AffiliateID:         affiliate.ID,
		OrderID:             order.ID,
		CustomerID:          customer.ID,
		Status:              status,
		CustomerNameMasked:  MaskName(name),
		CustomerEmailMasked: MaskEmail(customer.Email),
	}

	result := db.Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&referral)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create referral: %w", result.Error)
	}
	created := result.RowsAffected == 1

	var stored models.Referral
	if err := db.Where("order_id = ?", order.ID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load referral for order %s: %w", order.OrderNumber, err)
	}

	if created {
		publish(ctx, s.events, Event{
			Type:        EventReferralAttributed,
			AffiliateID: affiliate.ID,
			UserID:      affiliate.UserID,
			Amount:      order.FinalAmount,
			Reference:   order.OrderNumber,
			OccurredAt:  s.clock(),
		})
	}
	if order.IsPaid() {
		return s.Confirm(ctx, &stored)
	}
	return &stored, nil
}

// AttributeOrder loads the order and attributes it. An empty code falls back
// to the code stored on the order, then to the owner of its coupon.
func (s *ReferralService) AttributeOrder(ctx context.Context, orderID uuid.UUID, code string) (*models.Referral, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if code == "" && order.ReferralCode != nil {
		code = *order.ReferralCode
	}
	if code == "" && order.CouponCode != nil {
		resolved, err := s.ResolveCode(ctx, "", *order.CouponCode)
		if err != nil {
			return nil, err
		}
		code = resolved
	}
	return s.Attribute(ctx, &order, code)
}

// ResolveCode picks the affiliate code for a checkout. An explicit referral
// code wins; otherwise a coupon owned by an affiliate attributes the order
// to that affiliate.
func (s *ReferralService) ResolveCode(ctx context.Context, referralCode, couponCode string) (string, error) {
	if code := strings.ToUpper(strings.TrimSpace(referralCode)); code != "" {
		return code, nil
	}
	couponCode = normalizeCouponCode(couponCode)
	if couponCode == "" {
		return "", nil
	}

	var coupon models.Coupon
	err := s.db.WithContext(ctx).Preload("Affiliate").Where("code = ?", couponCode).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return coupon.Affiliate.Code, nil
}

func (s *ReferralService) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.Referral, error) {
	var referral models.Referral
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}
	return &referral, nil
}

// Confirm moves a pending referral to confirmed once its order is paid.
// Referrals in any other state are returned unchanged.
func (s *ReferralService) Confirm(ctx context.Context, referral *models.Referral) (*models.Referral, error) {
	if referral.Status != models.ReferralStatusPending {
		return referral, nil
	}
	err := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("id = ? AND status = ?", referral.ID, models.ReferralStatusPending).
		Update("status", models.ReferralStatusConfirmed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to confirm referral %s: %w", referral.ID, err)
	}

	var stored models.Referral
	if err := s.db.WithContext(ctx).First(&stored, "id = ?", referral.ID).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *ReferralService) ListForAffiliate(ctx context.Context, affiliateID uuid.UUID, status string) ([]models.Referral, error) {
	query := s.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var referrals []models.Referral
	err := query.Order("created_at DESC").Find(&referrals).Error
	return referrals, err
}

// MaskName keeps the first three characters of every word:
// "Darmawan Putra" becomes "Dar***** Put**".
func MaskName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		n := utf8.RuneCountInString(w)
		if n <= 3 {
			continue
		}
		r := []rune(w)
		words[i] = string(r[:3]) + strings.Repeat("*", n-3)
	}
	return strings.Join(words, " ")
}

// MaskEmail keeps the first three characters of the local part, or the first
// one when the local part is three characters or shorter.
func MaskEmail(email string) string {
	local, domain, found := strings.Cut(email, "@")
	r := []rune(local)

	var keep string
	switch {
	case len(r) == 0:
		keep = ""
	case len(r) <= 3:
		keep = string(r[:1])
	default:
		keep = string(r[:3])
	}

	if !found {
		return keep + "****"
	}
	return keep + "****@" + domain
}
