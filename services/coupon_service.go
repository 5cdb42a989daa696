package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var hundred = decimal.NewFromInt(100)

type CouponService struct {
	db    *gorm.DB
	clock Clock
}

func NewCouponService(db *gorm.DB, clock Clock) *CouponService {
	if clock == nil {
		clock = SystemClock
	}
	return &CouponService{db: db, clock: clock}
}

// CouponValidation is what the checkout page sees for a typed-in code.
type CouponValidation struct {
	Valid         bool            `json:"is_valid"`
	Reason        string          `json:"message"`
	Code          string          `json:"code"`
	DiscountType  string          `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	Discount      decimal.Decimal `json:"discount_amount"`
	AffiliateCode string          `json:"affiliate_code,omitempty"`
}

type CreateCouponInput struct {
	Code           string
	DiscountType   string
	DiscountValue  decimal.Decimal
	ValidFrom      time.Time
	ValidUntil     time.Time
	UsageLimit     *int
	MinOrderAmount decimal.NullDecimal
}

// Validate runs the coupon checks in order and returns a *CouponError for
// the first one that fails.
func (s *CouponService) Validate(coupon *models.Coupon, orderAmount decimal.Decimal) error {
	now := s.clock()

	if !coupon.IsActive {
		return &CouponError{Reason: CouponReasonInactive}
	}
	if now.Before(coupon.ValidFrom) {
		return &CouponError{Reason: CouponReasonNotYetValid}
	}
	if now.After(coupon.ValidUntil) {
		return &CouponError{Reason: CouponReasonExpired}
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return &CouponError{Reason: CouponReasonLimitReached}
	}
	if coupon.MinOrderAmount.Valid && orderAmount.LessThan(coupon.MinOrderAmount.Decimal) {
		return &CouponError{Reason: CouponReasonMinimumAmount}
	}
	return nil
}

// CalculateDiscount never returns more than amount and never less than zero.
func CalculateDiscount(coupon *models.Coupon, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch coupon.DiscountType {
	case models.DiscountTypePercentage:
		discount = amount.Mul(coupon.DiscountValue).Div(hundred).Round(0)
	default:
		discount = coupon.DiscountValue.Round(0)
	}

	if discount.GreaterThan(amount) {
		discount = amount
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount
}

// IncrementUsage consumes one use of the coupon. The limit check and the
// increment are a single statement, so concurrent redemptions cannot
// overshoot usage_limit.
func (s *CouponService) IncrementUsage(ctx context.Context, couponID uuid.UUID) error {
	return incrementUsage(s.db.WithContext(ctx), couponID)
}

func incrementUsage(tx *gorm.DB, couponID uuid.UUID) error {
	result := tx.Model(&models.Coupon{}).
		Where("id = ? AND is_active = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", couponID, true).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCouponUsageLimitReached
	}
	return nil
}

func (s *CouponService) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.WithContext(ctx).Preload("Affiliate").
		Where("code = ?", normalizeCouponCode(code)).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

func (s *CouponService) ValidateCode(ctx context.Context, code string, orderAmount decimal.Decimal) (*CouponValidation, error) {
	result := &CouponValidation{Code: normalizeCouponCode(code)}

	coupon, err := s.FindByCode(ctx, code)
	if errors.Is(err, ErrCouponNotFound) {
		result.Reason = "coupon not found"
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.DiscountType = coupon.DiscountType
	result.DiscountValue = coupon.DiscountValue
	result.AffiliateCode = coupon.Affiliate.Code

	if err := s.Validate(coupon, orderAmount); err != nil {
		var couponErr *CouponError
		if errors.As(err, &couponErr) {
			result.Reason = couponErr.Reason
			return result, nil
		}
		return nil, err
	}

	result.Valid = true
	result.Reason = "coupon is valid"
	result.Discount = CalculateDiscount(coupon, orderAmount)
	return result, nil
}

// ApplyToOrder redeems code against a pending order and rewrites its
// discount and final amount.
func (s *CouponService) ApplyToOrder(ctx context.Context, orderID uuid.UUID, code string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.Status != models.OrderStatusPending {
			return fmt.Errorf("%w: order %s is %s, coupons apply to pending orders only", ErrInvalidOrderState, order.OrderNumber, order.Status)
		}

		var coupon models.Coupon
		if err := tx.Where("code = ?", normalizeCouponCode(code)).First(&coupon).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCouponNotFound
			}
			return err
		}
		if err := s.Validate(&coupon, order.TotalAmount); err != nil {
			return err
		}
		if err := incrementUsage(tx, coupon.ID); err != nil {
			return err
		}

		discount := CalculateDiscount(&coupon, order.TotalAmount)
		order.DiscountAmount = discount
		order.FinalAmount = order.TotalAmount.Sub(discount)
		order.CouponCode = &coupon.Code

		return tx.Model(&order).Updates(map[string]interface{}{
			"discount_amount": order.DiscountAmount,
			"final_amount":    order.FinalAmount,
			"coupon_code":     coupon.Code,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *CouponService) Create(ctx context.Context, affiliateID uuid.UUID, in CreateCouponInput) (*models.Coupon, error) {
	if !in.DiscountValue.IsPositive() {
		return nil, &CouponError{Reason: "discount value must be positive"}
	}
	if in.DiscountType == models.DiscountTypePercentage && in.DiscountValue.GreaterThan(hundred) {
		return nil, &CouponError{Reason: "percentage must be between 1 and 100"}
	}
	if !in.ValidUntil.After(in.ValidFrom) {
		return nil, &CouponError{Reason: "end date must be after start date"}
	}
	if in.UsageLimit != nil && *in.UsageLimit < 1 {
		return nil, &CouponError{Reason: "usage limit must be at least 1"}
	}

	var affiliate models.Affiliate
	if err := s.db.WithContext(ctx).First(&affiliate, "id = ?", affiliateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAffiliateNotFound
		}
		return nil, err
	}
	if !affiliate.IsApproved() {
		return nil, ErrAffiliateNotApproved
	}

	coupon := models.Coupon{
		AffiliateID:    affiliateID,
		Code:           normalizeCouponCode(in.Code),
		DiscountType:   in.DiscountType,
		DiscountValue:  in.DiscountValue,
		ValidFrom:      in.ValidFrom.UTC(),
		ValidUntil:     in.ValidUntil.UTC(),
		UsageLimit:     in.UsageLimit,
		MinOrderAmount: in.MinOrderAmount,
		IsActive:       true,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&coupon).Error; err != nil {
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}
	return &coupon, nil
}

func (s *CouponService) ListForAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.Coupon, error) {
	var coupons []models.Coupon
	err := s.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID).Order("created_at DESC").Find(&coupons).Error
	return coupons, err
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
