package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/anjiri1684/affiliate_ledger/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	OrderEventPaid      = "paid"
	OrderEventFailed    = "failed"
	OrderEventExpired   = "expired"
	OrderEventCancelled = "cancelled"
	OrderEventRefunded  = "refunded"
)

// OrderEvent is what the order source reports about an order's payment.
type OrderEvent struct {
	OrderID        uuid.UUID
	Event          string
	PaymentMethod  string
	IsInternalTest *bool
	ReferralCode   string
	CouponCode     string
}

type OrderOutcome struct {
	Order      *models.Order      `json:"order"`
	Referral   *models.Referral   `json:"referral,omitempty"`
	Commission *models.Commission `json:"commission,omitempty"`
}

// OrderService turns order-source events into ledger changes.
type OrderService struct {
	db          *gorm.DB
	referrals   *ReferralService
	commissions *CommissionService
	clock       Clock
}

func NewOrderService(db *gorm.DB, referrals *ReferralService, commissions *CommissionService, clock Clock) *OrderService {
	if clock == nil {
		clock = SystemClock
	}
	return &OrderService{db: db, referrals: referrals, commissions: commissions, clock: clock}
}

func (s *OrderService) HandleOrderEvent(ctx context.Context, ev OrderEvent) (*OrderOutcome, error) {
	switch ev.Event {
	case OrderEventPaid:
		return s.handlePaid(ctx, ev)
	case OrderEventExpired:
		return s.handleCancelled(ctx, ev, "payment expired")
	case OrderEventFailed:
		order, err := s.load(ctx, ev.OrderID)
		if err != nil {
			return nil, err
		}
		log.Printf("⚠️ Payment failed for order %s, order stays %s", order.OrderNumber, order.Status)
		return &OrderOutcome{Order: order}, nil
	case OrderEventCancelled:
		return s.handleCancelled(ctx, ev, "order cancelled")
	case OrderEventRefunded:
		return s.handleCancelled(ctx, ev, "order refunded")
	}
	return nil, fmt.Errorf("unknown order event %q", ev.Event)
}

func (s *OrderService) handlePaid(ctx context.Context, ev OrderEvent) (*OrderOutcome, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", ev.OrderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.IsTerminated() {
			return fmt.Errorf("%w: order %s is %s and cannot be paid", ErrInvalidOrderState, order.OrderNumber, order.Status)
		}
		if order.IsPaid() {
			return nil
		}

		now := s.clock()
		order.Status = models.OrderStatusPaid
		order.PaidAt = &now
		if ev.PaymentMethod != "" {
			order.PaymentMethod = ev.PaymentMethod
		}
		if ev.IsInternalTest != nil {
			order.IsInternalTest = *ev.IsInternalTest
		}
		if order.ReferralCode == nil && ev.ReferralCode != "" {
			order.ReferralCode = &ev.ReferralCode
		}
		if order.CouponCode == nil && ev.CouponCode != "" {
			order.CouponCode = &ev.CouponCode
		}
		return tx.Omit(clause.Associations).Save(&order).Error
	})
	if err != nil {
		return nil, err
	}

	outcome := &OrderOutcome{Order: &order}

	referral, err := s.referralFor(ctx, &order)
	if err != nil {
		log.Printf("🔥 Attribution failed for order %s: %v", order.OrderNumber, err)
		return outcome, nil
	}
	if referral == nil {
		return outcome, nil
	}
	outcome.Referral = referral

	commission, err := s.commissions.CreateCommission(ctx, &order, referral)
	if err != nil {
		return outcome, fmt.Errorf("failed to create commission for order %s: %w", order.OrderNumber, err)
	}
	outcome.Commission = commission
	return outcome, nil
}

// referralFor returns the paid order's referral, confirming one attributed
// before payment, or attributes the order from its referral or coupon code.
func (s *OrderService) referralFor(ctx context.Context, order *models.Order) (*models.Referral, error) {
	existing, err := s.referrals.FindByOrder(ctx, order.ID)
	if err == nil {
		return s.referrals.Confirm(ctx, existing)
	}
	if !errors.Is(err, ErrReferralNotFound) {
		return nil, err
	}

	code, err := s.referrals.ResolveCode(ctx, deref(order.ReferralCode), deref(order.CouponCode))
	if err != nil {
		return nil, fmt.Errorf("could not resolve referral code: %w", err)
	}
	return s.referrals.Attribute(ctx, order, code)
}

func (s *OrderService) handleCancelled(ctx context.Context, ev OrderEvent, reason string) (*OrderOutcome, error) {
	target := models.OrderStatusCancelled
	if ev.Event == OrderEventRefunded {
		target = models.OrderStatusRefunded
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", ev.OrderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if ev.Event == OrderEventExpired && order.Status != models.OrderStatusPending {
			return nil
		}
		if order.Status == target {
			return nil
		}
		order.Status = target
		return tx.Model(&order).Update("status", target).Error
	})
	if err != nil {
		return nil, err
	}

	outcome := &OrderOutcome{Order: &order}
	if !order.IsTerminated() {
		return outcome, nil
	}

	commission, err := s.commissions.VoidForOrder(ctx, order.ID, reason)
	if err != nil {
		return outcome, fmt.Errorf("failed to void commission for order %s: %w", order.OrderNumber, err)
	}
	outcome.Commission = commission
	return outcome, nil
}

func (s *OrderService) load(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
