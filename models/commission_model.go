package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	CommissionStatusPending   = "pending"
	CommissionStatusAvailable = "available"
	CommissionStatusPaid      = "paid"
	CommissionStatusVoided    = "voided"
)

// Commission is a ledger entry. Amount is computed once at creation and never
// recomputed. PaidAmount tracks how much of it payouts have settled so far.
type Commission struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	AffiliateID uuid.UUID `gorm:"type:uuid;not null;index:idx_commissions_affiliate_status" json:"affiliate_id"`
	ReferralID  uuid.UUID `gorm:"type:uuid;not null;unique" json:"referral_id"`
	OrderID     uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`

	OrderAmount    decimal.Decimal `gorm:"type:numeric(12,0);not null" json:"order_amount"`
	CommissionRate decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"commission_rate"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,0);not null" json:"amount"`
	PaidAmount     decimal.Decimal `gorm:"type:numeric(12,0);not null" json:"paid_amount"`

	Status   string     `gorm:"size:20;not null;index:idx_commissions_affiliate_status" json:"status"`
	PayoutID *uuid.UUID `gorm:"type:uuid;index" json:"payout_id,omitempty"`

	MaturedAt    *time.Time `json:"matured_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	VoidedAt     *time.Time `json:"voided_at,omitempty"`
	VoidedReason string     `gorm:"size:255" json:"voided_reason,omitempty"`

	Referral Referral `gorm:"foreignkey:ReferralID" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Commission) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CanVoid reports whether the commission may still be voided. Paid funds are
// settled and stay paid, including the settled part of an available
// commission.
func (c *Commission) CanVoid() bool {
	if c.PaidAmount.IsPositive() {
		return false
	}
	return c.Status == CommissionStatusPending || c.Status == CommissionStatusAvailable
}

// Unpaid is the part of an available commission that no payout has covered.
func (c *Commission) Unpaid() decimal.Decimal {
	return c.Amount.Sub(c.PaidAmount)
}
