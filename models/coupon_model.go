package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

type Coupon struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	AffiliateID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"affiliate_id"`
	Code          string          `gorm:"size:50;not null;unique" json:"code"`
	DiscountType  string          `gorm:"size:20;not null" json:"discount_type"`
	DiscountValue decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount_value"`

	ValidFrom  time.Time `gorm:"not null" json:"valid_from"`
	ValidUntil time.Time `gorm:"not null" json:"valid_until"`

	UsageLimit     *int                `json:"usage_limit"`
	UsageCount     int                 `gorm:"not null" json:"usage_count"`
	MinOrderAmount decimal.NullDecimal `gorm:"type:numeric(12,0)" json:"min_order_amount"`
	IsActive       bool                `json:"is_active"`

	Affiliate Affiliate `gorm:"foreignkey:AffiliateID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
