package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	OrderStatusPending     = "pending"
	OrderStatusPaid        = "paid"
	OrderStatusProcessing  = "processing"
	OrderStatusDistributed = "distributed"
	OrderStatusCompleted   = "completed"
	OrderStatusCancelled   = "cancelled"
	OrderStatusRefunded    = "refunded"
)

// Orders in these states never mature their commission.
var TerminatedOrderStatuses = []string{OrderStatusCancelled, OrderStatusRefunded}

type Order struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	OrderNumber string    `gorm:"size:20;not null;unique" json:"order_number"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null" json:"product_id"`
	Quantity    int       `gorm:"not null" json:"quantity"`

	UnitPrice      decimal.Decimal `gorm:"type:numeric(12,0);not null" json:"unit_price"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(12,0);not null" json:"total_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,0);not null" json:"discount_amount"`
	FinalAmount    decimal.Decimal `gorm:"type:numeric(12,0);not null" json:"final_amount"`

	RecipientName string `gorm:"size:200" json:"recipient_name"`
	Status        string `gorm:"size:20;not null;index" json:"status"`

	ReferralCode   *string `gorm:"size:20;index" json:"referral_code,omitempty"`
	CouponCode     *string `gorm:"size:50" json:"coupon_code,omitempty"`
	PaymentMethod  string  `gorm:"size:50" json:"payment_method"`
	IsInternalTest bool    `json:"is_internal_test"`

	User    User    `gorm:"foreignkey:UserID" json:"user,omitempty"`
	Product Product `gorm:"foreignkey:ProductID" json:"product,omitempty"`

	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (o *Order) IsTerminated() bool {
	return o.Status == OrderStatusCancelled || o.Status == OrderStatusRefunded
}

// IsPaid reports whether payment has been received for the order.
func (o *Order) IsPaid() bool {
	switch o.Status {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusDistributed, OrderStatusCompleted:
		return true
	}
	return false
}
