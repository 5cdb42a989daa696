package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	AffiliateStatusPending   = "pending"
	AffiliateStatusApproved  = "approved"
	AffiliateStatusRejected  = "rejected"
	AffiliateStatusSuspended = "suspended"
)

type Affiliate struct {
	ID     uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;unique" json:"user_id"`
	Code   string    `gorm:"size:10;not null;unique" json:"code"`
	Status string    `gorm:"size:20;not null;index" json:"status"`

	// Null means the product rate (or the policy default) applies.
	CustomCommissionRate decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"custom_commission_rate"`

	WhatsApp        string `gorm:"size:20" json:"whatsapp"`
	City            string `gorm:"size:100" json:"city"`
	PrimaryPlatform string `gorm:"size:20" json:"primary_platform"`
	Reason          string `gorm:"type:text" json:"reason"`
	RejectionReason string `gorm:"type:text" json:"rejection_reason,omitempty"`

	User User `gorm:"foreignkey:UserID" json:"user,omitempty"`

	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (a *Affiliate) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *Affiliate) IsApproved() bool {
	return a.Status == AffiliateStatusApproved
}

func (a *Affiliate) ReferralURL(frontendURL string) string {
	return frontendURL + "/r/" + a.Code
}
