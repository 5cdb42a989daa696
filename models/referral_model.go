package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ReferralStatusPending   = "pending"
	ReferralStatusConfirmed = "confirmed"
	ReferralStatusPaid      = "paid"
	ReferralStatusVoided    = "voided"
)

// Referral links exactly one order to the affiliate who referred it.
type Referral struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	AffiliateID uuid.UUID `gorm:"type:uuid;not null;index:idx_referrals_affiliate_status" json:"affiliate_id"`
	OrderID     uuid.UUID `gorm:"type:uuid;not null;unique" json:"order_id"`
	CustomerID  uuid.UUID `gorm:"type:uuid;not null" json:"-"`
	Status      string    `gorm:"size:20;not null;index:idx_referrals_affiliate_status" json:"status"`

	CustomerNameMasked  string `gorm:"size:100" json:"customer_name"`
	CustomerEmailMasked string `gorm:"size:100" json:"customer_email"`

	Affiliate Affiliate `gorm:"foreignkey:AffiliateID" json:"-"`
	Order     Order     `gorm:"foreignkey:OrderID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Referral) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

type ReferralClick struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	AffiliateID uuid.UUID `gorm:"type:uuid;not null;index:idx_clicks_affiliate_created" json:"affiliate_id"`
	IPAddress   string    `gorm:"size:64" json:"ip_address"`
	UserAgent   string    `gorm:"type:text" json:"user_agent"`
	RefererURL  string    `gorm:"size:1024" json:"referer_url"`
	LandingPage string    `gorm:"size:1024" json:"landing_page"`

	CreatedAt time.Time `gorm:"index:idx_clicks_affiliate_created" json:"created_at"`
}

func (c *ReferralClick) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
