package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BankVerificationPending  = "pending"
	BankVerificationVerified = "verified"
	BankVerificationRejected = "rejected"
)

type BankAccount struct {
	ID                 uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	AffiliateID        uuid.UUID `gorm:"type:uuid;not null;index" json:"affiliate_id"`
	BankName           string    `gorm:"size:100;not null" json:"bank_name"`
	AccountNumber      string    `gorm:"size:50;not null" json:"account_number"`
	AccountHolder      string    `gorm:"size:200;not null" json:"account_holder"`
	KTPImageURL        *string   `gorm:"size:255" json:"ktp_image_url,omitempty"`
	VerificationStatus string    `gorm:"size:20;not null" json:"verification_status"`
	IsPrimary          bool      `json:"is_primary"`

	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (b *BankAccount) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *BankAccount) IsVerified() bool {
	return b.VerificationStatus == BankVerificationVerified
}

// MaskedNumber shows only the last four digits.
func (b *BankAccount) MaskedNumber() string {
	n := len(b.AccountNumber)
	if n <= 4 {
		return b.AccountNumber
	}
	return strings.Repeat("*", n-4) + b.AccountNumber[n-4:]
}
