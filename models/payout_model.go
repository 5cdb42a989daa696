package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusPaid       = "paid"
	PayoutStatusRejected   = "rejected"
	PayoutStatusFailed     = "failed"
)

// Payouts in these states still reserve part of the affiliate's balance.
var InFlightPayoutStatuses = []string{PayoutStatusPending, PayoutStatusProcessing}

type Payout struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	AffiliateID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_payouts_affiliate_status" json:"affiliate_id"`
	BankAccountID uuid.UUID       `gorm:"type:uuid;not null" json:"bank_account_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,0);not null" json:"amount"`
	Status        string          `gorm:"size:20;not null;index:idx_payouts_affiliate_status" json:"status"`

	// Copied from the bank account at request time.
	BankNameSnapshot      string `gorm:"size:100;not null" json:"bank_name"`
	AccountNumberSnapshot string `gorm:"size:50;not null" json:"account_number"`
	AccountHolderSnapshot string `gorm:"size:200;not null" json:"account_holder"`

	AdminNotes        string     `gorm:"type:text" json:"admin_notes,omitempty"`
	RejectionReason   string     `gorm:"size:255" json:"rejection_reason,omitempty"`
	TransferReference string     `gorm:"size:100" json:"transfer_reference,omitempty"`
	TransferDate      *time.Time `json:"transfer_date,omitempty"`
	ReceiptURL        *string    `gorm:"size:255" json:"receipt_url,omitempty"`

	Affiliate Affiliate `gorm:"foreignkey:AffiliateID" json:"-"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (p *Payout) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Payout) IsInFlight() bool {
	return p.Status == PayoutStatusPending || p.Status == PayoutStatusProcessing
}
