package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DailyStats is a per-affiliate, per-day reporting snapshot. It is rebuilt
// from clicks, referrals and commissions and is never a source of truth.
type DailyStats struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	AffiliateID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_daily_stats_affiliate_date" json:"affiliate_id"`
	Date        time.Time `gorm:"not null;uniqueIndex:idx_daily_stats_affiliate_date;index" json:"date"`

	Clicks            int64           `gorm:"not null" json:"clicks"`
	Conversions       int64           `gorm:"not null" json:"conversions"`
	ConversionRate    decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"conversion_rate"`
	CommissionEarned  decimal.Decimal `gorm:"type:numeric(12,0);not null" json:"commission_earned"`
	CommissionMatured decimal.Decimal `gorm:"type:numeric(12,0);not null" json:"commission_matured"`
	TotalSales        decimal.Decimal `gorm:"type:numeric(12,0);not null" json:"total_sales"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *DailyStats) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ConversionRate returns conversions/clicks as a percentage with two decimals.
func ConversionRate(conversions, clicks int64) decimal.Decimal {
	if clicks <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(conversions).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(clicks)).Round(2)
}
