package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID             uuid.UUID           `gorm:"type:uuid;primary_key" json:"id"`
	Name           string              `gorm:"size:200;not null" json:"name"`
	Price          decimal.Decimal     `gorm:"type:numeric(12,0);not null" json:"price"`
	CommissionRate decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"commission_rate"`
	IsActive       bool                `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
