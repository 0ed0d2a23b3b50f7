package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionRate overrides the configured commission policy for one sale
// type. Rates are fractions: 1.0 pays the whole gross amount.
type CommissionRate struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	SaleType  string          `gorm:"type:varchar(20);not null;uniqueIndex" json:"sale_type"`
	Rate      decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"rate"`
	IsActive  bool            `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
