package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	SaleTypeStore        = "store"
	SaleTypeSubscription = "subscription"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusPending   = "pending"
	SaleStatusRefunded  = "refunded"
	SaleStatusCancelled = "cancelled"
)

// Sale is an immutable commission record. CheckoutSessionID is unique so a
// re-delivered checkout event cannot credit an affiliate twice.
type Sale struct {
	ID                string          `gorm:"type:char(36);primaryKey" json:"id"`
	AccountID         string          `gorm:"type:char(36);not null;index" json:"account_id"`
	ReferralCode      string          `gorm:"type:varchar(16);not null;index" json:"referral_code"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`
	Currency          string          `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	Commission        decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"commission"`
	CommissionRate    decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"commission_rate"`
	ProductIDs        string          `gorm:"type:text" json:"product_ids"`
	ProductNames      string          `gorm:"type:text" json:"product_names"`
	SaleType          string          `gorm:"type:varchar(20);not null;index" json:"sale_type"`
	StripePaymentID   string          `gorm:"type:varchar(191);default:''" json:"stripe_payment_id"`
	CheckoutSessionID string          `gorm:"type:varchar(191);not null;uniqueIndex" json:"checkout_session_id"`
	CustomerEmail     string          `gorm:"type:varchar(200);default:''" json:"customer_email"`
	Status            string          `gorm:"type:varchar(32);not null;default:'completed'" json:"status"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
