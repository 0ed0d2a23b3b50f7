package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ProductIDSeparator   = ","
	ProductNameSeparator = " | "
)

// PurchaseReferralCodeMaxLen is the width of purchases.referral_code. The
// code comes straight from the buyer's link and is not checked against an
// account before it is recorded.
const PurchaseReferralCodeMaxLen = 191

// Purchase is the audit record of a completed checkout, one per session,
// written whether or not a referral or entitlement applied.
type Purchase struct {
	ID              string          `gorm:"type:char(36);primaryKey" json:"id"`
	SessionID       string          `gorm:"type:varchar(191);not null;uniqueIndex" json:"session_id"`
	CustomerEmail   string          `gorm:"type:varchar(200);default:'';index" json:"customer_email"`
	ReferralCode    *string         `gorm:"type:varchar(191);default:null" json:"referral_code,omitempty"`
	ProductIDs      string          `gorm:"type:text" json:"product_ids"`
	ProductNames    string          `gorm:"type:text" json:"product_names"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`
	Currency        string          `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	StripePaymentID string          `gorm:"type:varchar(191);default:''" json:"stripe_payment_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ProductIDList splits the stored product ids.
func (p *Purchase) ProductIDList() []string {
	return SplitList(p.ProductIDs, ProductIDSeparator)
}

// ProductNameList splits the stored product names.
func (p *Purchase) ProductNameList() []string {
	return SplitList(p.ProductNames, ProductNameSeparator)
}

// SplitList splits s on sep and drops empty entries.
func SplitList(s, sep string) []string {
	out := []string{}
	for _, part := range strings.Split(s, sep) {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
