package models

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Subscription status values stored on an account.
const (
	SubscriptionStatusInactive  = "inactive"
	SubscriptionStatusTrialing  = "trialing"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPastDue   = "past_due"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusUnpaid    = "unpaid"
)

// Subscription tiers, derived from the billing interval of the first line item.
const (
	SubscriptionTierMonth = "month"
	SubscriptionTierYear  = "year"
)

const (
	referralCodeLength   = 8
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Account is a storefront user and, through its referral code, an affiliate.
// Subscription fields are only written by the billing reconciler and ledger
// fields only through additive increments.
type Account struct {
	ID                    string          `gorm:"type:char(36);primaryKey" json:"id"`
	Email                 string          `gorm:"type:varchar(200);uniqueIndex;not null" json:"email" validate:"required,email,max=200"`
	DisplayName           string          `gorm:"type:varchar(150);default:''" json:"display_name" validate:"max=150"`
	StripeCustomerID      *string         `gorm:"type:varchar(191);uniqueIndex" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID  *string         `gorm:"type:varchar(191);index" json:"stripe_subscription_id,omitempty"`
	SubscriptionStatus    string          `gorm:"type:varchar(32);not null;default:'inactive';index" json:"subscription_status" validate:"oneof=inactive trialing active past_due cancelled unpaid"`
	SubscriptionTier      string          `gorm:"type:varchar(16);default:''" json:"subscription_tier" validate:"omitempty,oneof=month year"`
	SubscriptionStartDate *time.Time      `gorm:"type:timestamp;default:null" json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time      `gorm:"type:timestamp;default:null" json:"subscription_end_date,omitempty"`
	ReferralCode          string          `gorm:"type:varchar(16);uniqueIndex;not null" json:"referral_code" validate:"required,alphanum,len=8"`
	TotalEarnings         decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_earnings"`
	AvailableBalance      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"available_balance"`
	LifetimeEarnings      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"lifetime_earnings"`
	ReferralCount         int64           `gorm:"not null;default:0" json:"referral_count"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// SubscriptionFields is the full set of subscription columns the reconciler
// overwrites on created/updated events. CustomerID is only set to link an
// account that has no payment customer yet.
type SubscriptionFields struct {
	Status         string
	SubscriptionID string
	Tier           string
	StartDate      *time.Time
	EndDate        *time.Time
	CustomerID     string
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (a *Account) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

// NewAccount builds an inactive account with an empty ledger and a fresh
// referral code. Callers must check the code for collisions before saving.
func NewAccount(email, displayName string) (*Account, error) {
	code, err := GenerateReferralCode()
	if err != nil {
		return nil, err
	}

	a := &Account{
		ID:                 uuid.NewString(),
		Email:              strings.ToLower(strings.TrimSpace(email)),
		DisplayName:        strings.TrimSpace(displayName),
		SubscriptionStatus: SubscriptionStatusInactive,
		ReferralCode:       code,
		TotalEarnings:      decimal.Zero,
		AvailableBalance:   decimal.Zero,
		LifetimeEarnings:   decimal.Zero,
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// GenerateReferralCode returns an 8 character uppercase alphanumeric code.
func GenerateReferralCode() (string, error) {
	// Rejection sampling avoids modulo bias; 252 is the largest multiple of
	// 36 below 256.
	const maxRandomByte = 252

	code := make([]byte, referralCodeLength)
	buf := make([]byte, referralCodeLength*2)
	written := 0
	for written < referralCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			code[written] = referralCodeAlphabet[int(b)%len(referralCodeAlphabet)]
			written++
			if written == referralCodeLength {
				break
			}
		}
	}
	return string(code), nil
}

// IsCancelled reports whether the subscription reached its terminal state.
func (a *Account) IsCancelled() bool {
	return a.SubscriptionStatus == SubscriptionStatusCancelled
}

// CurrentSubscriptionID returns the linked subscription id or "".
func (a *Account) CurrentSubscriptionID() string {
	if a.StripeSubscriptionID == nil {
		return ""
	}
	return *a.StripeSubscriptionID
}
