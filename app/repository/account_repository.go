package repository

import (
	"strings"

	"github.com/ManuelReschke/SupplierHub/app/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new account in the database
func (r *accountRepository) Create(account *models.Account) error {
	return r.db.Create(account).Error
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(id string) (*models.Account, error) {
	return r.first("id = ?", strings.TrimSpace(id))
}

// GetByEmail retrieves an account by its (lowercased) email address
func (r *accountRepository) GetByEmail(email string) (*models.Account, error) {
	return r.first("email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByStripeCustomerID retrieves the account linked to a payment customer
func (r *accountRepository) GetByStripeCustomerID(customerID string) (*models.Account, error) {
	return r.first("stripe_customer_id = ?", strings.TrimSpace(customerID))
}

// GetByReferralCode retrieves the affiliate owning a referral code
func (r *accountRepository) GetByReferralCode(code string) (*models.Account, error) {
	return r.first("referral_code = ?", strings.TrimSpace(code))
}

func (r *accountRepository) first(query string, arg string) (*models.Account, error) {
	if arg == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var account models.Account
	if err := r.db.Where(query, arg).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// ReferralCodeExists reports whether a referral code is already taken
func (r *accountRepository) ReferralCodeExists(code string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Account{}).Where("referral_code = ?", code).Count(&count).Error
	return count > 0, err
}

// UpdateSubscription overwrites the subscription columns of an account.
// Period dates are only written when present so a missing value never
// erases a known one.
func (r *accountRepository) UpdateSubscription(id string, fields models.SubscriptionFields) error {
	updates := map[string]interface{}{
		"subscription_status":    fields.Status,
		"stripe_subscription_id": fields.SubscriptionID,
		"subscription_tier":      fields.Tier,
	}
	if fields.StartDate != nil {
		updates["subscription_start_date"] = *fields.StartDate
	}
	if fields.EndDate != nil {
		updates["subscription_end_date"] = *fields.EndDate
	}
	if fields.CustomerID != "" {
		updates["stripe_customer_id"] = fields.CustomerID
	}
	return r.db.Model(&models.Account{}).Where("id = ?", id).UpdateColumns(updates).Error
}

// CancelSubscription moves the account into the terminal cancelled state
// without touching any other field
func (r *accountRepository) CancelSubscription(id string) error {
	return r.db.Model(&models.Account{}).Where("id = ?", id).
		UpdateColumn("subscription_status", models.SubscriptionStatusCancelled).Error
}

// IncrementEarnings credits a commission with a single UPDATE so concurrent
// webhook deliveries never lose an increment.
func (r *accountRepository) IncrementEarnings(id string, amount decimal.Decimal) error {
	tx := r.db.Model(&models.Account{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"total_earnings":    gorm.Expr("total_earnings + ?", amount),
		"available_balance": gorm.Expr("available_balance + ?", amount),
		"lifetime_earnings": gorm.Expr("lifetime_earnings + ?", amount),
		"referral_count":    gorm.Expr("referral_count + ?", 1),
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
