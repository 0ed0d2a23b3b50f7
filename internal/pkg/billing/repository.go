package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/SupplierHub/app/models"
	"github.com/ManuelReschke/SupplierHub/app/repository"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetAccountByID(id string) (*models.Account, error)
	GetAccountByStripeCustomerID(customerID string) (*models.Account, error)
	GetAccountByReferralCode(code string) (*models.Account, error)
	UpdateAccountSubscription(accountID string, fields models.SubscriptionFields) error
	CancelAccountSubscription(accountID string) error
	// CreditCommission inserts the sale and increments the affiliate ledger
	// atomically. It reports false when the session was already credited.
	CreditCommission(sale *models.Sale) (bool, error)
	CreatePurchaseIfNotExists(purchase *models.Purchase) (bool, error)
	GetPurchaseBySessionID(sessionID string) (*models.Purchase, error)
	FindActiveCommissionRate(saleType string) (*models.CommissionRate, error)
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id string, processingError string) error
}

type gormRepository struct {
	db        *gorm.DB
	accounts  repository.AccountRepository
	purchases repository.PurchaseRepository
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	repos := repository.NewRepositories(db)
	return &gormRepository{db: db, accounts: repos.Account, purchases: repos.Purchase}
}

func (r *gormRepository) GetAccountByID(id string) (*models.Account, error) {
	return r.accounts.GetByID(id)
}

func (r *gormRepository) GetAccountByStripeCustomerID(customerID string) (*models.Account, error) {
	return r.accounts.GetByStripeCustomerID(customerID)
}

func (r *gormRepository) GetAccountByReferralCode(code string) (*models.Account, error) {
	return r.accounts.GetByReferralCode(code)
}

func (r *gormRepository) UpdateAccountSubscription(accountID string, fields models.SubscriptionFields) error {
	return r.accounts.UpdateSubscription(accountID, fields)
}

func (r *gormRepository) CancelAccountSubscription(accountID string) error {
	return r.accounts.CancelSubscription(accountID)
}

func (r *gormRepository) CreditCommission(sale *models.Sale) (bool, error) {
	credited := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		created, err := repository.NewSaleRepository(tx).CreateIfNotExists(sale)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		if err := repository.NewAccountRepository(tx).IncrementEarnings(sale.AccountID, sale.Commission); err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return credited, nil
}

func (r *gormRepository) CreatePurchaseIfNotExists(purchase *models.Purchase) (bool, error) {
	return r.purchases.CreateIfNotExists(purchase)
}

func (r *gormRepository) GetPurchaseBySessionID(sessionID string) (*models.Purchase, error) {
	return r.purchases.GetBySessionID(sessionID)
}

func (r *gormRepository) FindActiveCommissionRate(saleType string) (*models.CommissionRate, error) {
	var rate models.CommissionRate
	err := r.db.Where("sale_type = ? AND is_active = ?", saleType, true).First(&rate).Error
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id string, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
