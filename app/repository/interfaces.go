package repository

import (
	"github.com/ManuelReschke/SupplierHub/app/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for account-related database operations
type AccountRepository interface {
	Create(account *models.Account) error
	GetByID(id string) (*models.Account, error)
	GetByEmail(email string) (*models.Account, error)
	GetByStripeCustomerID(customerID string) (*models.Account, error)
	GetByReferralCode(code string) (*models.Account, error)
	ReferralCodeExists(code string) (bool, error)
	UpdateSubscription(id string, fields models.SubscriptionFields) error
	CancelSubscription(id string) error
	IncrementEarnings(id string, amount decimal.Decimal) error
}

// SaleRepository is the append-only commission ledger
type SaleRepository interface {
	CreateIfNotExists(sale *models.Sale) (bool, error)
	ListByAccount(accountID string, offset, limit int) ([]models.Sale, error)
}

// PurchaseRepository is the append-only purchase audit ledger
type PurchaseRepository interface {
	CreateIfNotExists(purchase *models.Purchase) (bool, error)
	GetBySessionID(sessionID string) (*models.Purchase, error)
}

// EntitlementRepository stores product grants and pending grants
type EntitlementRepository interface {
	CreateGrantIfNotExists(grant *models.ProductEntitlement) (bool, error)
	ListGrantsByAccount(accountID string) ([]models.ProductEntitlement, error)
	CreatePendingIfNotExists(pending *models.PendingEntitlement) (bool, error)
	ListPendingByEmail(email string) ([]models.PendingEntitlement, error)
	ListPending(limit int) ([]models.PendingEntitlement, error)
	MarkPendingPromoted(id, accountID string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Account     AccountRepository
	Sale        SaleRepository
	Purchase    PurchaseRepository
	Entitlement EntitlementRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account:     NewAccountRepository(db),
		Sale:        NewSaleRepository(db),
		Purchase:    NewPurchaseRepository(db),
		Entitlement: NewEntitlementRepository(db),
	}
}
