package entitlements

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/SupplierHub/app/models"
	"github.com/ManuelReschke/SupplierHub/app/repository"
)

type gormStore struct {
	accounts     repository.AccountRepository
	entitlements repository.EntitlementRepository
}

// NewStore creates an entitlement store backed by GORM.
func NewStore(db *gorm.DB) Store {
	repos := repository.NewRepositories(db)
	return &gormStore{accounts: repos.Account, entitlements: repos.Entitlement}
}

func (s *gormStore) GetAccountByEmail(email string) (*models.Account, error) {
	return s.accounts.GetByEmail(email)
}

func (s *gormStore) CreateGrantIfNotExists(grant *models.ProductEntitlement) (bool, error) {
	return s.entitlements.CreateGrantIfNotExists(grant)
}

func (s *gormStore) ListGrantsByAccount(accountID string) ([]models.ProductEntitlement, error) {
	return s.entitlements.ListGrantsByAccount(accountID)
}

func (s *gormStore) CreatePendingIfNotExists(pending *models.PendingEntitlement) (bool, error) {
	return s.entitlements.CreatePendingIfNotExists(pending)
}

func (s *gormStore) ListPendingByEmail(email string) ([]models.PendingEntitlement, error) {
	return s.entitlements.ListPendingByEmail(email)
}

func (s *gormStore) ListPendingEntitlements(limit int) ([]models.PendingEntitlement, error) {
	return s.entitlements.ListPending(limit)
}

func (s *gormStore) MarkPendingPromoted(id, accountID string) error {
	return s.entitlements.MarkPendingPromoted(id, accountID)
}
