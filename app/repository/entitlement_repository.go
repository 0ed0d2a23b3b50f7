package repository

import (
	"strings"
	"time"

	"github.com/ManuelReschke/SupplierHub/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type entitlementRepository struct {
	db *gorm.DB
}

// NewEntitlementRepository creates a new entitlement repository instance
func NewEntitlementRepository(db *gorm.DB) EntitlementRepository {
	return &entitlementRepository{db: db}
}

// CreateGrantIfNotExists inserts a grant unless the same (account, product,
// session) grant already exists.
func (r *entitlementRepository) CreateGrantIfNotExists(grant *models.ProductEntitlement) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "account_id"},
			{Name: "product_id"},
			{Name: "session_id"},
		},
		DoNothing: true,
	}).Create(grant)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *entitlementRepository) ListGrantsByAccount(accountID string) ([]models.ProductEntitlement, error) {
	var grants []models.ProductEntitlement
	err := r.db.Where("account_id = ?", accountID).Order("granted_at ASC").Find(&grants).Error
	return grants, err
}

// CreatePendingIfNotExists inserts a pending grant unless the same (email,
// product, session) row already exists.
func (r *entitlementRepository) CreatePendingIfNotExists(pending *models.PendingEntitlement) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "email"},
			{Name: "product_id"},
			{Name: "session_id"},
		},
		DoNothing: true,
	}).Create(pending)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *entitlementRepository) ListPendingByEmail(email string) ([]models.PendingEntitlement, error) {
	var pending []models.PendingEntitlement
	err := r.db.Where("email = ? AND status = ?", strings.ToLower(strings.TrimSpace(email)), models.EntitlementStatusPending).
		Order("purchased_at ASC").
		Find(&pending).Error
	return pending, err
}

// ListPending returns the oldest still-pending grants, at most limit rows
func (r *entitlementRepository) ListPending(limit int) ([]models.PendingEntitlement, error) {
	var pending []models.PendingEntitlement
	err := r.db.Where("status = ?", models.EntitlementStatusPending).
		Order("purchased_at ASC").
		Limit(limit).
		Find(&pending).Error
	return pending, err
}

// MarkPendingPromoted flags a pending grant as converted. Only rows that are
// still pending are touched, so concurrent promoters cannot both win.
func (r *entitlementRepository) MarkPendingPromoted(id, accountID string) error {
	now := time.Now()
	tx := r.db.Model(&models.PendingEntitlement{}).
		Where("id = ? AND status = ?", id, models.EntitlementStatusPending).
		UpdateColumns(map[string]interface{}{
			"status":      models.EntitlementStatusPromoted,
			"account_id":  accountID,
			"promoted_at": now,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
