package repository

import (
	"github.com/ManuelReschke/SupplierHub/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type saleRepository struct {
	db *gorm.DB
}

// NewSaleRepository creates a new sale repository instance
func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepository{db: db}
}

// CreateIfNotExists inserts the sale unless one already exists for the same
// checkout session. It reports whether a row was written.
func (r *saleRepository) CreateIfNotExists(sale *models.Sale) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "checkout_session_id"}},
		DoNothing: true,
	}).Create(sale)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ListByAccount returns the newest sales credited to an affiliate first
func (r *saleRepository) ListByAccount(accountID string, offset, limit int) ([]models.Sale, error) {
	var sales []models.Sale
	err := r.db.Where("account_id = ?", accountID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&sales).Error
	return sales, err
}
