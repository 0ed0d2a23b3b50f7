package repository

import (
	"github.com/ManuelReschke/SupplierHub/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type purchaseRepository struct {
	db *gorm.DB
}

// NewPurchaseRepository creates a new purchase repository instance
func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

// CreateIfNotExists writes the purchase keyed by its session id and reports
// whether a new row was created.
func (r *purchaseRepository) CreateIfNotExists(purchase *models.Purchase) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoNothing: true,
	}).Create(purchase)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *purchaseRepository) GetBySessionID(sessionID string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.Where("session_id = ?", sessionID).First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}
