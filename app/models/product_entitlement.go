package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EntitlementStatusActive   = "active"
	EntitlementStatusPending  = "pending"
	EntitlementStatusPromoted = "promoted"
)

// ProductEntitlement grants an account access to one digital product.
type ProductEntitlement struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	AccountID string    `gorm:"type:char(36);not null;index:ux_product_entitlements_grant,unique,priority:1;index:idx_product_entitlements_account_product,priority:1" json:"account_id"`
	ProductID string    `gorm:"type:varchar(191);not null;index:ux_product_entitlements_grant,unique,priority:2;index:idx_product_entitlements_account_product,priority:2" json:"product_id"`
	SessionID string    `gorm:"type:varchar(191);not null;index:ux_product_entitlements_grant,unique,priority:3" json:"session_id"`
	GrantedAt time.Time `gorm:"type:timestamp;not null" json:"granted_at"`
	Status    string    `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
}

func (e *ProductEntitlement) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// PendingEntitlement holds a purchase made with an email that has no account
// yet. It is promoted to a ProductEntitlement once the email registers.
type PendingEntitlement struct {
	ID          string     `gorm:"type:char(36);primaryKey" json:"id"`
	Email       string     `gorm:"type:varchar(200);not null;index;index:ux_pending_entitlements_grant,unique,priority:1" json:"email"`
	ProductID   string     `gorm:"type:varchar(191);not null;index:ux_pending_entitlements_grant,unique,priority:2" json:"product_id"`
	SessionID   string     `gorm:"type:varchar(191);not null;index:ux_pending_entitlements_grant,unique,priority:3" json:"session_id"`
	PurchasedAt time.Time  `gorm:"type:timestamp;not null" json:"purchased_at"`
	Status      string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	AccountID   *string    `gorm:"type:char(36);default:null" json:"account_id,omitempty"`
	PromotedAt  *time.Time `gorm:"type:timestamp;default:null" json:"promoted_at,omitempty"`
}

func (p *PendingEntitlement) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
