package models

import (
	"time"

	"gorm.io/datatypes"
)

// Tenant represents an installed Shopify shop.
type Tenant struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ShopDomain  string `gorm:"type:text;not null;uniqueIndex"` // myshopify.com domain.
	Name        string `gorm:"type:text"`                      // Shop display name.
	AccessToken string `gorm:"type:text"`                      // Offline Admin API token.

	Settings datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Per-feature configuration blocks.

	IsActive bool `gorm:"not null;default:true"` // Cleared on app/uninstalled.

	InstalledAt   time.Time  `gorm:"not null;autoCreateTime"` // OAuth install time.
	UninstalledAt *time.Time // Uninstall time, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
