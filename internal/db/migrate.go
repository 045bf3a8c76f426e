package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/models"
)

// Migrate applies the schema for every persisted model.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.Tenant{},
		&models.Member{},
		&models.LedgerEntry{},
		&models.Badge{},
		&models.MemberBadge{},
		&models.Milestone{},
		&models.MemberMilestone{},
		&models.MemberStreak{},
		&models.GuestPoints{},
		&models.MemberActivity{},
		&models.Referral{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
