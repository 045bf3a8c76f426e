package loyalty

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/models"
)

// addPoints credits points to a member inside tx: the denormalized balance
// and lifetime total are bumped and a ledger row is appended together.
func addPoints(tx *gorm.DB, tenantID, memberID uint64, points int64, source string) error {
	if points <= 0 {
		return fmt.Errorf("loyalty: non-positive points %d", points)
	}
	res := tx.Model(&models.Member{}).
		Where("id = ? AND tenant_id = ?", memberID, tenantID).
		Updates(map[string]any{
			"points_balance":      gorm.Expr("points_balance + ?", points),
			"total_points_earned": gorm.Expr("total_points_earned + ?", points),
		})
	if res.Error != nil {
		return fmt.Errorf("loyalty: bump points balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("loyalty: member %d not found", memberID)
	}

	entry := models.LedgerEntry{
		TenantID:    tenantID,
		MemberID:    memberID,
		EntryType:   models.LedgerEntryPoints,
		PointsDelta: points,
		Source:      source,
	}
	if errCreate := tx.Create(&entry).Error; errCreate != nil {
		return fmt.Errorf("loyalty: append points ledger entry: %w", errCreate)
	}
	return nil
}

// addCredit credits store credit to a member inside tx, mirroring addPoints.
func addCredit(tx *gorm.DB, tenantID, memberID uint64, amount float64, source string) error {
	if amount <= 0 {
		return fmt.Errorf("loyalty: non-positive credit %v", amount)
	}
	res := tx.Model(&models.Member{}).
		Where("id = ? AND tenant_id = ?", memberID, tenantID).
		Update("credit_balance", gorm.Expr("credit_balance + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("loyalty: bump credit balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("loyalty: member %d not found", memberID)
	}

	entry := models.LedgerEntry{
		TenantID:    tenantID,
		MemberID:    memberID,
		EntryType:   models.LedgerEntryCredit,
		CreditDelta: amount,
		Source:      source,
	}
	if errCreate := tx.Create(&entry).Error; errCreate != nil {
		return fmt.Errorf("loyalty: append credit ledger entry: %w", errCreate)
	}
	return nil
}
