package loyalty

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbutil "github.com/perkmill/perkmill/internal/db"
)

// lockForUpdate applies SELECT ... FOR UPDATE on dialects that support it.
// SQLite serializes writers on its own and rejects the clause.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if dbutil.IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
