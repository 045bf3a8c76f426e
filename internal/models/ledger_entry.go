package models

import "time"

// LedgerEntryType identifies which balance a ledger entry affects.
type LedgerEntryType string

const (
	// LedgerEntryPoints records a points balance change.
	LedgerEntryPoints LedgerEntryType = "points"
	// LedgerEntryCredit records a store credit balance change.
	LedgerEntryCredit LedgerEntryType = "credit"
)

// LedgerEntry is an append-only record of a balance-affecting event.
// Balances are denormalized running totals on the member row; the ledger
// exists for audit, not for recomputing balances.
type LedgerEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.
	MemberID uint64 `gorm:"not null;index"` // Affected member.

	EntryType   LedgerEntryType `gorm:"type:text;not null"`                    // Which balance changed.
	PointsDelta int64           `gorm:"not null;default:0"`                    // Points change, when EntryType is points.
	CreditDelta float64         `gorm:"type:decimal(20,2);not null;default:0"` // Credit change, when EntryType is credit.

	Source string `gorm:"type:text;not null"` // Human-readable origin, e.g. "anniversary reward (year 3)".

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
