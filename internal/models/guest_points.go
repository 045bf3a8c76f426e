package models

import "time"

// GuestPointsStatus describes the lifecycle state of a guest points entry.
// Transitions are pending -> claimed and pending -> expired; both terminal.
type GuestPointsStatus string

const (
	GuestPointsPending GuestPointsStatus = "pending"
	GuestPointsClaimed GuestPointsStatus = "claimed"
	GuestPointsExpired GuestPointsStatus = "expired"
)

// GuestPoints holds points earned by a not-yet-enrolled customer, keyed by
// email until claimed by a new member or expired.
type GuestPoints struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"`           // Owning tenant.
	Email    string `gorm:"type:text;not null;index"` // Pre-enrollment customer identity.

	Points int64  `gorm:"not null"`           // Pending point value.
	Source string `gorm:"type:text;not null"` // Earning event, e.g. "purchase", "referral".

	Status GuestPointsStatus `gorm:"type:text;not null;default:'pending';index"` // Lifecycle state.

	ExpiresAt time.Time `gorm:"not null;index"` // Pending entries past this instant are expired by the sweep.

	ClaimedByMemberID *uint64    `gorm:"index"` // Member that claimed the entry.
	ClaimedAt         *time.Time // Claim timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
