package models

import "time"

// MemberStreak tracks a member's consecutive-day activity counter.
type MemberStreak struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"`       // Owning tenant.
	MemberID uint64 `gorm:"not null;uniqueIndex"` // One streak row per member.

	CurrentStreak int `gorm:"not null;default:0"` // Consecutive active days ending today.
	LongestStreak int `gorm:"not null;default:0"` // High-water mark.

	LastActivityDate time.Time `gorm:"not null"` // Date of the most recent counted activity.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
