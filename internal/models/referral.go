package models

import "time"

// ReferralStatus describes the lifecycle state of a referral.
type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralCompleted ReferralStatus = "completed"
)

// Referral links a referring member to a referred customer via a share code.
type Referral struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID         uint64 `gorm:"not null;index"`                 // Owning tenant.
	ReferrerMemberID uint64 `gorm:"not null;index"`                 // Member that shared the code.
	Code             string `gorm:"type:text;not null;uniqueIndex"` // Share code.

	ReferredEmail string         `gorm:"type:text;index"`                            // Referred customer, once known.
	Status        ReferralStatus `gorm:"type:text;not null;default:'pending';index"` // Lifecycle state.

	CompletedAt *time.Time // First qualifying order time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
