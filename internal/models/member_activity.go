package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity types recorded in the member activity log.
const (
	ActivityAnniversaryReward = "anniversary_reward"
	ActivityBirthdayReward    = "birthday_reward"
	ActivityBadgeEarned       = "badge_earned"
	ActivityMilestoneReached  = "milestone_reached"
	ActivityGuestPointsClaim  = "guest_points_claim"
	ActivityPurchase          = "purchase"
	ActivityReferral          = "referral"
)

// MemberActivity is an append-only audit row for a rewarded event. Rows are
// never mutated after creation.
type MemberActivity struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.
	MemberID uint64 `gorm:"not null;index"` // Acting member.

	ActivityType string `gorm:"type:text;not null;index"` // Event kind.
	Description  string `gorm:"type:text"`                // Human-readable summary.

	Points int64   `gorm:"not null;default:0"`                    // Points involved, if any.
	Credit float64 `gorm:"type:decimal(20,2);not null;default:0"` // Credit involved, if any.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Event-specific payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
