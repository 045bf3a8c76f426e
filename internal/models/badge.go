package models

import "time"

// BadgeCriteria enumerates the supported badge criteria types.
type BadgeCriteria string

const (
	CriteriaFirstPurchase     BadgeCriteria = "first_purchase"
	CriteriaTradeInCount      BadgeCriteria = "trade_in_count"
	CriteriaPointsEarned      BadgeCriteria = "points_earned"
	CriteriaReferralCount     BadgeCriteria = "referral_count"
	CriteriaTierReached       BadgeCriteria = "tier_reached"
	CriteriaStreakDays        BadgeCriteria = "streak_days"
	CriteriaMemberAnniversary BadgeCriteria = "member_anniversary"
	CriteriaTotalSpent        BadgeCriteria = "total_spent"
)

// KnownBadgeCriteria lists every valid criteria type for validation.
var KnownBadgeCriteria = []BadgeCriteria{
	CriteriaFirstPurchase,
	CriteriaTradeInCount,
	CriteriaPointsEarned,
	CriteriaReferralCount,
	CriteriaTierReached,
	CriteriaStreakDays,
	CriteriaMemberAnniversary,
	CriteriaTotalSpent,
}

// Valid reports whether c is a known criteria type.
func (c BadgeCriteria) Valid() bool {
	for _, known := range KnownBadgeCriteria {
		if c == known {
			return true
		}
	}
	return false
}

// Badge is a tenant-defined achievement definition.
type Badge struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.

	Name        string `gorm:"type:text;not null"` // Display name.
	Description string `gorm:"type:text"`          // Merchant-facing description.
	Icon        string `gorm:"type:text"`          // Icon identifier or URL.

	CriteriaType  BadgeCriteria `gorm:"type:text;not null"` // Predicate kind.
	CriteriaValue int64         `gorm:"not null;default:0"` // Threshold the member statistic must reach.

	RewardPoints int64   `gorm:"not null;default:0"`                    // Points paid out on award.
	RewardCredit float64 `gorm:"type:decimal(20,2);not null;default:0"` // Credit paid out on award.

	IsActive bool `gorm:"not null;default:true"` // Inactive badges are never evaluated.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// MemberBadge records that a member earned a badge. The composite unique
// index enforces at-most-once awarding.
type MemberBadge struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"`                              // Owning tenant.
	MemberID uint64 `gorm:"not null;index;uniqueIndex:idx_member_badge"` // Earning member.
	BadgeID  uint64 `gorm:"not null;index;uniqueIndex:idx_member_badge"` // Earned badge.

	Badge *Badge `gorm:"foreignKey:BadgeID"` // Badge definition.

	EarnedAt time.Time `gorm:"not null;autoCreateTime"` // Award timestamp.
}
