package models

import "time"

// MilestoneMetric enumerates the aggregate statistics a milestone tracks.
type MilestoneMetric string

const (
	MetricTotalPoints MilestoneMetric = "total_points"
	MetricTradeIns    MilestoneMetric = "trade_ins"
	MetricPurchases   MilestoneMetric = "purchases"
	MetricTotalSpent  MilestoneMetric = "total_spent"
	MetricReferrals   MilestoneMetric = "referrals"
)

// KnownMilestoneMetrics lists every valid milestone metric for validation.
var KnownMilestoneMetrics = []MilestoneMetric{
	MetricTotalPoints,
	MetricTradeIns,
	MetricPurchases,
	MetricTotalSpent,
	MetricReferrals,
}

// Valid reports whether m is a known milestone metric.
func (m MilestoneMetric) Valid() bool {
	for _, known := range KnownMilestoneMetrics {
		if m == known {
			return true
		}
	}
	return false
}

// Milestone is a tenant-defined aggregate threshold with an optional
// jointly-awarded badge.
type Milestone struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.

	Name      string          `gorm:"type:text;not null"` // Display name.
	Metric    MilestoneMetric `gorm:"type:text;not null"` // Aggregate statistic tracked.
	Threshold int64           `gorm:"not null"`           // Value the statistic must reach.

	RewardPoints int64   `gorm:"not null;default:0"`                    // Points paid out on completion.
	RewardCredit float64 `gorm:"type:decimal(20,2);not null;default:0"` // Credit paid out on completion.

	BadgeID *uint64 `gorm:"index"` // Badge awarded jointly, if configured.

	IsActive bool `gorm:"not null;default:true"` // Inactive milestones are never evaluated.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// MemberMilestone records that a member reached a milestone; unique per
// (member, milestone).
type MemberMilestone struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID    uint64 `gorm:"not null;index"`                                  // Owning tenant.
	MemberID    uint64 `gorm:"not null;index;uniqueIndex:idx_member_milestone"` // Reaching member.
	MilestoneID uint64 `gorm:"not null;index;uniqueIndex:idx_member_milestone"` // Reached milestone.

	ReachedAt time.Time `gorm:"not null;autoCreateTime"` // Completion timestamp.
}
