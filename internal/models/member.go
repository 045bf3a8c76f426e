package models

import "time"

// MemberStatus describes a member's enrollment state.
type MemberStatus string

const (
	// MemberStatusActive marks a member eligible for rewards.
	MemberStatusActive MemberStatus = "active"
	// MemberStatusInactive marks a member excluded from reward runs.
	MemberStatusInactive MemberStatus = "inactive"
)

// BirthdayYear is the placeholder year birthdays are normalized onto.
// Only the month and day carry meaning.
const BirthdayYear = 2000

// Member represents a customer enrolled in a tenant's loyalty program.
type Member struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64  `gorm:"not null;index;uniqueIndex:idx_tenant_email"` // Owning tenant.
	Tenant   *Tenant `gorm:"foreignKey:TenantID"`                         // Owning tenant record.

	Email             string `gorm:"type:text;not null;uniqueIndex:idx_tenant_email"` // Customer email, unique per tenant.
	ShopifyCustomerID string `gorm:"type:text;index"`                                 // Shopify customer reference.
	FirstName         string `gorm:"type:text"`                                       // Given name.
	LastName          string `gorm:"type:text"`                                       // Family name.

	Status MemberStatus `gorm:"type:text;not null;default:'active';index"` // Enrollment state.

	PointsBalance int64   `gorm:"not null;default:0"`                     // Redeemable points, additions only here.
	CreditBalance float64 `gorm:"type:decimal(20,2);not null;default:0"`  // Store credit balance.

	TotalPointsEarned int64   `gorm:"not null;default:0"`                    // Lifetime points, never decremented.
	TotalSpent        float64 `gorm:"type:decimal(20,2);not null;default:0"` // Lifetime order spend.
	PurchaseCount     int64   `gorm:"not null;default:0"`                    // Completed order count.
	TradeInCount      int64   `gorm:"not null;default:0"`                    // Completed trade-in count.
	ReferralCount     int64   `gorm:"not null;default:0"`                    // Completed referral count.
	TierLevel         int     `gorm:"not null;default:0"`                    // Current membership tier.

	EnrolledAt time.Time  `gorm:"not null"` // Program enrollment date; anniversary anchor.
	Birthday   *time.Time // Month/day only, normalized onto BirthdayYear.

	LastAnniversaryRewardYear *int `gorm:"index"` // Calendar year of the last anniversary reward.
	LastBirthdayRewardYear    *int `gorm:"index"` // Calendar year of the last birthday reward.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
