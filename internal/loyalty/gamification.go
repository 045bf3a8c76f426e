package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/perkmill/perkmill/internal/models"
)

// GamificationService evaluates badges, milestones, and activity streaks.
type GamificationService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGamificationService constructs a GamificationService.
func NewGamificationService(db *gorm.DB) *GamificationService {
	return &GamificationService{db: db, now: time.Now}
}

// MemberStats is the statistics snapshot badge and milestone predicates are
// evaluated against.
type MemberStats struct {
	TradeInCount   int64   `json:"trade_in_count"`
	LifetimePoints int64   `json:"lifetime_points"`
	AccountAgeDays int64   `json:"account_age_days"`
	CurrentStreak  int     `json:"current_streak"`
	TierLevel      int     `json:"tier_level"`
	TotalSpent     float64 `json:"total_spent"`
	HasPurchased   bool    `json:"has_purchased"`
	ReferralCount  int64   `json:"referral_count"`
}

// criteriaMet evaluates a badge predicate against the snapshot. The switch
// is exhaustive over models.KnownBadgeCriteria.
func criteriaMet(criteria models.BadgeCriteria, threshold int64, stats MemberStats) bool {
	switch criteria {
	case models.CriteriaFirstPurchase:
		return stats.HasPurchased
	case models.CriteriaTradeInCount:
		return stats.TradeInCount >= threshold
	case models.CriteriaPointsEarned:
		return stats.LifetimePoints >= threshold
	case models.CriteriaReferralCount:
		return stats.ReferralCount >= threshold
	case models.CriteriaTierReached:
		return int64(stats.TierLevel) >= threshold
	case models.CriteriaStreakDays:
		return int64(stats.CurrentStreak) >= threshold
	case models.CriteriaMemberAnniversary:
		return stats.AccountAgeDays >= threshold
	case models.CriteriaTotalSpent:
		return stats.TotalSpent >= float64(threshold)
	}
	return false
}

// criteriaValue returns the member's current value for a criteria, used by
// the progress projection.
func criteriaValue(criteria models.BadgeCriteria, stats MemberStats) float64 {
	switch criteria {
	case models.CriteriaFirstPurchase:
		if stats.HasPurchased {
			return 1
		}
		return 0
	case models.CriteriaTradeInCount:
		return float64(stats.TradeInCount)
	case models.CriteriaPointsEarned:
		return float64(stats.LifetimePoints)
	case models.CriteriaReferralCount:
		return float64(stats.ReferralCount)
	case models.CriteriaTierReached:
		return float64(stats.TierLevel)
	case models.CriteriaStreakDays:
		return float64(stats.CurrentStreak)
	case models.CriteriaMemberAnniversary:
		return float64(stats.AccountAgeDays)
	case models.CriteriaTotalSpent:
		return stats.TotalSpent
	}
	return 0
}

// milestoneValue returns the member's current value for a milestone metric.
func milestoneValue(metric models.MilestoneMetric, stats MemberStats) float64 {
	switch metric {
	case models.MetricTotalPoints:
		return float64(stats.LifetimePoints)
	case models.MetricTradeIns:
		return float64(stats.TradeInCount)
	case models.MetricPurchases:
		if stats.HasPurchased {
			// PurchaseCount is folded into HasPurchased for badges; the
			// milestone path loads the raw counter separately.
			return 1
		}
		return 0
	case models.MetricTotalSpent:
		return stats.TotalSpent
	case models.MetricReferrals:
		return float64(stats.ReferralCount)
	}
	return 0
}

// memberStats builds the statistics snapshot for a member.
func (s *GamificationService) memberStats(ctx context.Context, member *models.Member) (MemberStats, error) {
	stats := MemberStats{
		TradeInCount:   member.TradeInCount,
		LifetimePoints: member.TotalPointsEarned,
		TierLevel:      member.TierLevel,
		TotalSpent:     member.TotalSpent,
		HasPurchased:   member.PurchaseCount > 0,
		ReferralCount:  member.ReferralCount,
	}
	stats.AccountAgeDays = int64(s.now().Sub(member.EnrolledAt).Hours() / 24)

	var streak models.MemberStreak
	errFind := s.db.WithContext(ctx).
		Where("member_id = ?", member.ID).
		First(&streak).Error
	if errFind == nil {
		stats.CurrentStreak = streak.CurrentStreak
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return stats, fmt.Errorf("loyalty: load streak: %w", errFind)
	}
	return stats, nil
}

// BadgeAward describes one badge awarded by a check.
type BadgeAward struct {
	BadgeID uint64  `json:"badge_id"`
	Name    string  `json:"name"`
	Points  int64   `json:"points,omitempty"`
	Credit  float64 `json:"credit,omitempty"`
}

// CheckAndAwardBadges evaluates every active badge definition against the
// member's statistics snapshot and awards each newly qualified badge
// together with its reward payout. The whole batch commits in one
// transaction; the composite unique index keeps awards at-most-once.
func (s *GamificationService) CheckAndAwardBadges(ctx context.Context, memberID uint64) ([]BadgeAward, error) {
	var member models.Member
	if errFind := s.db.WithContext(ctx).First(&member, memberID).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load member %d: %w", memberID, errFind)
	}

	stats, errStats := s.memberStats(ctx, &member)
	if errStats != nil {
		return nil, errStats
	}

	var badges []models.Badge
	if errFind := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", member.TenantID, true).
		Order("id ASC").
		Find(&badges).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load badges: %w", errFind)
	}

	var awards []BadgeAward
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range badges {
			badge := &badges[i]
			if !criteriaMet(badge.CriteriaType, badge.CriteriaValue, stats) {
				continue
			}
			award, errAward := s.awardBadgeTx(tx, &member, badge)
			if errAward != nil {
				return errAward
			}
			if award != nil {
				awards = append(awards, *award)
			}
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return awards, nil
}

// awardBadgeTx awards a single badge inside tx. A nil award means the member
// already earned it.
func (s *GamificationService) awardBadgeTx(tx *gorm.DB, member *models.Member, badge *models.Badge) (*BadgeAward, error) {
	earned := models.MemberBadge{
		TenantID: member.TenantID,
		MemberID: member.ID,
		BadgeID:  badge.ID,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(&earned)
	if res.Error != nil {
		return nil, fmt.Errorf("loyalty: award badge %d: %w", badge.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	award := &BadgeAward{BadgeID: badge.ID, Name: badge.Name}
	source := fmt.Sprintf("badge earned: %s", badge.Name)
	if badge.RewardPoints > 0 {
		if errAdd := addPoints(tx, member.TenantID, member.ID, badge.RewardPoints, source); errAdd != nil {
			return nil, errAdd
		}
		award.Points = badge.RewardPoints
	}
	if badge.RewardCredit > 0 {
		if errAdd := addCredit(tx, member.TenantID, member.ID, badge.RewardCredit, source); errAdd != nil {
			return nil, errAdd
		}
		award.Credit = badge.RewardCredit
	}

	activity := models.MemberActivity{
		TenantID:     member.TenantID,
		MemberID:     member.ID,
		ActivityType: models.ActivityBadgeEarned,
		Description:  source,
		Points:       badge.RewardPoints,
		Credit:       badge.RewardCredit,
	}
	if errLog := tx.Create(&activity).Error; errLog != nil {
		return nil, fmt.Errorf("loyalty: log badge award: %w", errLog)
	}
	return award, nil
}

// AwardAnniversaryBadge awards the member_anniversary badge configured for
// the given account-age day count, if the tenant defines one.
func (s *GamificationService) AwardAnniversaryBadge(ctx context.Context, memberID uint64, days int64) error {
	var member models.Member
	if errFind := s.db.WithContext(ctx).First(&member, memberID).Error; errFind != nil {
		return fmt.Errorf("loyalty: load member %d: %w", memberID, errFind)
	}

	var badge models.Badge
	errFind := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ? AND criteria_type = ? AND criteria_value = ?",
			member.TenantID, true, models.CriteriaMemberAnniversary, days).
		First(&badge).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("loyalty: find anniversary badge: %w", errFind)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, errAward := s.awardBadgeTx(tx, &member, &badge)
		return errAward
	})
}

// StreakResult reports a streak update.
type StreakResult struct {
	CurrentStreak int          `json:"current_streak"`
	LongestStreak int          `json:"longest_streak"`
	Extended      bool         `json:"extended"`
	Reset         bool         `json:"reset"`
	BadgesAwarded []BadgeAward `json:"badges_awarded,omitempty"`
}

// UpdateStreak applies the day-delta state machine: same-day activity is a
// no-op, a one-day gap extends the streak and raises the high-water mark,
// any larger gap resets the streak to 1. Every update re-runs the badge
// check since streak badges may newly qualify.
func (s *GamificationService) UpdateStreak(ctx context.Context, memberID uint64) (*StreakResult, error) {
	var member models.Member
	if errFind := s.db.WithContext(ctx).First(&member, memberID).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load member %d: %w", memberID, errFind)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	result := &StreakResult{}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var streak models.MemberStreak
		errFind := lockForUpdate(tx).
			Where("member_id = ?", member.ID).
			First(&streak).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			streak = models.MemberStreak{
				TenantID:         member.TenantID,
				MemberID:         member.ID,
				CurrentStreak:    1,
				LongestStreak:    1,
				LastActivityDate: today,
			}
			if errCreate := tx.Create(&streak).Error; errCreate != nil {
				return fmt.Errorf("loyalty: create streak: %w", errCreate)
			}
			result.CurrentStreak = 1
			result.LongestStreak = 1
			result.Extended = true
			return nil
		}
		if errFind != nil {
			return fmt.Errorf("loyalty: load streak: %w", errFind)
		}

		last := streak.LastActivityDate.UTC().Truncate(24 * time.Hour)
		gapDays := int(today.Sub(last).Hours() / 24)
		switch {
		case gapDays <= 0:
			// Same-day activity leaves the streak untouched.
			result.CurrentStreak = streak.CurrentStreak
			result.LongestStreak = streak.LongestStreak
			return nil
		case gapDays == 1:
			streak.CurrentStreak++
			if streak.CurrentStreak > streak.LongestStreak {
				streak.LongestStreak = streak.CurrentStreak
			}
			result.Extended = true
		default:
			streak.CurrentStreak = 1
			result.Reset = true
		}
		streak.LastActivityDate = today

		if errSave := tx.Model(&models.MemberStreak{}).
			Where("id = ?", streak.ID).
			Updates(map[string]any{
				"current_streak":     streak.CurrentStreak,
				"longest_streak":     streak.LongestStreak,
				"last_activity_date": streak.LastActivityDate,
			}).Error; errSave != nil {
			return fmt.Errorf("loyalty: save streak: %w", errSave)
		}
		result.CurrentStreak = streak.CurrentStreak
		result.LongestStreak = streak.LongestStreak
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	awards, errCheck := s.CheckAndAwardBadges(ctx, memberID)
	if errCheck != nil {
		return nil, errCheck
	}
	result.BadgesAwarded = awards
	return result, nil
}

// MilestoneAward describes one milestone reached by a check.
type MilestoneAward struct {
	MilestoneID uint64  `json:"milestone_id"`
	Name        string  `json:"name"`
	Points      int64   `json:"points,omitempty"`
	Credit      float64 `json:"credit,omitempty"`
	BadgeID     *uint64 `json:"badge_id,omitempty"`
}

// CheckMilestones mirrors the badge check against aggregate thresholds. A
// milestone may configure a badge to award jointly in the same transaction.
func (s *GamificationService) CheckMilestones(ctx context.Context, memberID uint64) ([]MilestoneAward, error) {
	var member models.Member
	if errFind := s.db.WithContext(ctx).First(&member, memberID).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load member %d: %w", memberID, errFind)
	}

	stats, errStats := s.memberStats(ctx, &member)
	if errStats != nil {
		return nil, errStats
	}

	var milestones []models.Milestone
	if errFind := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", member.TenantID, true).
		Order("id ASC").
		Find(&milestones).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load milestones: %w", errFind)
	}

	var awards []MilestoneAward
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range milestones {
			m := &milestones[i]
			current := s.milestoneCurrent(m.Metric, &member, stats)
			if current < float64(m.Threshold) {
				continue
			}

			reached := models.MemberMilestone{
				TenantID:    member.TenantID,
				MemberID:    member.ID,
				MilestoneID: m.ID,
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "member_id"}, {Name: "milestone_id"}},
				DoNothing: true,
			}).Create(&reached)
			if res.Error != nil {
				return fmt.Errorf("loyalty: record milestone %d: %w", m.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}

			award := MilestoneAward{MilestoneID: m.ID, Name: m.Name, BadgeID: m.BadgeID}
			source := fmt.Sprintf("milestone reached: %s", m.Name)
			if m.RewardPoints > 0 {
				if errAdd := addPoints(tx, member.TenantID, member.ID, m.RewardPoints, source); errAdd != nil {
					return errAdd
				}
				award.Points = m.RewardPoints
			}
			if m.RewardCredit > 0 {
				if errAdd := addCredit(tx, member.TenantID, member.ID, m.RewardCredit, source); errAdd != nil {
					return errAdd
				}
				award.Credit = m.RewardCredit
			}

			if m.BadgeID != nil {
				var badge models.Badge
				errBadge := tx.First(&badge, *m.BadgeID).Error
				if errBadge == nil {
					if _, errAward := s.awardBadgeTx(tx, &member, &badge); errAward != nil {
						return errAward
					}
				} else if !errors.Is(errBadge, gorm.ErrRecordNotFound) {
					return fmt.Errorf("loyalty: load joint badge %d: %w", *m.BadgeID, errBadge)
				}
			}

			activity := models.MemberActivity{
				TenantID:     member.TenantID,
				MemberID:     member.ID,
				ActivityType: models.ActivityMilestoneReached,
				Description:  source,
				Points:       m.RewardPoints,
				Credit:       m.RewardCredit,
			}
			if errLog := tx.Create(&activity).Error; errLog != nil {
				return fmt.Errorf("loyalty: log milestone: %w", errLog)
			}
			awards = append(awards, award)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return awards, nil
}

// milestoneCurrent resolves the raw counter for a milestone metric.
func (s *GamificationService) milestoneCurrent(metric models.MilestoneMetric, member *models.Member, stats MemberStats) float64 {
	if metric == models.MetricPurchases {
		return float64(member.PurchaseCount)
	}
	return milestoneValue(metric, stats)
}

// ProgressItem reports a member's clamped progress toward one badge or
// milestone.
type ProgressItem struct {
	Kind      string  `json:"kind"` // "badge" or "milestone"
	ID        uint64  `json:"id"`
	Name      string  `json:"name"`
	Current   float64 `json:"current"`
	Target    float64 `json:"target"`
	Percent   float64 `json:"percent"`
	Completed bool    `json:"completed"`
}

// MemberProgress recomputes the statistics snapshot and returns progress
// toward every active badge and milestone. Read-only; no state changes.
func (s *GamificationService) MemberProgress(ctx context.Context, memberID uint64) ([]ProgressItem, error) {
	var member models.Member
	if errFind := s.db.WithContext(ctx).First(&member, memberID).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load member %d: %w", memberID, errFind)
	}

	stats, errStats := s.memberStats(ctx, &member)
	if errStats != nil {
		return nil, errStats
	}

	earnedBadges := map[uint64]bool{}
	var memberBadges []models.MemberBadge
	if errFind := s.db.WithContext(ctx).
		Where("member_id = ?", member.ID).
		Find(&memberBadges).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load earned badges: %w", errFind)
	}
	for i := range memberBadges {
		earnedBadges[memberBadges[i].BadgeID] = true
	}

	reachedMilestones := map[uint64]bool{}
	var memberMilestones []models.MemberMilestone
	if errFind := s.db.WithContext(ctx).
		Where("member_id = ?", member.ID).
		Find(&memberMilestones).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load reached milestones: %w", errFind)
	}
	for i := range memberMilestones {
		reachedMilestones[memberMilestones[i].MilestoneID] = true
	}

	var badges []models.Badge
	if errFind := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", member.TenantID, true).
		Order("id ASC").
		Find(&badges).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load badges: %w", errFind)
	}
	var milestones []models.Milestone
	if errFind := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", member.TenantID, true).
		Order("id ASC").
		Find(&milestones).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load milestones: %w", errFind)
	}

	items := make([]ProgressItem, 0, len(badges)+len(milestones))
	for i := range badges {
		b := &badges[i]
		item := ProgressItem{
			Kind:      "badge",
			ID:        b.ID,
			Name:      b.Name,
			Current:   criteriaValue(b.CriteriaType, stats),
			Target:    float64(b.CriteriaValue),
			Completed: earnedBadges[b.ID],
		}
		if b.CriteriaType == models.CriteriaFirstPurchase {
			item.Target = 1
		}
		item.Percent = clampPercent(item.Current, item.Target)
		items = append(items, item)
	}
	for i := range milestones {
		m := &milestones[i]
		item := ProgressItem{
			Kind:      "milestone",
			ID:        m.ID,
			Name:      m.Name,
			Current:   s.milestoneCurrent(m.Metric, &member, stats),
			Target:    float64(m.Threshold),
			Completed: reachedMilestones[m.ID],
		}
		item.Percent = clampPercent(item.Current, item.Target)
		items = append(items, item)
	}
	return items, nil
}

// clampPercent returns current/target as a percentage clamped to [0, 100].
func clampPercent(current, target float64) float64 {
	if target <= 0 {
		return 100
	}
	pct := current / target * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
