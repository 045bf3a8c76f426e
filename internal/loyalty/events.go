package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/settings"
)

// EventsService translates commerce events (orders, trade-ins, referrals)
// into member statistics updates and re-triggers gamification checks.
type EventsService struct {
	db           *gorm.DB
	gamification *GamificationService
	now          func() time.Time
}

// NewEventsService constructs an EventsService.
func NewEventsService(db *gorm.DB, gamification *GamificationService) *EventsService {
	return &EventsService{db: db, gamification: gamification, now: time.Now}
}

// RecordPurchase updates the member's purchase statistics, logs the
// activity, extends the streak, and runs badge and milestone checks.
func (s *EventsService) RecordPurchase(ctx context.Context, memberID uint64, orderTotal float64) error {
	var member models.Member
	if errFind := s.db.WithContext(ctx).First(&member, memberID).Error; errFind != nil {
		return fmt.Errorf("loyalty: load member %d: %w", memberID, errFind)
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Member{}).
			Where("id = ?", member.ID).
			Updates(map[string]any{
				"purchase_count": gorm.Expr("purchase_count + 1"),
				"total_spent":    gorm.Expr("total_spent + ?", orderTotal),
			})
		if res.Error != nil {
			return fmt.Errorf("loyalty: bump purchase stats: %w", res.Error)
		}

		activity := models.MemberActivity{
			TenantID:     member.TenantID,
			MemberID:     member.ID,
			ActivityType: models.ActivityPurchase,
			Description:  fmt.Sprintf("Order for %.2f", orderTotal),
			Credit:       0,
		}
		return tx.Create(&activity).Error
	})
	if errTx != nil {
		return errTx
	}

	if _, errStreak := s.gamification.UpdateStreak(ctx, member.ID); errStreak != nil {
		log.WithError(errStreak).WithField("member_id", member.ID).Warn("purchase streak update failed")
	}
	if _, errMilestones := s.gamification.CheckMilestones(ctx, member.ID); errMilestones != nil {
		log.WithError(errMilestones).WithField("member_id", member.ID).Warn("purchase milestone check failed")
	}
	return nil
}

// RecordTradeIn bumps the member's trade-in counter and re-runs badge and
// milestone checks.
func (s *EventsService) RecordTradeIn(ctx context.Context, memberID uint64) error {
	res := s.db.WithContext(ctx).Model(&models.Member{}).
		Where("id = ?", memberID).
		Update("trade_in_count", gorm.Expr("trade_in_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("loyalty: bump trade-in count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("loyalty: member %d not found", memberID)
	}

	if _, errBadges := s.gamification.CheckAndAwardBadges(ctx, memberID); errBadges != nil {
		log.WithError(errBadges).WithField("member_id", memberID).Warn("trade-in badge check failed")
	}
	if _, errMilestones := s.gamification.CheckMilestones(ctx, memberID); errMilestones != nil {
		log.WithError(errMilestones).WithField("member_id", memberID).Warn("trade-in milestone check failed")
	}
	return nil
}

// CompleteReferral marks a pending referral completed and pays out the
// configured points to the referrer. The referred member's welcome points
// are paid by the caller when the member enrolls.
func (s *EventsService) CompleteReferral(ctx context.Context, code, referredEmail string) (*Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return failure("referral code is required"), nil
	}

	var referral models.Referral
	if errFind := s.db.WithContext(ctx).
		Where("code = ?", code).
		First(&referral).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return failure("referral code not found"), nil
		}
		return nil, fmt.Errorf("loyalty: load referral: %w", errFind)
	}
	if referral.Status == models.ReferralCompleted {
		return &Result{AlreadyRewarded: true, Error: "referral already completed"}, nil
	}

	var tenant models.Tenant
	if errFind := s.db.WithContext(ctx).First(&tenant, referral.TenantID).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load tenant %d: %w", referral.TenantID, errFind)
	}
	decoded, errDecode := settings.ForTenant(&tenant)
	if errDecode != nil {
		return nil, errDecode
	}
	if !decoded.Referral.Enabled {
		return failure("referrals are disabled"), nil
	}

	result := &Result{}
	now := s.now().UTC()
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Referral{}).
			Where("id = ? AND status = ?", referral.ID, models.ReferralPending).
			Updates(map[string]any{
				"status":         models.ReferralCompleted,
				"referred_email": strings.ToLower(strings.TrimSpace(referredEmail)),
				"completed_at":   now,
			})
		if res.Error != nil {
			return fmt.Errorf("loyalty: complete referral: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			result = &Result{AlreadyRewarded: true, Error: "referral already completed"}
			return errAlreadyRewarded
		}

		bump := tx.Model(&models.Member{}).
			Where("id = ?", referral.ReferrerMemberID).
			Update("referral_count", gorm.Expr("referral_count + 1"))
		if bump.Error != nil {
			return fmt.Errorf("loyalty: bump referral count: %w", bump.Error)
		}

		if decoded.Referral.ReferrerPoints > 0 {
			if errAdd := addPoints(tx, referral.TenantID, referral.ReferrerMemberID, decoded.Referral.ReferrerPoints, "referral completed"); errAdd != nil {
				return errAdd
			}
			result.PointsAwarded = decoded.Referral.ReferrerPoints
		}

		activity := models.MemberActivity{
			TenantID:     referral.TenantID,
			MemberID:     referral.ReferrerMemberID,
			ActivityType: models.ActivityReferral,
			Description:  "Referral completed: " + code,
			Points:       decoded.Referral.ReferrerPoints,
		}
		return tx.Create(&activity).Error
	})
	if errTx != nil {
		if errors.Is(errTx, errAlreadyRewarded) {
			return result, nil
		}
		return nil, errTx
	}
	result.Success = true

	if _, errBadges := s.gamification.CheckAndAwardBadges(ctx, referral.ReferrerMemberID); errBadges != nil {
		log.WithError(errBadges).WithField("member_id", referral.ReferrerMemberID).Warn("referral badge check failed")
	}
	return result, nil
}
