package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/notify"
	"github.com/perkmill/perkmill/internal/settings"
)

// BirthdayService issues birthday rewards. It mirrors the anniversary
// service without tiering and without the discount code payout path.
type BirthdayService struct {
	db       *gorm.DB
	notifier notify.Sender
	now      func() time.Time
}

// NewBirthdayService constructs a BirthdayService.
func NewBirthdayService(db *gorm.DB, notifier notify.Sender) *BirthdayService {
	return &BirthdayService{
		db:       db,
		notifier: notifier,
		now:      time.Now,
	}
}

// IssueBirthdayReward issues at most one birthday reward per member per
// calendar year, keyed by last_birthday_reward_year.
func (s *BirthdayService) IssueBirthdayReward(ctx context.Context, memberID uint64) (*Result, error) {
	var member models.Member
	if errFind := s.db.WithContext(ctx).First(&member, memberID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return failure("member not found"), nil
		}
		return nil, fmt.Errorf("loyalty: load member %d: %w", memberID, errFind)
	}

	var tenant models.Tenant
	if errFind := s.db.WithContext(ctx).First(&tenant, member.TenantID).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load tenant %d: %w", member.TenantID, errFind)
	}
	decoded, errDecode := settings.ForTenant(&tenant)
	if errDecode != nil {
		return nil, errDecode
	}
	cfg := decoded.Birthday

	if !tenant.IsActive {
		return failure("shop is deactivated"), nil
	}
	if !cfg.Enabled {
		return failure("birthday rewards are disabled"), nil
	}
	if member.Status != models.MemberStatusActive {
		return failure("member is not active"), nil
	}
	if member.Birthday == nil {
		return failure("member has no birthday on file"), nil
	}

	now := s.now()
	currentYear := now.Year()
	if member.LastBirthdayRewardYear != nil && *member.LastBirthdayRewardYear == currentYear {
		return &Result{AlreadyRewarded: true, Error: "already rewarded this year"}, nil
	}
	if cfg.RewardAmount <= 0 {
		return failure("no reward amount configured"), nil
	}

	result := &Result{RewardType: cfg.RewardType}
	const source = "birthday reward"

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Member{}).
			Where("id = ? AND (last_birthday_reward_year IS NULL OR last_birthday_reward_year <> ?)", member.ID, currentYear).
			Update("last_birthday_reward_year", currentYear)
		if res.Error != nil {
			return fmt.Errorf("loyalty: mark birthday year: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			result = &Result{AlreadyRewarded: true, Error: "already rewarded this year"}
			return errAlreadyRewarded
		}

		switch cfg.RewardType {
		case settings.RewardPoints:
			points := int64(cfg.RewardAmount)
			if errAdd := addPoints(tx, member.TenantID, member.ID, points, source); errAdd != nil {
				return errAdd
			}
			result.PointsAwarded = points
		case settings.RewardCredit:
			if errAdd := addCredit(tx, member.TenantID, member.ID, cfg.RewardAmount, source); errAdd != nil {
				return errAdd
			}
			result.CreditAwarded = cfg.RewardAmount
		default:
			return fmt.Errorf("loyalty: unknown birthday reward type %q", cfg.RewardType)
		}
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, errAlreadyRewarded) {
			return result, nil
		}
		return nil, errTx
	}
	result.Success = true

	activity := models.MemberActivity{
		TenantID:     member.TenantID,
		MemberID:     member.ID,
		ActivityType: models.ActivityBirthdayReward,
		Description:  "Birthday reward",
		Points:       result.PointsAwarded,
		Credit:       result.CreditAwarded,
	}
	if errLog := s.db.WithContext(ctx).Create(&activity).Error; errLog != nil {
		log.WithError(errLog).WithField("member_id", member.ID).Warn("birthday activity log failed")
		result.SideEffectErrors = append(result.SideEffectErrors, "activity log: "+errLog.Error())
	}

	sendResult := s.notifier.Send(ctx, notify.Message{
		TenantID: tenant.ID,
		MemberID: member.ID,
		Email:    member.Email,
		Template: "birthday_reward",
		Params:   map[string]string{"message": cfg.MessageTemplate},
	})
	if !sendResult.Sent {
		result.SideEffectErrors = append(result.SideEffectErrors, "notification: "+sendResult.Error)
	}
	return result, nil
}

// DaysUntilBirthday returns the number of days until the member's next
// birthday. Birthdays already passed this year count against next year.
func DaysUntilBirthday(birthday, now time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	next := time.Date(now.Year(), birthday.Month(), birthday.Day(), 0, 0, 0, 0, time.UTC)
	if next.Before(today) {
		next = time.Date(now.Year()+1, birthday.Month(), birthday.Day(), 0, 0, 0, 0, time.UTC)
	}
	return int(next.Sub(today).Hours() / 24)
}

// NormalizeBirthday projects a month/day onto the fixed placeholder year.
func NormalizeBirthday(month time.Month, day int) (time.Time, error) {
	if month < time.January || month > time.December {
		return time.Time{}, fmt.Errorf("loyalty: invalid birthday month %d", month)
	}
	normalized := time.Date(models.BirthdayYear, month, day, 0, 0, 0, 0, time.UTC)
	if normalized.Month() != month || normalized.Day() != day {
		return time.Time{}, fmt.Errorf("loyalty: invalid birthday day %d for month %s", day, month)
	}
	return normalized, nil
}

// RunBirthdayRewards issues rewards for every active member whose birthday
// is today, one transaction per member.
func (s *BirthdayService) RunBirthdayRewards(ctx context.Context, dryRun bool) (*BatchSummary, error) {
	var tenants []models.Tenant
	if errFind := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&tenants).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load tenants: %w", errFind)
	}

	summary := &BatchSummary{}
	now := s.now()
	for i := range tenants {
		var members []models.Member
		if errFind := s.db.WithContext(ctx).
			Where("tenant_id = ? AND status = ? AND birthday IS NOT NULL", tenants[i].ID, models.MemberStatusActive).
			Order("id ASC").
			Find(&members).Error; errFind != nil {
			return summary, fmt.Errorf("loyalty: load members for tenant %d: %w", tenants[i].ID, errFind)
		}
		for j := range members {
			birthday := members[j].Birthday
			if birthday == nil || birthday.Month() != now.Month() || birthday.Day() != now.Day() {
				continue
			}
			if dryRun {
				summary.Processed++
				summary.Skipped++
				continue
			}
			result, errRun := s.IssueBirthdayReward(ctx, members[j].ID)
			if errRun != nil {
				log.WithError(errRun).WithField("member_id", members[j].ID).Warn("birthday batch: member failed")
			}
			summary.tally(result, errRun)
		}
	}
	return summary, nil
}
