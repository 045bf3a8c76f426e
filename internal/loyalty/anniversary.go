package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/notify"
	"github.com/perkmill/perkmill/internal/settings"
	"github.com/perkmill/perkmill/internal/shopify"
)

// Anniversary badge criteria are expressed in account-age days; the 1, 2,
// and 5 year anniversaries map onto these fixed values.
var anniversaryBadgeDays = map[int]int64{
	1: 365,
	2: 730,
	5: 1825,
}

// AnniversaryService issues enrollment-anniversary rewards.
type AnniversaryService struct {
	db           *gorm.DB
	gamification *GamificationService
	notifier     notify.Sender
	discounts    shopify.DiscountIssuer
	now          func() time.Time
}

// NewAnniversaryService constructs an AnniversaryService.
func NewAnniversaryService(db *gorm.DB, gamification *GamificationService, notifier notify.Sender, discounts shopify.DiscountIssuer) *AnniversaryService {
	return &AnniversaryService{
		db:           db,
		gamification: gamification,
		notifier:     notifier,
		discounts:    discounts,
		now:          time.Now,
	}
}

// IssueAnniversaryReward issues at most one anniversary reward per member per
// calendar year.
//
// The primary effect (balance mutation or discount code) commits in a single
// transaction together with the idempotency marker; badge award, activity
// log, and notification run afterwards as best-effort secondary effects that
// never roll back the reward.
func (s *AnniversaryService) IssueAnniversaryReward(ctx context.Context, memberID uint64) (*Result, error) {
	var member models.Member
	if errFind := s.db.WithContext(ctx).First(&member, memberID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return failure("member not found"), nil
		}
		return nil, fmt.Errorf("loyalty: load member %d: %w", memberID, errFind)
	}

	tenant, cfg, errConfig := s.tenantConfig(ctx, member.TenantID)
	if errConfig != nil {
		return nil, errConfig
	}
	if !tenant.IsActive {
		return failure("shop is deactivated"), nil
	}
	if !cfg.Enabled {
		return failure("anniversary rewards are disabled"), nil
	}
	if member.Status != models.MemberStatusActive {
		return failure("member is not active"), nil
	}

	now := s.now()
	currentYear := now.Year()
	if member.LastAnniversaryRewardYear != nil && *member.LastAnniversaryRewardYear == currentYear {
		return &Result{AlreadyRewarded: true, Error: "already rewarded this year"}, nil
	}

	annivYear := anniversaryYear(member.EnrolledAt, now)
	if annivYear < 1 {
		return failure("no anniversary reached yet"), nil
	}

	amount := cfg.AmountForYear(annivYear)
	if amount <= 0 {
		return failure("no reward amount configured"), nil
	}

	result := &Result{
		RewardType:      cfg.RewardType,
		AnniversaryYear: annivYear,
	}
	source := fmt.Sprintf("anniversary reward (year %d)", annivYear)

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Conditional update closes the check-then-set race: only one
		// concurrent caller can flip the marker to the current year.
		res := tx.Model(&models.Member{}).
			Where("id = ? AND (last_anniversary_reward_year IS NULL OR last_anniversary_reward_year <> ?)", member.ID, currentYear).
			Update("last_anniversary_reward_year", currentYear)
		if res.Error != nil {
			return fmt.Errorf("loyalty: mark anniversary year: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			result = &Result{AlreadyRewarded: true, Error: "already rewarded this year"}
			return errAlreadyRewarded
		}

		switch cfg.RewardType {
		case settings.RewardPoints:
			points := int64(amount)
			if errAdd := addPoints(tx, member.TenantID, member.ID, points, source); errAdd != nil {
				return errAdd
			}
			result.PointsAwarded = points
		case settings.RewardCredit:
			if errAdd := addCredit(tx, member.TenantID, member.ID, amount, source); errAdd != nil {
				return errAdd
			}
			result.CreditAwarded = amount
		case settings.RewardDiscountCode:
			// Code issuance IS the reward here: a failed external call
			// aborts the attempt and leaves the marker unset for a retry.
			code, errIssue := s.discounts.CreateDiscountCode(ctx, tenant.ShopDomain, tenant.AccessToken, shopify.DiscountRequest{
				CustomerID: member.ShopifyCustomerID,
				Amount:     amount,
				ValidDays:  cfg.DiscountValidDays,
				CodePrefix: "ANNIV",
			})
			if errIssue != nil {
				log.WithError(errIssue).WithField("member_id", member.ID).Warn("discount code issuance failed")
				result = failure("discount code issuance failed: " + errIssue.Error())
				return errDiscountFailed
			}
			result.DiscountCode = code
		default:
			return fmt.Errorf("loyalty: unknown reward type %q", cfg.RewardType)
		}
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, errAlreadyRewarded) || errors.Is(errTx, errDiscountFailed) {
			return result, nil
		}
		return nil, errTx
	}
	result.Success = true

	s.runSecondaryEffects(ctx, tenant, &member, cfg, result)
	return result, nil
}

// errAlreadyRewarded aborts the reward transaction when the idempotency
// marker was flipped by a concurrent caller.
var errAlreadyRewarded = errors.New("loyalty: already rewarded")

// errDiscountFailed aborts the reward transaction when code issuance, which
// is the reward itself, fails; the rollback clears the idempotency marker so
// the next run retries.
var errDiscountFailed = errors.New("loyalty: discount issuance failed")

// runSecondaryEffects performs the best-effort work after the reward commit.
// Failures are logged and collected on the result, never propagated.
func (s *AnniversaryService) runSecondaryEffects(ctx context.Context, tenant *models.Tenant, member *models.Member, cfg settings.AnniversaryConfig, result *Result) {
	if days, ok := anniversaryBadgeDays[result.AnniversaryYear]; ok {
		if errBadge := s.gamification.AwardAnniversaryBadge(ctx, member.ID, days); errBadge != nil {
			log.WithError(errBadge).WithField("member_id", member.ID).Warn("anniversary badge award failed")
			result.SideEffectErrors = append(result.SideEffectErrors, "badge award: "+errBadge.Error())
		}
	}

	activity := models.MemberActivity{
		TenantID:     member.TenantID,
		MemberID:     member.ID,
		ActivityType: models.ActivityAnniversaryReward,
		Description:  fmt.Sprintf("Year %d anniversary reward", result.AnniversaryYear),
		Points:       result.PointsAwarded,
		Credit:       result.CreditAwarded,
	}
	if errLog := s.db.WithContext(ctx).Create(&activity).Error; errLog != nil {
		log.WithError(errLog).WithField("member_id", member.ID).Warn("anniversary activity log failed")
		result.SideEffectErrors = append(result.SideEffectErrors, "activity log: "+errLog.Error())
	}

	sendResult := s.notifier.Send(ctx, notify.Message{
		TenantID: tenant.ID,
		MemberID: member.ID,
		Email:    member.Email,
		Template: "anniversary_reward",
		Params: map[string]string{
			"anniversary_year": strconv.Itoa(result.AnniversaryYear),
			"message":          cfg.MessageTemplate,
			"discount_code":    result.DiscountCode,
		},
	})
	if !sendResult.Sent {
		result.SideEffectErrors = append(result.SideEffectErrors, "notification: "+sendResult.Error)
	}
}

// SendAnniversaryReminder sends an advance notification when the member's
// next anniversary is exactly the configured number of days away. It is
// independent of reward issuance.
func (s *AnniversaryService) SendAnniversaryReminder(ctx context.Context, memberID uint64) (*Result, error) {
	var member models.Member
	if errFind := s.db.WithContext(ctx).First(&member, memberID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return failure("member not found"), nil
		}
		return nil, fmt.Errorf("loyalty: load member %d: %w", memberID, errFind)
	}

	tenant, cfg, errConfig := s.tenantConfig(ctx, member.TenantID)
	if errConfig != nil {
		return nil, errConfig
	}
	if !cfg.Enabled {
		return failure("anniversary rewards are disabled"), nil
	}
	if member.Status != models.MemberStatusActive {
		return failure("member is not active"), nil
	}

	days := daysUntilAnniversary(member.EnrolledAt, s.now())
	if days != cfg.ReminderDaysBefore {
		return failure("not within the reminder window"), nil
	}

	sendResult := s.notifier.Send(ctx, notify.Message{
		TenantID: tenant.ID,
		MemberID: member.ID,
		Email:    member.Email,
		Template: "anniversary_reminder",
		Params: map[string]string{
			"days_until": strconv.Itoa(days),
		},
	})
	if !sendResult.Sent {
		return failure("notification failed: " + sendResult.Error), nil
	}
	return &Result{Success: true}, nil
}

func (s *AnniversaryService) tenantConfig(ctx context.Context, tenantID uint64) (*models.Tenant, settings.AnniversaryConfig, error) {
	var tenant models.Tenant
	if errFind := s.db.WithContext(ctx).First(&tenant, tenantID).Error; errFind != nil {
		return nil, settings.AnniversaryConfig{}, fmt.Errorf("loyalty: load tenant %d: %w", tenantID, errFind)
	}
	cfg, errDecode := settings.ForTenant(&tenant)
	if errDecode != nil {
		return nil, settings.AnniversaryConfig{}, errDecode
	}
	return &tenant, cfg.Anniversary, nil
}

// anniversaryYear returns the anniversary a member celebrates in the year of
// now: elapsed full years since enrollment, plus one when this year's
// anniversary date is still ahead.
func anniversaryYear(enrolledAt, now time.Time) int {
	return now.Year() - enrolledAt.Year()
}

// daysUntilAnniversary returns the number of days from now until the next
// occurrence of the enrollment month/day, zero on the anniversary itself.
func daysUntilAnniversary(enrolledAt, now time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	next := time.Date(now.Year(), enrolledAt.Month(), enrolledAt.Day(), 0, 0, 0, 0, time.UTC)
	if next.Before(today) {
		next = time.Date(now.Year()+1, enrolledAt.Month(), enrolledAt.Day(), 0, 0, 0, 0, time.UTC)
	}
	return int(next.Sub(today).Hours() / 24)
}

// isAnniversaryToday reports whether the enrollment month/day matches today.
func isAnniversaryToday(enrolledAt, now time.Time) bool {
	return enrolledAt.Month() == now.Month() && enrolledAt.Day() == now.Day()
}

// RunAnniversaryRewards iterates every active member of every active tenant
// whose anniversary falls on today and issues their reward. Each member is
// processed in its own transaction, so a mid-run crash keeps already
// processed members committed.
func (s *AnniversaryService) RunAnniversaryRewards(ctx context.Context, dryRun bool) (*BatchSummary, error) {
	return s.runBatch(ctx, dryRun, func(member *models.Member, now time.Time) bool {
		return isAnniversaryToday(member.EnrolledAt, now)
	}, func(memberID uint64) (*Result, error) {
		return s.IssueAnniversaryReward(ctx, memberID)
	})
}

// RunAnniversaryReminders iterates active members and sends reminders to
// those inside their tenant's configured reminder window.
func (s *AnniversaryService) RunAnniversaryReminders(ctx context.Context, dryRun bool) (*BatchSummary, error) {
	return s.runBatch(ctx, dryRun, func(*models.Member, time.Time) bool {
		// The per-member reminder check owns the window comparison.
		return true
	}, func(memberID uint64) (*Result, error) {
		return s.SendAnniversaryReminder(ctx, memberID)
	})
}

func (s *AnniversaryService) runBatch(ctx context.Context, dryRun bool, eligible func(*models.Member, time.Time) bool, run func(uint64) (*Result, error)) (*BatchSummary, error) {
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
			Where("tenant_id = ? AND status = ?", tenants[i].ID, models.MemberStatusActive).
			Order("id ASC").
			Find(&members).Error; errFind != nil {
			return summary, fmt.Errorf("loyalty: load members for tenant %d: %w", tenants[i].ID, errFind)
		}
		for j := range members {
			if !eligible(&members[j], now) {
				continue
			}
			if dryRun {
				summary.Processed++
				summary.Skipped++
				continue
			}
			result, errRun := run(members[j].ID)
			if errRun != nil {
				log.WithError(errRun).WithField("member_id", members[j].ID).Warn("anniversary batch: member failed")
			}
			summary.tally(result, errRun)
		}
	}
	return summary, nil
}
