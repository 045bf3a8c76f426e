package loyalty

import (
	"context"
	"testing"
	"time"

	"github.com/perkmill/perkmill/internal/models"
)

const anniversaryEnabled = `{
	"anniversary": {
		"enabled": true,
		"reward_type": "points",
		"reward_amount": 100,
		"discount_valid_days": 30
	}
}`

func newAnniversaryFixture(t *testing.T, settingsJSON string, now time.Time) (*AnniversaryService, *models.Tenant, *stubSender, *stubIssuer) {
	t.Helper()
	conn := setupTestDB(t)
	tenant := seedTenant(t, conn, settingsJSON)

	gamification := NewGamificationService(conn)
	gamification.now = fixedNow(now)

	sender := &stubSender{}
	issuer := &stubIssuer{code: "ANNIV-TESTCODE"}
	svc := NewAnniversaryService(conn, gamification, sender, issuer)
	svc.now = fixedNow(now)
	return svc, tenant, sender, issuer
}

func TestIssueAnniversaryRewardPoints(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, tenant, sender, _ := newAnniversaryFixture(t, anniversaryEnabled, now)
	member := seedMember(t, svc.db, tenant.ID, "a@b.com", now.AddDate(-1, 0, 0))

	badge := models.Badge{
		TenantID:      tenant.ID,
		Name:          "1 Year Member",
		CriteriaType:  models.CriteriaMemberAnniversary,
		CriteriaValue: 365,
		IsActive:      true,
	}
	if errCreate := svc.db.Create(&badge).Error; errCreate != nil {
		t.Fatalf("seed badge: %v", errCreate)
	}

	result, errIssue := svc.IssueAnniversaryReward(context.Background(), member.ID)
	if errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.AnniversaryYear != 1 {
		t.Fatalf("anniversary_year = %d, want 1", result.AnniversaryYear)
	}
	if result.PointsAwarded != 100 {
		t.Fatalf("points_awarded = %d, want 100", result.PointsAwarded)
	}

	reloaded := loadMember(t, svc.db, member.ID)
	if reloaded.PointsBalance != 100 {
		t.Fatalf("points_balance = %d, want 100", reloaded.PointsBalance)
	}
	if reloaded.LastAnniversaryRewardYear == nil || *reloaded.LastAnniversaryRewardYear != 2026 {
		t.Fatalf("idempotency marker not set: %+v", reloaded.LastAnniversaryRewardYear)
	}

	var earned models.MemberBadge
	if errFind := svc.db.Where("member_id = ? AND badge_id = ?", member.ID, badge.ID).First(&earned).Error; errFind != nil {
		t.Fatalf("expected 1 Year Member badge awarded: %v", errFind)
	}

	var entries []models.LedgerEntry
	if errFind := svc.db.Where("member_id = ?", member.ID).Find(&entries).Error; errFind != nil {
		t.Fatalf("load ledger: %v", errFind)
	}
	if len(entries) != 1 || entries[0].PointsDelta != 100 {
		t.Fatalf("ledger entries = %+v", entries)
	}

	var activities []models.MemberActivity
	if errFind := svc.db.Where("member_id = ? AND activity_type = ?", member.ID, models.ActivityAnniversaryReward).Find(&activities).Error; errFind != nil {
		t.Fatalf("load activities: %v", errFind)
	}
	if len(activities) != 1 {
		t.Fatalf("expected one anniversary activity, got %d", len(activities))
	}

	if len(sender.sent) != 1 || sender.sent[0].Template != "anniversary_reward" {
		t.Fatalf("notification not sent: %+v", sender.sent)
	}
}

func TestIssueAnniversaryRewardIdempotentPerYear(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, tenant, _, _ := newAnniversaryFixture(t, anniversaryEnabled, now)
	member := seedMember(t, svc.db, tenant.ID, "a@b.com", now.AddDate(-2, 0, 0))

	first, errFirst := svc.IssueAnniversaryReward(context.Background(), member.ID)
	if errFirst != nil || !first.Success {
		t.Fatalf("first issue failed: %+v %v", first, errFirst)
	}

	second, errSecond := svc.IssueAnniversaryReward(context.Background(), member.ID)
	if errSecond != nil {
		t.Fatalf("second issue: %v", errSecond)
	}
	if !second.AlreadyRewarded || second.Success {
		t.Fatalf("expected already_rewarded, got %+v", second)
	}

	reloaded := loadMember(t, svc.db, member.ID)
	if reloaded.PointsBalance != 100 {
		t.Fatalf("second call mutated balance: %d", reloaded.PointsBalance)
	}
}

func TestIssueAnniversaryRewardTieredFallback(t *testing.T) {
	t.Parallel()

	tiered := `{
		"anniversary": {
			"enabled": true,
			"reward_type": "points",
			"reward_amount": 100,
			"tiered_rewards": {"1": 50, "5": 500}
		}
	}`
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, tenant, _, _ := newAnniversaryFixture(t, tiered, now)

	// Third anniversary: absent from the tier map, flat amount applies.
	member := seedMember(t, svc.db, tenant.ID, "a@b.com", now.AddDate(-3, 0, 0))
	result, errIssue := svc.IssueAnniversaryReward(context.Background(), member.ID)
	if errIssue != nil || !result.Success {
		t.Fatalf("issue: %+v %v", result, errIssue)
	}
	if result.AnniversaryYear != 3 {
		t.Fatalf("anniversary_year = %d, want 3", result.AnniversaryYear)
	}
	if result.PointsAwarded != 100 {
		t.Fatalf("points_awarded = %d, want flat 100 (not 50 or 500)", result.PointsAwarded)
	}

	// First anniversary: tier override applies.
	other := seedMember(t, svc.db, tenant.ID, "c@d.com", now.AddDate(-1, 0, 0))
	tierResult, errTier := svc.IssueAnniversaryReward(context.Background(), other.ID)
	if errTier != nil || !tierResult.Success {
		t.Fatalf("issue: %+v %v", tierResult, errTier)
	}
	if tierResult.PointsAwarded != 50 {
		t.Fatalf("points_awarded = %d, want tiered 50", tierResult.PointsAwarded)
	}
}

func TestIssueAnniversaryRewardPreconditions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("feature disabled", func(t *testing.T) {
		svc, tenant, _, _ := newAnniversaryFixture(t, "{}", now)
		member := seedMember(t, svc.db, tenant.ID, "a@b.com", now.AddDate(-1, 0, 0))
		result, errIssue := svc.IssueAnniversaryReward(context.Background(), member.ID)
		if errIssue != nil {
			t.Fatalf("issue: %v", errIssue)
		}
		if result.Success || result.Error == "" {
			t.Fatalf("expected precondition failure, got %+v", result)
		}
	})

	t.Run("inactive member", func(t *testing.T) {
		svc, tenant, _, _ := newAnniversaryFixture(t, anniversaryEnabled, now)
		member := seedMember(t, svc.db, tenant.ID, "a@b.com", now.AddDate(-1, 0, 0))
		if errUpdate := svc.db.Model(member).Update("status", models.MemberStatusInactive).Error; errUpdate != nil {
			t.Fatalf("deactivate member: %v", errUpdate)
		}
		result, errIssue := svc.IssueAnniversaryReward(context.Background(), member.ID)
		if errIssue != nil {
			t.Fatalf("issue: %v", errIssue)
		}
		if result.Success {
			t.Fatalf("expected failure for inactive member, got %+v", result)
		}
	})

	t.Run("no anniversary yet", func(t *testing.T) {
		svc, tenant, _, _ := newAnniversaryFixture(t, anniversaryEnabled, now)
		// Enrolled earlier in the same calendar year: anniversary year 0.
		member := seedMember(t, svc.db, tenant.ID, "a@b.com", now.AddDate(0, -2, 0))
		result, errIssue := svc.IssueAnniversaryReward(context.Background(), member.ID)
		if errIssue != nil {
			t.Fatalf("issue: %v", errIssue)
		}
		if result.Success {
			t.Fatalf("expected failure before first anniversary, got %+v", result)
		}
	})

	t.Run("calendar year rollover reaches first anniversary", func(t *testing.T) {
		svc, tenant, _, _ := newAnniversaryFixture(t, anniversaryEnabled, now)
		// Enrolled late the previous year: the year difference is 1 even
		// though fewer than twelve months have elapsed.
		member := seedMember(t, svc.db, tenant.ID, "a@b.com", now.AddDate(0, -6, 0))
		result, errIssue := svc.IssueAnniversaryReward(context.Background(), member.ID)
		if errIssue != nil {
			t.Fatalf("issue: %v", errIssue)
		}
		if !result.Success || result.AnniversaryYear != 1 {
			t.Fatalf("expected year-1 reward, got %+v", result)
		}
	})

	t.Run("member missing", func(t *testing.T) {
		svc, _, _, _ := newAnniversaryFixture(t, anniversaryEnabled, now)
		result, errIssue := svc.IssueAnniversaryReward(context.Background(), 12345)
		if errIssue != nil {
			t.Fatalf("issue: %v", errIssue)
		}
		if result.Success {
			t.Fatalf("expected failure for missing member, got %+v", result)
		}
	})
}

func TestIssueAnniversaryDiscountCodeFailureAborts(t *testing.T) {
	t.Parallel()

	discountSettings := `{
		"anniversary": {
			"enabled": true,
			"reward_type": "discount_code",
			"reward_amount": 20,
			"discount_valid_days": 30
		}
	}`
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, tenant, _, issuer := newAnniversaryFixture(t, discountSettings, now)
	issuer.err = errIssuerDown
	member := seedMember(t, svc.db, tenant.ID, "a@b.com", now.AddDate(-1, 0, 0))

	result, errIssue := svc.IssueAnniversaryReward(context.Background(), member.ID)
	if errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}
	if result.Success {
		t.Fatalf("expected failed result, got %+v", result)
	}

	// The rollback must clear the marker so the next run retries.
	reloaded := loadMember(t, svc.db, member.ID)
	if reloaded.LastAnniversaryRewardYear != nil {
		t.Fatalf("marker set despite failed issuance: %v", *reloaded.LastAnniversaryRewardYear)
	}

	issuer.err = nil
	retry, errRetry := svc.IssueAnniversaryReward(context.Background(), member.ID)
	if errRetry != nil || !retry.Success {
		t.Fatalf("retry failed: %+v %v", retry, errRetry)
	}
	if retry.DiscountCode != "ANNIV-TESTCODE" {
		t.Fatalf("discount_code = %q", retry.DiscountCode)
	}
}

func TestIssueAnniversarySecondaryFailureKeepsPrimary(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, tenant, sender, _ := newAnniversaryFixture(t, anniversaryEnabled, now)
	sender.fail = true
	member := seedMember(t, svc.db, tenant.ID, "a@b.com", now.AddDate(-1, 0, 0))

	result, errIssue := svc.IssueAnniversaryReward(context.Background(), member.ID)
	if errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}
	if !result.Success {
		t.Fatalf("primary effect must succeed despite secondary failure: %+v", result)
	}
	if len(result.SideEffectErrors) == 0 {
		t.Fatal("expected side effect errors to be reported")
	}

	reloaded := loadMember(t, svc.db, member.ID)
	if reloaded.PointsBalance != 100 {
		t.Fatalf("points_balance = %d, want 100", reloaded.PointsBalance)
	}
}

func TestAnniversaryDateMath(t *testing.T) {
	t.Parallel()

	enrolled := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	if got := anniversaryYear(enrolled, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)); got != 2 {
		t.Fatalf("anniversaryYear on the date = %d, want 2", got)
	}
	if got := anniversaryYear(enrolled, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)); got != 2 {
		t.Fatalf("anniversaryYear before the date = %d, want 2 (upcoming)", got)
	}

	if got := daysUntilAnniversary(enrolled, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)); got != 0 {
		t.Fatalf("daysUntilAnniversary on the date = %d, want 0", got)
	}
	if got := daysUntilAnniversary(enrolled, time.Date(2026, 6, 12, 0, 0, 0, 0, time.UTC)); got != 3 {
		t.Fatalf("daysUntilAnniversary = %d, want 3", got)
	}
	// Anniversary already passed this year: count against next year.
	if got := daysUntilAnniversary(enrolled, time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC)); got != 364 {
		t.Fatalf("daysUntilAnniversary after the date = %d, want 364", got)
	}
}

func TestSendAnniversaryReminderWindow(t *testing.T) {
	t.Parallel()

	reminderSettings := `{
		"anniversary": {
			"enabled": true,
			"reward_type": "points",
			"reward_amount": 100,
			"reminder_days_before": 3
		}
	}`
	now := time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC)
	svc, tenant, sender, _ := newAnniversaryFixture(t, reminderSettings, now)

	inWindow := seedMember(t, svc.db, tenant.ID, "in@b.com", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
	outOfWindow := seedMember(t, svc.db, tenant.ID, "out@b.com", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	result, errSend := svc.SendAnniversaryReminder(context.Background(), inWindow.ID)
	if errSend != nil || !result.Success {
		t.Fatalf("reminder in window: %+v %v", result, errSend)
	}
	if len(sender.sent) != 1 || sender.sent[0].Template != "anniversary_reminder" {
		t.Fatalf("reminder not sent: %+v", sender.sent)
	}

	skipped, errSkip := svc.SendAnniversaryReminder(context.Background(), outOfWindow.ID)
	if errSkip != nil {
		t.Fatalf("reminder out of window: %v", errSkip)
	}
	if skipped.Success {
		t.Fatalf("expected skip outside window, got %+v", skipped)
	}
}

func TestRunAnniversaryRewardsBatch(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, tenant, _, _ := newAnniversaryFixture(t, anniversaryEnabled, now)

	today := seedMember(t, svc.db, tenant.ID, "today@b.com", now.AddDate(-1, 0, 0))
	seedMember(t, svc.db, tenant.ID, "other@b.com", now.AddDate(-1, 0, 5))

	dry, errDry := svc.RunAnniversaryRewards(context.Background(), true)
	if errDry != nil {
		t.Fatalf("dry run: %v", errDry)
	}
	if dry.Rewarded != 0 || dry.Processed != 1 {
		t.Fatalf("dry run summary = %+v", dry)
	}
	if loadMember(t, svc.db, today.ID).PointsBalance != 0 {
		t.Fatal("dry run mutated a balance")
	}

	summary, errRun := svc.RunAnniversaryRewards(context.Background(), false)
	if errRun != nil {
		t.Fatalf("run: %v", errRun)
	}
	if summary.Rewarded != 1 || summary.Processed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if loadMember(t, svc.db, today.ID).PointsBalance != 100 {
		t.Fatal("batch did not reward the anniversary member")
	}
}
