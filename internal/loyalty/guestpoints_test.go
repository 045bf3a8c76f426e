package loyalty

import (
	"context"
	"testing"
	"time"

	"github.com/perkmill/perkmill/internal/models"
)

const guestPointsEnabled = `{"guest_points": {"enabled": true, "expiry_days": 30}}`

func TestAwardGuestPoints(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	conn := setupTestDB(t)
	tenant := seedTenant(t, conn, guestPointsEnabled)
	svc := NewGuestPointsService(conn)
	svc.now = fixedNow(now)

	result, errAward := svc.AwardGuestPoints(context.Background(), tenant.ID, "Guest@B.com", 50, "purchase")
	if errAward != nil || !result.Success {
		t.Fatalf("award: %+v %v", result, errAward)
	}
	if !result.ExpiresAt.Equal(now.AddDate(0, 0, 30)) {
		t.Fatalf("expires_at = %v", result.ExpiresAt)
	}

	// Emails are normalized to lower case.
	summary, errPending := svc.PendingPoints(context.Background(), tenant.ID, "guest@b.com")
	if errPending != nil {
		t.Fatalf("pending: %v", errPending)
	}
	if summary.TotalPoints != 50 || len(summary.Entries) != 1 {
		t.Fatalf("pending summary = %+v", summary)
	}
}

func TestAwardGuestPointsRejectsExistingMember(t *testing.T) {
	t.Parallel()

	conn := setupTestDB(t)
	tenant := seedTenant(t, conn, guestPointsEnabled)
	seedMember(t, conn, tenant.ID, "taken@b.com", time.Now().UTC())
	svc := NewGuestPointsService(conn)

	result, errAward := svc.AwardGuestPoints(context.Background(), tenant.ID, "taken@b.com", 50, "purchase")
	if errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	if result.Success {
		t.Fatal("guest points are strictly pre-enrollment; award must be rejected")
	}
}

func TestClaimPointsMovesFullPendingSum(t *testing.T) {
	t.Parallel()

	conn := setupTestDB(t)
	tenant := seedTenant(t, conn, guestPointsEnabled)
	svc := NewGuestPointsService(conn)

	if _, errAward := svc.AwardGuestPoints(context.Background(), tenant.ID, "a@b.com", 50, "purchase"); errAward != nil {
		t.Fatalf("award: %v", errAward)
	}
	if _, errAward := svc.AwardGuestPoints(context.Background(), tenant.ID, "a@b.com", 30, "referral"); errAward != nil {
		t.Fatalf("award: %v", errAward)
	}

	summary, errPending := svc.PendingPoints(context.Background(), tenant.ID, "a@b.com")
	if errPending != nil {
		t.Fatalf("pending: %v", errPending)
	}
	if summary.TotalPoints != 80 || len(summary.Entries) != 2 {
		t.Fatalf("pending summary = %+v", summary)
	}

	member := seedMember(t, conn, tenant.ID, "a@b.com", time.Now().UTC())
	claim, errClaim := svc.ClaimPoints(context.Background(), "a@b.com", member.ID)
	if errClaim != nil {
		t.Fatalf("claim: %v", errClaim)
	}
	if claim.Claimed != 80 || claim.Entries != 2 {
		t.Fatalf("claim = %+v", claim)
	}

	reloaded := loadMember(t, conn, member.ID)
	if reloaded.PointsBalance != 80 {
		t.Fatalf("points_balance = %d, want 80", reloaded.PointsBalance)
	}

	var entries []models.GuestPoints
	if errFind := conn.Where("tenant_id = ? AND email = ?", tenant.ID, "a@b.com").Find(&entries).Error; errFind != nil {
		t.Fatalf("load entries: %v", errFind)
	}
	for _, entry := range entries {
		if entry.Status != models.GuestPointsClaimed {
			t.Fatalf("entry %d status = %s, want claimed", entry.ID, entry.Status)
		}
		if entry.ClaimedByMemberID == nil || *entry.ClaimedByMemberID != member.ID {
			t.Fatalf("entry %d not attributed to member", entry.ID)
		}
	}

	// A second claim with nothing pending returns zero without error.
	again, errAgain := svc.ClaimPoints(context.Background(), "a@b.com", member.ID)
	if errAgain != nil {
		t.Fatalf("second claim: %v", errAgain)
	}
	if again.Claimed != 0 || again.Entries != 0 {
		t.Fatalf("second claim = %+v", again)
	}
	if loadMember(t, conn, member.ID).PointsBalance != 80 {
		t.Fatal("second claim mutated balance")
	}
}

func TestExpireOldPointsIsMonotone(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	conn := setupTestDB(t)
	tenant := seedTenant(t, conn, guestPointsEnabled)
	svc := NewGuestPointsService(conn)
	svc.now = fixedNow(now)

	stale := models.GuestPoints{
		TenantID:  tenant.ID,
		Email:     "old@b.com",
		Points:    40,
		Source:    "purchase",
		Status:    models.GuestPointsPending,
		ExpiresAt: now.AddDate(0, 0, -1),
	}
	fresh := models.GuestPoints{
		TenantID:  tenant.ID,
		Email:     "new@b.com",
		Points:    10,
		Source:    "purchase",
		Status:    models.GuestPointsPending,
		ExpiresAt: now.AddDate(0, 0, 10),
	}
	if errCreate := conn.Create(&stale).Error; errCreate != nil {
		t.Fatalf("seed stale: %v", errCreate)
	}
	if errCreate := conn.Create(&fresh).Error; errCreate != nil {
		t.Fatalf("seed fresh: %v", errCreate)
	}

	expired, errExpire := svc.ExpireOldPoints(context.Background())
	if errExpire != nil {
		t.Fatalf("expire: %v", errExpire)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	var reloaded models.GuestPoints
	if errFind := conn.First(&reloaded, stale.ID).Error; errFind != nil {
		t.Fatalf("load stale: %v", errFind)
	}
	if reloaded.Status != models.GuestPointsExpired {
		t.Fatalf("stale status = %s", reloaded.Status)
	}

	// Running the sweep again never resurrects or re-expires entries.
	again, errAgain := svc.ExpireOldPoints(context.Background())
	if errAgain != nil || again != 0 {
		t.Fatalf("second sweep = %d %v", again, errAgain)
	}

	// Expired entries are excluded from claims.
	member := seedMember(t, conn, tenant.ID, "old@b.com", now)
	claim, errClaim := svc.ClaimPoints(context.Background(), "old@b.com", member.ID)
	if errClaim != nil {
		t.Fatalf("claim: %v", errClaim)
	}
	if claim.Claimed != 0 {
		t.Fatalf("claimed expired points: %+v", claim)
	}
}
