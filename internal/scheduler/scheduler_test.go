package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/config"
	"github.com/perkmill/perkmill/internal/db"
	"github.com/perkmill/perkmill/internal/loyalty"
	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/notify"
)

func newTestScheduler(t *testing.T, cfg config.SchedulerConfig) (*Scheduler, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:scheduler_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}

	gamification := loyalty.NewGamificationService(conn)
	anniversary := loyalty.NewAnniversaryService(conn, gamification, notify.LogSender{}, nil)
	birthday := loyalty.NewBirthdayService(conn, notify.LogSender{})
	guestPoints := loyalty.NewGuestPointsService(conn)
	retention := loyalty.NewRetentionService(conn, 30)
	return New(cfg, anniversary, birthday, guestPoints, retention), conn
}

func TestStartDisabledDoesNotRegisterJobs(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t, config.SchedulerConfig{Enabled: false})
	if errStart := s.Start(context.Background()); errStart != nil {
		t.Fatalf("start: %v", errStart)
	}
	if entries := s.cron.Entries(); len(entries) != 0 {
		t.Fatalf("registered %d jobs, want 0", len(entries))
	}
}

func TestStartRejectsBadCronSpec(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t, config.SchedulerConfig{Enabled: true, Daily: "not a cron spec"})
	if errStart := s.Start(context.Background()); errStart == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestRunDailyExpiresAndSweeps(t *testing.T) {
	t.Parallel()

	s, conn := newTestScheduler(t, config.SchedulerConfig{Enabled: true, Daily: "0 6 * * *"})

	tenant := models.Tenant{
		ShopDomain: "rundaily.myshopify.com",
		Name:       "Test Shop",
		IsActive:   true,
		Settings:   datatypes.JSON("{}"),
	}
	if errCreate := conn.Create(&tenant).Error; errCreate != nil {
		t.Fatalf("seed tenant: %v", errCreate)
	}

	old := time.Now().UTC().AddDate(0, 0, -60)
	entries := []models.GuestPoints{
		// Pending and past expiry: the sweep flips it to expired.
		{TenantID: tenant.ID, Email: "a@b.com", Points: 10, Source: "purchase", Status: models.GuestPointsPending, ExpiresAt: old},
		// Expired long ago: retention deletes it.
		{TenantID: tenant.ID, Email: "a@b.com", Points: 10, Source: "purchase", Status: models.GuestPointsExpired, ExpiresAt: old, CreatedAt: old},
	}
	for i := range entries {
		if errCreate := conn.Create(&entries[i]).Error; errCreate != nil {
			t.Fatalf("seed guest points: %v", errCreate)
		}
	}

	s.RunDaily(context.Background(), false)

	var remaining []models.GuestPoints
	if errFind := conn.Find(&remaining).Error; errFind != nil {
		t.Fatalf("load guest points: %v", errFind)
	}
	if len(remaining) != 1 {
		t.Fatalf("remaining rows = %d, want 1", len(remaining))
	}
	if remaining[0].Status != models.GuestPointsExpired {
		t.Fatalf("status = %q, want expired", remaining[0].Status)
	}
}

func TestRunDailyDryRunLeavesDataAlone(t *testing.T) {
	t.Parallel()

	s, conn := newTestScheduler(t, config.SchedulerConfig{Enabled: true, Daily: "0 6 * * *", DryRun: true})

	tenant := models.Tenant{
		ShopDomain: "dryrun.myshopify.com",
		Name:       "Test Shop",
		IsActive:   true,
		Settings:   datatypes.JSON("{}"),
	}
	if errCreate := conn.Create(&tenant).Error; errCreate != nil {
		t.Fatalf("seed tenant: %v", errCreate)
	}
	old := time.Now().UTC().AddDate(0, 0, -400)
	activity := models.MemberActivity{TenantID: tenant.ID, MemberID: 1, ActivityType: models.ActivityPurchase, CreatedAt: old}
	if errCreate := conn.Create(&activity).Error; errCreate != nil {
		t.Fatalf("seed activity: %v", errCreate)
	}

	s.RunDaily(context.Background(), true)

	var count int64
	if errCount := conn.Model(&models.MemberActivity{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("activity rows = %d, want 1 (retention must not run in dry-run)", count)
	}
}
