package loyalty

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/db"
	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/notify"
	"github.com/perkmill/perkmill/internal/shopify"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:loyalty_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func seedTenant(t *testing.T, conn *gorm.DB, settingsJSON string) *models.Tenant {
	t.Helper()
	if settingsJSON == "" {
		settingsJSON = "{}"
	}
	tenant := &models.Tenant{
		ShopDomain: fmt.Sprintf("%s.myshopify.com", t.Name()),
		Name:       "Test Shop",
		IsActive:   true,
		Settings:   datatypes.JSON(settingsJSON),
	}
	if errCreate := conn.Create(tenant).Error; errCreate != nil {
		t.Fatalf("seed tenant: %v", errCreate)
	}
	return tenant
}

func seedMember(t *testing.T, conn *gorm.DB, tenantID uint64, email string, enrolledAt time.Time) *models.Member {
	t.Helper()
	member := &models.Member{
		TenantID:   tenantID,
		Email:      email,
		Status:     models.MemberStatusActive,
		EnrolledAt: enrolledAt,
	}
	if errCreate := conn.Create(member).Error; errCreate != nil {
		t.Fatalf("seed member: %v", errCreate)
	}
	return member
}

func loadMember(t *testing.T, conn *gorm.DB, id uint64) *models.Member {
	t.Helper()
	var member models.Member
	if errFind := conn.First(&member, id).Error; errFind != nil {
		t.Fatalf("load member %d: %v", id, errFind)
	}
	return &member
}

func fixedNow(value time.Time) func() time.Time {
	return func() time.Time { return value }
}

// stubSender records notifications and can be made to fail.
type stubSender struct {
	fail bool
	sent []notify.Message
}

func (s *stubSender) Send(_ context.Context, msg notify.Message) notify.SendResult {
	if s.fail {
		return notify.SendResult{Error: "smtp unavailable"}
	}
	s.sent = append(s.sent, msg)
	return notify.SendResult{Sent: true}
}

// stubIssuer returns a fixed code or a fixed error.
type stubIssuer struct {
	code  string
	err   error
	calls int
}

func (s *stubIssuer) CreateDiscountCode(context.Context, string, string, shopify.DiscountRequest) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.code, nil
}

var errIssuerDown = errors.New("admin api unreachable")
