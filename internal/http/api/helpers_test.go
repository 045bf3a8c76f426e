package api

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/perkmill/perkmill/internal/builder"
	"github.com/perkmill/perkmill/internal/db"
	internalhttp "github.com/perkmill/perkmill/internal/http"
	"github.com/perkmill/perkmill/internal/loyalty"
	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/notify"
)

var testDBSeq atomic.Uint64

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:api_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func seedTenant(t *testing.T, conn *gorm.DB, settingsJSON string) *models.Tenant {
	t.Helper()
	tenant := models.Tenant{
		ShopDomain: fmt.Sprintf("shop-%d.myshopify.com", testDBSeq.Add(1)),
		Settings:   datatypes.JSON(settingsJSON),
		IsActive:   true,
	}
	if errCreate := conn.Create(&tenant).Error; errCreate != nil {
		t.Fatalf("seed tenant: %v", errCreate)
	}
	return &tenant
}

func seedMember(t *testing.T, conn *gorm.DB, tenantID uint64, email string) *models.Member {
	t.Helper()
	member := models.Member{
		TenantID:   tenantID,
		Email:      email,
		Status:     models.MemberStatusActive,
		EnrolledAt: time.Now().UTC().AddDate(-1, 0, 0),
	}
	if errCreate := conn.Create(&member).Error; errCreate != nil {
		t.Fatalf("seed member: %v", errCreate)
	}
	return &member
}

// newTestRouter mounts the API routes behind a middleware that injects the
// tenant directly, bypassing session token verification.
func newTestRouter(conn *gorm.DB, tenant *models.Tenant) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	gamification := loyalty.NewGamificationService(conn)
	guestPoints := loyalty.NewGuestPointsService(conn)
	events := loyalty.NewEventsService(conn, gamification)
	enrollment := loyalty.NewEnrollmentService(conn, guestPoints, events)
	svc := Services{
		DB:           conn,
		Anniversary:  loyalty.NewAnniversaryService(conn, gamification, notify.LogSender{}, nil),
		Birthday:     loyalty.NewBirthdayService(conn, notify.LogSender{}),
		GuestPoints:  guestPoints,
		Gamification: gamification,
		Enrollment:   enrollment,
		Builder:      builder.NewService(conn),
	}

	v1 := router.Group("/api/v1")
	v1.Use(func(c *gin.Context) {
		internalhttp.SetTenant(c, tenant)
		c.Next()
	})
	registerRoutes(v1, svc)
	return router
}
