// Package api implements the merchant-facing REST API.
package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	internalhttp "github.com/perkmill/perkmill/internal/http"
	"github.com/perkmill/perkmill/internal/loyalty"
)

// Services bundles the dependencies the API handlers need.
type Services struct {
	DB           *gorm.DB
	Anniversary  *loyalty.AnniversaryService
	Birthday     *loyalty.BirthdayService
	GuestPoints  *loyalty.GuestPointsService
	Gamification *loyalty.GamificationService
	Enrollment   *loyalty.EnrollmentService
	Builder      builderService
	AppSecret    string
}

// Register mounts the API routes on the engine. Everything under /api/v1
// requires a valid App Bridge session token except the health check.
func Register(r *gin.Engine, svc Services) {
	health := NewHealthHandler(svc.DB)
	r.GET("/healthz", health.Healthz)

	v1 := r.Group("/api/v1")
	v1.Use(internalhttp.SessionAuthMiddleware(svc.DB, svc.AppSecret))
	registerRoutes(v1, svc)
}

// registerRoutes mounts the authenticated routes on a group. Split out so
// handler tests can mount them without the session middleware.
func registerRoutes(v1 *gin.RouterGroup, svc Services) {
	members := NewMemberHandler(svc.DB, svc.Enrollment)
	v1.GET("/members", members.List)
	v1.POST("/members", members.Create)
	v1.GET("/members/:id", members.Get)
	v1.PUT("/members/:id/birthday", members.SetBirthday)
	v1.GET("/members/:id/activity", members.Activity)

	rewards := NewRewardHandler(svc.DB, svc.Anniversary, svc.Birthday)
	v1.POST("/members/:id/rewards/anniversary", rewards.IssueAnniversary)
	v1.POST("/members/:id/rewards/birthday", rewards.IssueBirthday)

	guest := NewGuestPointsHandler(svc.GuestPoints)
	v1.POST("/guest-points", guest.Award)
	v1.GET("/guest-points/pending", guest.Pending)
	v1.POST("/guest-points/claim", guest.Claim)

	gamification := NewGamificationHandler(svc.DB, svc.Gamification)
	v1.GET("/badges", gamification.ListBadges)
	v1.POST("/badges", gamification.CreateBadge)
	v1.PUT("/badges/:id", gamification.UpdateBadge)
	v1.DELETE("/badges/:id", gamification.DeleteBadge)
	v1.GET("/milestones", gamification.ListMilestones)
	v1.POST("/milestones", gamification.CreateMilestone)
	v1.GET("/members/:id/progress", gamification.MemberProgress)
	v1.POST("/members/:id/check-badges", gamification.CheckBadges)

	referrals := NewReferralHandler(svc.DB, svc.Enrollment)
	v1.POST("/members/:id/referral-code", referrals.CreateCode)

	settingsHandler := NewSettingsHandler(svc.DB)
	v1.GET("/settings", settingsHandler.Get)
	v1.PUT("/settings", settingsHandler.Update)

	builderHandler := NewBuilderHandler(svc.Builder)
	v1.POST("/builder/:surface/preview", builderHandler.Preview)
	v1.PUT("/builder/:surface", builderHandler.Save)
	v1.GET("/builder/:surface", builderHandler.Published)
}
