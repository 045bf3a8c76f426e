package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	internalhttp "github.com/perkmill/perkmill/internal/http"
	"github.com/perkmill/perkmill/internal/loyalty"
	"github.com/perkmill/perkmill/internal/models"
)

// GamificationHandler handles badge and milestone administration plus the
// member progress projection.
type GamificationHandler struct {
	db           *gorm.DB
	gamification *loyalty.GamificationService
}

// NewGamificationHandler constructs a GamificationHandler.
func NewGamificationHandler(db *gorm.DB, gamification *loyalty.GamificationService) *GamificationHandler {
	return &GamificationHandler{db: db, gamification: gamification}
}

// badgeBody describes a badge definition payload.
type badgeBody struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Icon          string  `json:"icon"`
	CriteriaType  string  `json:"criteria_type"`
	CriteriaValue int64   `json:"criteria_value"`
	RewardPoints  int64   `json:"reward_points"`
	RewardCredit  float64 `json:"reward_credit"`
	IsActive      *bool   `json:"is_active"`
}

func (b badgeBody) validate() string {
	if b.Name == "" {
		return "name is required"
	}
	if !models.BadgeCriteria(b.CriteriaType).Valid() {
		return "unknown criteria_type"
	}
	if b.CriteriaValue < 0 || b.RewardPoints < 0 || b.RewardCredit < 0 {
		return "negative values are not allowed"
	}
	return ""
}

// ListBadges returns the tenant's badge definitions.
func (h *GamificationHandler) ListBadges(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}

	var badges []models.Badge
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ?", tenant.ID).
		Order("id ASC").
		Find(&badges).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list badges failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": badges})
}

// CreateBadge creates a badge definition.
func (h *GamificationHandler) CreateBadge(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}

	var body badgeBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if msg := body.validate(); msg != "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msg})
		return
	}

	badge := models.Badge{
		TenantID:      tenant.ID,
		Name:          body.Name,
		Description:   body.Description,
		Icon:          body.Icon,
		CriteriaType:  models.BadgeCriteria(body.CriteriaType),
		CriteriaValue: body.CriteriaValue,
		RewardPoints:  body.RewardPoints,
		RewardCredit:  body.RewardCredit,
		IsActive:      body.IsActive == nil || *body.IsActive,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&badge).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create badge failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"badge": badge})
}

// UpdateBadge edits a badge definition. Earned relationships are untouched.
func (h *GamificationHandler) UpdateBadge(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	badge, ok := h.loadBadge(c, tenant)
	if !ok {
		return
	}

	var body badgeBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if msg := body.validate(); msg != "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msg})
		return
	}

	updates := map[string]any{
		"name":           body.Name,
		"description":    body.Description,
		"icon":           body.Icon,
		"criteria_type":  body.CriteriaType,
		"criteria_value": body.CriteriaValue,
		"reward_points":  body.RewardPoints,
		"reward_credit":  body.RewardCredit,
	}
	if body.IsActive != nil {
		updates["is_active"] = *body.IsActive
	}
	if errSave := h.db.WithContext(c.Request.Context()).
		Model(&models.Badge{}).
		Where("id = ?", badge.ID).
		Updates(updates).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update badge failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteBadge deactivates a badge rather than deleting it: earned
// relationships must survive.
func (h *GamificationHandler) DeleteBadge(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	badge, ok := h.loadBadge(c, tenant)
	if !ok {
		return
	}

	if errSave := h.db.WithContext(c.Request.Context()).
		Model(&models.Badge{}).
		Where("id = ?", badge.ID).
		Update("is_active", false).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deactivate badge failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// milestoneBody describes a milestone definition payload.
type milestoneBody struct {
	Name         string  `json:"name"`
	Metric       string  `json:"metric"`
	Threshold    int64   `json:"threshold"`
	RewardPoints int64   `json:"reward_points"`
	RewardCredit float64 `json:"reward_credit"`
	BadgeID      *uint64 `json:"badge_id"`
	IsActive     *bool   `json:"is_active"`
}

// ListMilestones returns the tenant's milestone definitions.
func (h *GamificationHandler) ListMilestones(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}

	var milestones []models.Milestone
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("tenant_id = ?", tenant.ID).
		Order("id ASC").
		Find(&milestones).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list milestones failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

// CreateMilestone creates a milestone definition.
func (h *GamificationHandler) CreateMilestone(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}

	var body milestoneBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if body.Name == "" || !models.MilestoneMetric(body.Metric).Valid() || body.Threshold <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid milestone definition"})
		return
	}

	milestone := models.Milestone{
		TenantID:     tenant.ID,
		Name:         body.Name,
		Metric:       models.MilestoneMetric(body.Metric),
		Threshold:    body.Threshold,
		RewardPoints: body.RewardPoints,
		RewardCredit: body.RewardCredit,
		BadgeID:      body.BadgeID,
		IsActive:     body.IsActive == nil || *body.IsActive,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&milestone).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create milestone failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"milestone": milestone})
}

// MemberProgress returns the member's clamped progress toward every active
// badge and milestone.
func (h *GamificationHandler) MemberProgress(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	member, ok := memberFromPath(c, h.db, tenant)
	if !ok {
		return
	}

	items, errProgress := h.gamification.MemberProgress(c.Request.Context(), member.ID)
	if errProgress != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load progress failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": items})
}

// CheckBadges re-runs badge and milestone checks for a member.
func (h *GamificationHandler) CheckBadges(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	member, ok := memberFromPath(c, h.db, tenant)
	if !ok {
		return
	}

	badges, errBadges := h.gamification.CheckAndAwardBadges(c.Request.Context(), member.ID)
	if errBadges != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "badge check failed"})
		return
	}
	milestones, errMilestones := h.gamification.CheckMilestones(c.Request.Context(), member.ID)
	if errMilestones != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "milestone check failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"badges_awarded":     badges,
		"milestones_reached": milestones,
	})
}

func (h *GamificationHandler) loadBadge(c *gin.Context, tenant *models.Tenant) (*models.Badge, bool) {
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return nil, false
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid badge id"})
		return nil, false
	}

	var badge models.Badge
	errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND tenant_id = ?", id, tenant.ID).
		First(&badge).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "badge not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load badge failed"})
		}
		return nil, false
	}
	return &badge, true
}
