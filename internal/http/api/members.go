package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	internalhttp "github.com/perkmill/perkmill/internal/http"
	"github.com/perkmill/perkmill/internal/loyalty"
	"github.com/perkmill/perkmill/internal/models"
)

// MemberHandler handles member endpoints.
type MemberHandler struct {
	db         *gorm.DB
	enrollment *loyalty.EnrollmentService
}

// NewMemberHandler constructs a MemberHandler.
func NewMemberHandler(db *gorm.DB, enrollment *loyalty.EnrollmentService) *MemberHandler {
	return &MemberHandler{db: db, enrollment: enrollment}
}

// memberListQuery defines filters for the member list view.
type memberListQuery struct {
	Page   int    `form:"page,default=1"`   // Page number.
	Limit  int    `form:"limit,default=25"` // Page size.
	Email  string `form:"email"`            // Email substring filter.
	Status string `form:"status"`           // Enrollment state filter.
}

// List returns the tenant's members with paging and filters.
func (h *MemberHandler) List(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}

	var q memberListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 25
	}

	base := h.db.WithContext(c.Request.Context()).
		Model(&models.Member{}).
		Where("tenant_id = ?", tenant.ID)
	if email := strings.ToLower(strings.TrimSpace(q.Email)); email != "" {
		base = base.Where("email LIKE ?", "%"+email+"%")
	}
	if status := strings.TrimSpace(q.Status); status != "" {
		base = base.Where("status = ?", status)
	}

	var total int64
	if errCount := base.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count members failed"})
		return
	}

	var members []models.Member
	if errFind := base.
		Order("id ASC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&members).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list members failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"members": members,
		"total":   total,
		"page":    q.Page,
		"limit":   q.Limit,
	})
}

// Create enrolls a new member, claiming pending guest points and completing
// an inbound referral when a code is supplied.
func (h *MemberHandler) Create(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}

	var input loyalty.EnrollInput
	if errBind := c.ShouldBindJSON(&input); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	result, errEnroll := h.enrollment.Enroll(c.Request.Context(), tenant.ID, input)
	if errEnroll != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enroll failed"})
		return
	}
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": result.Error})
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Get returns one member.
func (h *MemberHandler) Get(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	member, ok := h.loadMember(c, tenant)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": member})
}

// birthdayBody carries a month/day pair.
type birthdayBody struct {
	Month int `json:"month"`
	Day   int `json:"day"`
}

// SetBirthday stores the member's birthday as a normalized month/day.
func (h *MemberHandler) SetBirthday(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	member, ok := h.loadMember(c, tenant)
	if !ok {
		return
	}

	var body birthdayBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	birthday, errNormalize := loyalty.NormalizeBirthday(time.Month(body.Month), body.Day)
	if errNormalize != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errNormalize.Error()})
		return
	}

	if errSave := h.db.WithContext(c.Request.Context()).
		Model(&models.Member{}).
		Where("id = ?", member.ID).
		Update("birthday", birthday).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save birthday failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Activity returns the member's audit log, newest first.
func (h *MemberHandler) Activity(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	member, ok := h.loadMember(c, tenant)
	if !ok {
		return
	}

	var activities []models.MemberActivity
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("member_id = ?", member.ID).
		Order("id DESC").
		Limit(200).
		Find(&activities).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list activity failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": activities})
}

func (h *MemberHandler) loadMember(c *gin.Context, tenant *models.Tenant) (*models.Member, bool) {
	return memberFromPath(c, h.db, tenant)
}

// memberFromPath resolves the :id path param into a member owned by the
// tenant. It writes the error response itself when resolution fails.
func memberFromPath(c *gin.Context, db *gorm.DB, tenant *models.Tenant) (*models.Member, bool) {
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return nil, false
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member id"})
		return nil, false
	}

	var member models.Member
	errFind := db.WithContext(c.Request.Context()).
		Where("id = ? AND tenant_id = ?", id, tenant.ID).
		First(&member).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load member failed"})
		}
		return nil, false
	}
	return &member, true
}
