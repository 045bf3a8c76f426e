package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	internalhttp "github.com/perkmill/perkmill/internal/http"
	"github.com/perkmill/perkmill/internal/loyalty"
)

// ReferralHandler handles referral code management.
type ReferralHandler struct {
	db         *gorm.DB
	enrollment *loyalty.EnrollmentService
}

// NewReferralHandler constructs a ReferralHandler.
func NewReferralHandler(db *gorm.DB, enrollment *loyalty.EnrollmentService) *ReferralHandler {
	return &ReferralHandler{db: db, enrollment: enrollment}
}

// CreateCode generates a share code for the member.
func (h *ReferralHandler) CreateCode(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	member, ok := memberFromPath(c, h.db, tenant)
	if !ok {
		return
	}

	referral, errCreate := h.enrollment.CreateReferralCode(c.Request.Context(), member.ID)
	if errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create referral code failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"referral": referral})
}
