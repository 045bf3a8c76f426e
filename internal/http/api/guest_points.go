package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	internalhttp "github.com/perkmill/perkmill/internal/http"
	"github.com/perkmill/perkmill/internal/loyalty"
)

// GuestPointsHandler handles the pre-enrollment guest points endpoints.
type GuestPointsHandler struct {
	guestPoints *loyalty.GuestPointsService
}

// NewGuestPointsHandler constructs a GuestPointsHandler.
func NewGuestPointsHandler(guestPoints *loyalty.GuestPointsService) *GuestPointsHandler {
	return &GuestPointsHandler{guestPoints: guestPoints}
}

// guestAwardBody describes a guest points award.
type guestAwardBody struct {
	Email  string `json:"email"`
	Points int64  `json:"points"`
	Source string `json:"source"`
}

// Award records pending points for a guest email.
func (h *GuestPointsHandler) Award(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}

	var body guestAwardBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	result, errAward := h.guestPoints.AwardGuestPoints(c.Request.Context(), tenant.ID, body.Email, body.Points, body.Source)
	if errAward != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "award guest points failed"})
		return
	}
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Pending returns a guest's unclaimed entries and their sum.
func (h *GuestPointsHandler) Pending(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	summary, errPending := h.guestPoints.PendingPoints(c.Request.Context(), tenant.ID, email)
	if errPending != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load pending points failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// guestClaimBody describes a pending-points claim.
type guestClaimBody struct {
	Email    string `json:"email"`
	MemberID uint64 `json:"member_id"`
}

// Claim moves a guest's pending points onto a member balance.
func (h *GuestPointsHandler) Claim(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}

	var body guestClaimBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if body.MemberID == 0 || strings.TrimSpace(body.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and member_id are required"})
		return
	}

	result, errClaim := h.guestPoints.ClaimPoints(c.Request.Context(), body.Email, body.MemberID)
	if errClaim != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claim guest points failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}
