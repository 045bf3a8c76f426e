package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	internalhttp "github.com/perkmill/perkmill/internal/http"
	"github.com/perkmill/perkmill/internal/loyalty"
)

// RewardHandler exposes the manual reward issuance endpoints.
type RewardHandler struct {
	db          *gorm.DB
	anniversary *loyalty.AnniversaryService
	birthday    *loyalty.BirthdayService
}

// NewRewardHandler constructs a RewardHandler.
func NewRewardHandler(db *gorm.DB, anniversary *loyalty.AnniversaryService, birthday *loyalty.BirthdayService) *RewardHandler {
	return &RewardHandler{db: db, anniversary: anniversary, birthday: birthday}
}

// IssueAnniversary issues the member's anniversary reward now.
func (h *RewardHandler) IssueAnniversary(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	member, ok := memberFromPath(c, h.db, tenant)
	if !ok {
		return
	}

	result, errIssue := h.anniversary.IssueAnniversaryReward(c.Request.Context(), member.ID)
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue anniversary reward failed"})
		return
	}
	writeRewardResult(c, result)
}

// IssueBirthday issues the member's birthday reward now.
func (h *RewardHandler) IssueBirthday(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	member, ok := memberFromPath(c, h.db, tenant)
	if !ok {
		return
	}

	result, errIssue := h.birthday.IssueBirthdayReward(c.Request.Context(), member.ID)
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue birthday reward failed"})
		return
	}
	writeRewardResult(c, result)
}

// writeRewardResult maps a reward result envelope onto an HTTP status:
// precondition failures become 422, duplicate-period attempts 409.
func writeRewardResult(c *gin.Context, result *loyalty.Result) {
	switch {
	case result.Success:
		c.JSON(http.StatusOK, result)
	case result.AlreadyRewarded:
		c.JSON(http.StatusConflict, result)
	default:
		c.JSON(http.StatusUnprocessableEntity, result)
	}
}
