package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	internalhttp "github.com/perkmill/perkmill/internal/http"
	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/settings"
)

// SettingsHandler reads and writes the tenant's feature configuration.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// Get returns the decoded settings tree with defaults applied.
func (h *SettingsHandler) Get(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}

	decoded, errDecode := settings.ForTenant(tenant)
	if errDecode != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decode settings failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": decoded})
}

// Update replaces the tenant's settings tree. The body is decoded over the
// current values, validated as a whole, and stored back.
func (h *SettingsHandler) Update(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}

	current, errDecode := settings.ForTenant(tenant)
	if errDecode != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decode settings failed"})
		return
	}

	body, errRead := c.GetRawData()
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	// json.Unmarshal merges into existing maps, which would make tier
	// entries undeletable. A supplied tiered_rewards object replaces the
	// stored one wholesale.
	var supplied struct {
		Anniversary struct {
			TieredRewards json.RawMessage `json:"tiered_rewards"`
		} `json:"anniversary"`
	}
	if errPeek := json.Unmarshal(body, &supplied); errPeek == nil && supplied.Anniversary.TieredRewards != nil {
		current.Anniversary.TieredRewards = nil
	}
	if errUnmarshal := json.Unmarshal(body, &current); errUnmarshal != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if errValidate := current.Validate(); errValidate != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errValidate.Error()})
		return
	}

	blob, errMarshal := json.Marshal(current)
	if errMarshal != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode settings failed"})
		return
	}
	if errSave := h.db.WithContext(c.Request.Context()).
		Model(&models.Tenant{}).
		Where("id = ?", tenant.ID).
		Update("settings", datatypes.JSON(blob)).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save settings failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": current})
}
