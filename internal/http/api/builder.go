package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/perkmill/perkmill/internal/builder"
	internalhttp "github.com/perkmill/perkmill/internal/http"
)

// builderService is the slice of the builder the handler consumes.
type builderService interface {
	PreviewSurface(ctx context.Context, tenantID uint64, surface builder.Surface, overrides json.RawMessage) (*builder.Preview, error)
	SaveSurface(ctx context.Context, tenantID uint64, surface builder.Surface, overrides json.RawMessage, publish bool) (*builder.Preview, error)
	PublishedSurface(ctx context.Context, tenantID uint64, surface builder.Surface) (*builder.Preview, error)
}

// BuilderHandler exposes the widget and loyalty page builder.
type BuilderHandler struct {
	builder builderService
}

// NewBuilderHandler constructs a BuilderHandler.
func NewBuilderHandler(svc builderService) *BuilderHandler {
	return &BuilderHandler{builder: svc}
}

// builderSaveBody wraps configuration overrides and the publish flag.
type builderSaveBody struct {
	Config  json.RawMessage `json:"config"`
	Publish bool            `json:"publish"`
}

// Preview merges the posted overrides over the stored configuration and
// returns the rendered result without persisting it.
func (h *BuilderHandler) Preview(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	surface, ok := surfaceFromPath(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}
	if !ok {
		return
	}

	var body builderSaveBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	preview, errPreview := h.builder.PreviewSurface(c.Request.Context(), tenant.ID, surface, body.Config)
	if errPreview != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "preview failed"})
		return
	}
	c.JSON(http.StatusOK, preview)
}

// Save persists the merged configuration as a draft or, with publish=true,
// as the live block.
func (h *BuilderHandler) Save(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	surface, ok := surfaceFromPath(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}
	if !ok {
		return
	}

	var body builderSaveBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	preview, errSave := h.builder.SaveSurface(c.Request.Context(), tenant.ID, surface, body.Config, body.Publish)
	if errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusOK, preview)
}

// Published returns the live rendering of the surface.
func (h *BuilderHandler) Published(c *gin.Context) {
	tenant := internalhttp.TenantFrom(c)
	surface, ok := surfaceFromPath(c)
	if tenant == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant"})
		return
	}
	if !ok {
		return
	}

	preview, errLoad := h.builder.PublishedSurface(c.Request.Context(), tenant.ID, surface)
	if errLoad != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load failed"})
		return
	}
	c.JSON(http.StatusOK, preview)
}

func surfaceFromPath(c *gin.Context) (builder.Surface, bool) {
	surface := builder.Surface(c.Param("surface"))
	if !surface.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown surface"})
		return "", false
	}
	return surface, true
}
