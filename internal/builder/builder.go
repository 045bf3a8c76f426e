// Package builder implements the merchant-facing widget and loyalty page
// builder: it deep-merges JSON configuration overrides over the tenant's
// stored configuration and renders the result to storefront HTML. The only
// persisted state is the configuration block itself plus its published flag.
package builder

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/perkmill/perkmill/internal/models"
	"github.com/perkmill/perkmill/internal/settings"
)

// Surface names the two renderable configuration blocks.
type Surface string

const (
	SurfaceWidget      Surface = "widget"
	SurfaceLoyaltyPage Surface = "loyalty_page"
)

// Valid reports whether s is a known surface.
func (s Surface) Valid() bool {
	return s == SurfaceWidget || s == SurfaceLoyaltyPage
}

// Preview is the outcome of a merge-and-render pass.
type Preview struct {
	Surface   Surface         `json:"surface"`
	Config    json.RawMessage `json:"config"`
	HTML      string          `json:"html"`
	Published bool            `json:"published"`
}

// Service merges, renders, and persists builder configuration.
type Service struct {
	db *gorm.DB
}

// NewService constructs a builder Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// deepMerge overlays src onto dst recursively. Nested objects merge key by
// key; any other value in src replaces the value in dst. dst is mutated.
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		srcChild, srcIsMap := value.(map[string]any)
		if !srcIsMap {
			dst[key] = value
			continue
		}
		dstChild, dstIsMap := dst[key].(map[string]any)
		if !dstIsMap {
			dstChild = map[string]any{}
		}
		dst[key] = deepMerge(dstChild, srcChild)
	}
	return dst
}

// mergedSurface loads the tenant's stored block for the surface, overlays
// the defaults underneath and the overrides on top, and decodes the result
// into the typed config for validation and rendering.
func (s *Service) mergedSurface(tenant *models.Tenant, surface Surface, overrides json.RawMessage) (map[string]any, error) {
	defaults := settings.Defaults()
	var base any
	switch surface {
	case SurfaceWidget:
		base = defaults.Widget
	case SurfaceLoyaltyPage:
		base = defaults.LoyaltyPage
	default:
		return nil, fmt.Errorf("builder: unknown surface %q", surface)
	}

	tree := map[string]any{}
	rawDefaults, errMarshal := json.Marshal(base)
	if errMarshal != nil {
		return nil, fmt.Errorf("builder: encode defaults: %w", errMarshal)
	}
	if errUnmarshal := json.Unmarshal(rawDefaults, &tree); errUnmarshal != nil {
		return nil, fmt.Errorf("builder: decode defaults: %w", errUnmarshal)
	}

	if len(tenant.Settings) > 0 {
		stored := map[string]any{}
		if errUnmarshal := json.Unmarshal(tenant.Settings, &stored); errUnmarshal != nil {
			return nil, fmt.Errorf("builder: decode tenant %d settings: %w", tenant.ID, errUnmarshal)
		}
		if block, ok := stored[string(surface)].(map[string]any); ok {
			tree = deepMerge(tree, block)
		}
	}

	if len(overrides) > 0 {
		patch := map[string]any{}
		if errUnmarshal := json.Unmarshal(overrides, &patch); errUnmarshal != nil {
			return nil, fmt.Errorf("builder: decode overrides: %w", errUnmarshal)
		}
		tree = deepMerge(tree, patch)
	}
	return tree, nil
}

// render decodes the merged tree into the typed surface config and renders
// its HTML.
func (s *Service) render(surface Surface, tree map[string]any) (json.RawMessage, string, bool, error) {
	raw, errMarshal := json.Marshal(tree)
	if errMarshal != nil {
		return nil, "", false, fmt.Errorf("builder: encode merged config: %w", errMarshal)
	}

	switch surface {
	case SurfaceWidget:
		var cfg settings.WidgetConfig
		if errUnmarshal := json.Unmarshal(raw, &cfg); errUnmarshal != nil {
			return nil, "", false, fmt.Errorf("builder: merged widget config invalid: %w", errUnmarshal)
		}
		html, errRender := RenderWidget(cfg)
		return raw, html, cfg.Published, errRender
	case SurfaceLoyaltyPage:
		var cfg settings.LoyaltyPageConfig
		if errUnmarshal := json.Unmarshal(raw, &cfg); errUnmarshal != nil {
			return nil, "", false, fmt.Errorf("builder: merged page config invalid: %w", errUnmarshal)
		}
		html, errRender := RenderLoyaltyPage(cfg)
		return raw, html, cfg.Published, errRender
	}
	return nil, "", false, fmt.Errorf("builder: unknown surface %q", surface)
}

// PreviewSurface merges overrides over the tenant's stored configuration and
// renders the result without persisting anything.
func (s *Service) PreviewSurface(ctx context.Context, tenantID uint64, surface Surface, overrides json.RawMessage) (*Preview, error) {
	tenant, errLoad := s.loadTenant(ctx, tenantID)
	if errLoad != nil {
		return nil, errLoad
	}

	tree, errMerge := s.mergedSurface(tenant, surface, overrides)
	if errMerge != nil {
		return nil, errMerge
	}
	raw, html, published, errRender := s.render(surface, tree)
	if errRender != nil {
		return nil, errRender
	}
	return &Preview{Surface: surface, Config: raw, HTML: html, Published: published}, nil
}

// SaveSurface merges overrides and persists the result as a draft
// (published=false) or live (published=true) configuration block inside the
// tenant settings tree.
func (s *Service) SaveSurface(ctx context.Context, tenantID uint64, surface Surface, overrides json.RawMessage, publish bool) (*Preview, error) {
	tenant, errLoad := s.loadTenant(ctx, tenantID)
	if errLoad != nil {
		return nil, errLoad
	}

	tree, errMerge := s.mergedSurface(tenant, surface, overrides)
	if errMerge != nil {
		return nil, errMerge
	}
	tree["published"] = publish

	raw, html, published, errRender := s.render(surface, tree)
	if errRender != nil {
		return nil, errRender
	}

	stored := map[string]any{}
	if len(tenant.Settings) > 0 {
		if errUnmarshal := json.Unmarshal(tenant.Settings, &stored); errUnmarshal != nil {
			return nil, fmt.Errorf("builder: decode tenant %d settings: %w", tenant.ID, errUnmarshal)
		}
	}
	stored[string(surface)] = tree

	blob, errMarshal := json.Marshal(stored)
	if errMarshal != nil {
		return nil, fmt.Errorf("builder: encode settings: %w", errMarshal)
	}
	if errSave := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ?", tenant.ID).
		Update("settings", datatypes.JSON(blob)).Error; errSave != nil {
		return nil, fmt.Errorf("builder: save settings: %w", errSave)
	}

	return &Preview{Surface: surface, Config: raw, HTML: html, Published: published}, nil
}

// PublishedSurface renders the stored configuration for the storefront. A
// block that was never published renders nothing.
func (s *Service) PublishedSurface(ctx context.Context, tenantID uint64, surface Surface) (*Preview, error) {
	preview, errPreview := s.PreviewSurface(ctx, tenantID, surface, nil)
	if errPreview != nil {
		return nil, errPreview
	}
	if !preview.Published {
		return &Preview{Surface: surface, Config: preview.Config, Published: false}, nil
	}
	return preview, nil
}

func (s *Service) loadTenant(ctx context.Context, tenantID uint64) (*models.Tenant, error) {
	var tenant models.Tenant
	if errFind := s.db.WithContext(ctx).First(&tenant, tenantID).Error; errFind != nil {
		return nil, fmt.Errorf("builder: load tenant %d: %w", tenantID, errFind)
	}
	return &tenant, nil
}
