package builder

import (
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/perkmill/perkmill/internal/settings"
)

// templateFS embeds the storefront surface templates.
//
//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	widgetTemplate = template.Must(template.ParseFS(templateFS, "templates/widget.html.tmpl"))
	pageTemplate   = template.Must(template.ParseFS(templateFS, "templates/page.html.tmpl"))
)

// knownSections are the renderable loyalty page sections; unknown section
// names are dropped rather than rendered as empty slots.
var knownSections = map[string]struct{}{
	"points":    {},
	"badges":    {},
	"referrals": {},
	"streak":    {},
	"history":   {},
}

// RenderWidget renders the storefront widget HTML for a config block.
func RenderWidget(cfg settings.WidgetConfig) (string, error) {
	if !cfg.Enabled {
		return "", nil
	}
	var out strings.Builder
	if errExec := widgetTemplate.Execute(&out, cfg); errExec != nil {
		return "", fmt.Errorf("builder: render widget: %w", errExec)
	}
	return out.String(), nil
}

// RenderLoyaltyPage renders the hosted loyalty page HTML for a config block.
func RenderLoyaltyPage(cfg settings.LoyaltyPageConfig) (string, error) {
	if !cfg.Enabled {
		return "", nil
	}
	sections := make([]string, 0, len(cfg.Sections))
	for _, section := range cfg.Sections {
		if _, ok := knownSections[section]; ok {
			sections = append(sections, section)
		}
	}
	cfg.Sections = sections

	var out strings.Builder
	if errExec := pageTemplate.Execute(&out, cfg); errExec != nil {
		return "", fmt.Errorf("builder: render page: %w", errExec)
	}
	return out.String(), nil
}
