// Package doctor validates tilegw service and project configuration.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/tilegw/internal/config"
	"github.com/mattjoyce/tilegw/internal/render"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// reservedPaths are served by the parent router and cannot host metrics.
var reservedPaths = []string{"/", "/healthz", "/events"}

// Doctor validates a service config and the project it serves.
type Doctor struct {
	cfg     *config.Config
	project *config.Project
}

// New creates a Doctor. project may be nil when only the service config is checked.
func New(cfg *config.Config, project *config.Project) *Doctor {
	return &Doctor{cfg: cfg, project: project}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validatePools(r)
	d.validateExport(r)
	d.validateMetrics(r)
	if d.project != nil {
		d.validateProject(r)
		d.validateTemplate(r)
		d.validateLayers(r)
		d.warnDuplicateAssets(r)
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateServiceConfig checks required service fields.
func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.API.Listen == "" {
		d.addError(r, "service", "api.listen", "api.listen is required")
	}
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	}
	if d.cfg.API.LoadWait < 0 {
		d.addError(r, "service", "api.load_wait", "load_wait must not be negative")
	}
	if d.cfg.API.LoadWait == 0 {
		d.addWarning(r, "service", "api.load_wait",
			"load_wait is 0; requests wait for the project as long as the client does")
	}
}

// validatePools checks renderer pool sizing.
func (d *Doctor) validatePools(r *Result) {
	p := d.cfg.Project
	if p.RasterPoolSize <= 0 {
		d.addError(r, "pools", "project.raster_pool_size", "raster_pool_size must be positive")
	}
	if p.VectorPoolSize <= 0 {
		d.addError(r, "pools", "project.vector_pool_size", "vector_pool_size must be positive")
	}
	if p.RasterPoolSize > 0 && p.VectorPoolSize > 0 && p.VectorPoolSize < p.RasterPoolSize {
		d.addWarning(r, "pools", "project.vector_pool_size",
			fmt.Sprintf("vector pool (%d) is smaller than raster pool (%d); vector renders are usually cheaper",
				p.VectorPoolSize, p.RasterPoolSize))
	}
}

// validateExport checks the export throttle.
func (d *Doctor) validateExport(r *Result) {
	e := d.cfg.Export
	if e.RatePerMinute < 0 {
		d.addError(r, "export", "export.rate_per_minute", "rate_per_minute must not be negative")
	}
	if e.Burst < 0 {
		d.addError(r, "export", "export.burst", "burst must not be negative")
	}
	if e.RatePerMinute > 0 && e.Burst == 0 {
		d.addWarning(r, "export", "export.burst", "burst is 0 and defaults to 1")
	}
	if e.RatePerMinute == 0 {
		d.addWarning(r, "export", "export.rate_per_minute", "exports are not rate limited")
	}
}

// validateMetrics checks the metrics path does not shadow a served route.
func (d *Doctor) validateMetrics(r *Result) {
	m := d.cfg.Metrics
	if !m.Enabled {
		return
	}
	if !strings.HasPrefix(m.Path, "/") {
		d.addError(r, "metrics", "metrics.path", fmt.Sprintf("metrics path %q must start with /", m.Path))
		return
	}
	if strings.HasPrefix(m.Path, "/projects/") || m.Path == "/projects" {
		d.addError(r, "metrics", "metrics.path", fmt.Sprintf("metrics path %q conflicts with project routes", m.Path))
	}
	for _, p := range reservedPaths {
		if m.Path == p {
			d.addError(r, "metrics", "metrics.path", fmt.Sprintf("metrics path %q is already served", m.Path))
		}
	}
}

// validateProject checks tile and zoom settings of project.yaml.
func (d *Doctor) validateProject(r *Result) {
	p := d.project
	if p.TileSize <= 0 || p.TileSize&(p.TileSize-1) != 0 {
		d.addError(r, "project", "tile_size", fmt.Sprintf("tile_size must be a positive power of two, got %d", p.TileSize))
	}
	if p.Metatile <= 0 {
		d.addError(r, "project", "metatile", fmt.Sprintf("metatile must be positive, got %d", p.Metatile))
	}
	if p.MinZoom < 0 || p.MaxZoom < p.MinZoom || p.MaxZoom > render.MaxZoom {
		d.addError(r, "project", "max_zoom",
			fmt.Sprintf("zoom range [%d, %d] is invalid (limit %d)", p.MinZoom, p.MaxZoom, render.MaxZoom))
	} else if z := int(p.Center[2]); z < p.MinZoom || z > p.MaxZoom {
		d.addWarning(r, "project", "center",
			fmt.Sprintf("center zoom %d is outside [%d, %d]", z, p.MinZoom, p.MaxZoom))
	}
	if p.Background != "" {
		if _, err := render.ParseColor(p.Background); err != nil {
			d.addError(r, "project", "background", err.Error())
		}
	}
}

// validateTemplate checks that a custom main-page template exists.
func (d *Doctor) validateTemplate(r *Result) {
	path := d.project.TemplatePath()
	if path == "" {
		return
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		d.addError(r, "template", "ui.template", fmt.Sprintf("template %q: %v", d.project.UI.Template, err))
	case info.IsDir():
		d.addError(r, "template", "ui.template", fmt.Sprintf("template %q is a directory", d.project.UI.Template))
	}
}

// validateLayers checks layer IDs are unique and file sources exist.
func (d *Doctor) validateLayers(r *Result) {
	seen := make(map[string]int)
	for i, l := range d.project.Layers {
		field := fmt.Sprintf("layers[%d]", i)
		if prev, dup := seen[l.ID]; dup {
			d.addError(r, "layers", field+".id",
				fmt.Sprintf("layer id %q duplicates layers[%d]", l.ID, prev))
		}
		seen[l.ID] = i

		if l.Source == "" || strings.Contains(l.Source, "://") {
			continue
		}
		src := l.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(d.project.Root, src)
		}
		if _, err := os.Stat(src); err != nil {
			d.addWarning(r, "layers", field+".source",
				fmt.Sprintf("layer %q source %q not found", l.ID, l.Source))
		}
	}
}

// warnDuplicateAssets warns about scripts or styles listed twice.
func (d *Doctor) warnDuplicateAssets(r *Result) {
	check := func(field string, list []string) {
		seen := make(map[string]bool)
		for _, url := range list {
			if seen[url] {
				d.addWarning(r, "assets", field, fmt.Sprintf("%q is listed more than once", url))
			}
			seen[url] = true
		}
	}
	check("scripts", d.project.Scripts)
	check("styles", d.project.Styles)
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
