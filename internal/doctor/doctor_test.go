package doctor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/tilegw/internal/config"
)

func validConfig() *config.Config {
	return config.Defaults()
}

func validProject(t *testing.T) *config.Project {
	t.Helper()
	p := config.DefaultProject()
	p.Name = "demo"
	p.Root = t.TempDir()
	return &p
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	d := New(validConfig(), validProject(t))
	r := d.Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_ServiceOnly(t *testing.T) {
	t.Parallel()
	r := New(validConfig(), nil).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
}

func TestValidate_MissingListen(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Listen = ""
	r := New(cfg, nil).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "service", "api.listen")
}

func TestValidate_MissingStatePath(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.State.Path = ""
	r := New(cfg, nil).Validate()
	assertHasError(t, r, "service", "state.path")
}

func TestValidate_LoadWait(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.LoadWait = 0
	r := New(cfg, nil).Validate()
	assertHasWarning(t, r, "service", "as long as the client")

	cfg.API.LoadWait = -1
	r = New(cfg, nil).Validate()
	assertHasError(t, r, "service", "negative")
}

func TestValidate_PoolSizes(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Project.RasterPoolSize = 0
	r := New(cfg, nil).Validate()
	assertHasError(t, r, "pools", "raster_pool_size")

	cfg = validConfig()
	cfg.Project.RasterPoolSize = 8
	cfg.Project.VectorPoolSize = 2
	r = New(cfg, nil).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "pools", "smaller than raster")
}

func TestValidate_Export(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Export.Burst = 0
	r := New(cfg, nil).Validate()
	assertHasWarning(t, r, "export", "defaults to 1")

	cfg.Export.RatePerMinute = -3
	r = New(cfg, nil).Validate()
	assertHasError(t, r, "export", "rate_per_minute")

	cfg.Export.RatePerMinute = 0
	r = New(cfg, nil).Validate()
	assertHasWarning(t, r, "export", "not rate limited")
}

func TestValidate_MetricsPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want string
	}{
		{"metrics", "must start with /"},
		{"/projects/demo/metrics", "conflicts with project routes"},
		{"/healthz", "already served"},
	}
	for _, tt := range tests {
		cfg := validConfig()
		cfg.Metrics.Path = tt.path
		r := New(cfg, nil).Validate()
		assertHasError(t, r, "metrics", tt.want)
	}

	cfg := validConfig()
	cfg.Metrics.Enabled = false
	cfg.Metrics.Path = "bogus"
	if r := New(cfg, nil).Validate(); !r.Valid {
		t.Fatalf("disabled metrics should not be checked, got: %v", r.Errors)
	}
}

func TestValidate_ProjectTiles(t *testing.T) {
	t.Parallel()
	p := validProject(t)
	p.TileSize = 300
	p.Metatile = 0
	r := New(validConfig(), p).Validate()
	assertHasError(t, r, "project", "power of two")
	assertHasError(t, r, "project", "metatile")
}

func TestValidate_ProjectZoom(t *testing.T) {
	t.Parallel()
	p := validProject(t)
	p.MinZoom = 10
	p.MaxZoom = 4
	r := New(validConfig(), p).Validate()
	assertHasError(t, r, "project", "zoom range")

	p = validProject(t)
	p.MinZoom = 5
	p.Center = [3]float64{0, 0, 2}
	r = New(validConfig(), p).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "project", "center zoom 2")
}

func TestValidate_Background(t *testing.T) {
	t.Parallel()
	p := validProject(t)
	p.Background = "#12"
	r := New(validConfig(), p).Validate()
	assertHasError(t, r, "project", "")
}

func TestValidate_Template(t *testing.T) {
	t.Parallel()
	p := validProject(t)
	p.UI.Template = "ui/page.html"
	r := New(validConfig(), p).Validate()
	assertHasError(t, r, "template", "ui/page.html")

	if err := os.MkdirAll(filepath.Join(p.Root, "ui"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(p.Root, "ui", "page.html"), []byte("<h1>{{.Name}}</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	r = New(validConfig(), p).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}

	p.UI.Template = "ui"
	r = New(validConfig(), p).Validate()
	assertHasError(t, r, "template", "is a directory")
}

func TestValidate_Layers(t *testing.T) {
	t.Parallel()
	p := validProject(t)
	if err := os.WriteFile(filepath.Join(p.Root, "roads.geojson"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	p.Layers = []config.Layer{
		{ID: "roads", Source: "roads.geojson"},
		{ID: "water", Source: "water.geojson"},
		{ID: "remote", Source: "https://example.com/tiles.json"},
		{ID: "roads"},
	}
	r := New(validConfig(), p).Validate()
	assertHasError(t, r, "layers", `"roads" duplicates layers[0]`)
	assertHasWarning(t, r, "layers", `"water.geojson" not found`)
	if len(r.Warnings) != 1 {
		t.Fatalf("expected only the missing source warning, got: %v", r.Warnings)
	}
}

func TestValidate_DuplicateAssets(t *testing.T) {
	t.Parallel()
	p := validProject(t)
	p.Scripts = []string{"/a.js", "/b.js", "/a.js"}
	p.Styles = []string{"/a.css"}
	r := New(validConfig(), p).Validate()
	if !r.Valid {
		t.Fatalf("duplicates are warnings, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "assets", `"/a.js"`)
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Message: "bad thing"}},
	}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "bad thing") {
		t.Fatalf("expected JSON to contain error message, got: %s", out)
	}
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	r := &Result{Valid: true}
	out := FormatHuman(r)
	if !strings.Contains(out, "valid") {
		t.Fatalf("expected 'valid' in output, got: %s", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
		Warnings: []Issue{{Category: "assets", Message: "twice"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR [test] x.y: broken") || !strings.Contains(out, "WARN  [assets] twice") {
		t.Fatalf("expected error and warning in output, got: %s", out)
	}
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
