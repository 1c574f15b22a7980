package config

import "time"

// Config represents the complete tilegw service configuration.
type Config struct {
	Service ServiceConfig   `yaml:"service"`
	API     APIConfig       `yaml:"api"`
	State   StateConfig     `yaml:"state"`
	Project ProjectSettings `yaml:"project"`
	Export  ExportConfig    `yaml:"export,omitempty"`
	Metrics MetricsConfig   `yaml:"metrics,omitempty"`

	// SourcePath is the absolute path of the file Load read.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// APIConfig defines HTTP server settings.
type APIConfig struct {
	Listen      string   `yaml:"listen"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
	// LoadWait bounds how long a request waits for the project to finish loading.
	LoadWait time.Duration `yaml:"load_wait"`
}

// StateConfig defines where reload/export history is kept.
type StateConfig struct {
	Path string `yaml:"path"`
}

// ProjectSettings selects the served project and sizes its renderer pools.
type ProjectSettings struct {
	Root           string `yaml:"root"`
	RasterPoolSize int    `yaml:"raster_pool_size"`
	VectorPoolSize int    `yaml:"vector_pool_size"`
}

// ExportConfig throttles /export/ requests.
type ExportConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	Burst         int `yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "tilegw",
			LogLevel: "info",
		},
		API: APIConfig{
			Listen:   "127.0.0.1:6789",
			LoadWait: 30 * time.Second,
		},
		State: StateConfig{
			Path: "./data/tilegw.db",
		},
		Project: ProjectSettings{
			Root:           ".",
			RasterPoolSize: 4,
			VectorPoolSize: 16,
		},
		Export: ExportConfig{
			RatePerMinute: 6,
			Burst:         2,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Project is the per-project configuration read from <root>/project.yaml.
type Project struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Scripts     []string   `yaml:"scripts,omitempty" json:"-"`
	Styles      []string   `yaml:"styles,omitempty" json:"-"`
	TileSize    int        `yaml:"tile_size" json:"tileSize"`
	Metatile    int        `yaml:"metatile" json:"metatile"`
	Center      [3]float64 `yaml:"center" json:"center"`
	MinZoom     int        `yaml:"min_zoom" json:"minZoom"`
	MaxZoom     int        `yaml:"max_zoom" json:"maxZoom"`
	Background  string     `yaml:"background,omitempty" json:"background,omitempty"`
	Layers      []Layer    `yaml:"layers,omitempty" json:"layers,omitempty"`
	UI          UIConfig   `yaml:"ui,omitempty" json:"-"`

	// Root is the absolute project directory.
	Root string `yaml:"-" json:"-"`
	// Fingerprint is the BLAKE3 hash of project.yaml as loaded.
	Fingerprint string `yaml:"-" json:"fingerprint"`
}

// Layer describes one data layer of the project.
type Layer struct {
	ID         string            `yaml:"id" json:"id"`
	Geometry   string            `yaml:"geometry,omitempty" json:"geometry,omitempty"`
	Source     string            `yaml:"source,omitempty" json:"-"`
	Properties map[string]string `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// UIConfig customises the main page.
type UIConfig struct {
	// Template is a path, relative to the project root, to an HTML template.
	Template string `yaml:"template,omitempty"`
}

// DefaultProject returns project defaults applied before project.yaml is parsed.
func DefaultProject() Project {
	return Project{
		TileSize:   256,
		Metatile:   2,
		Center:     [3]float64{0, 0, 2},
		MinZoom:    0,
		MaxZoom:    18,
		Background: "#f2efe9",
	}
}
