package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServiceFile is the file name looked up when a directory is given to Load.
const ServiceFile = "tilegw.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses the service configuration from a file or a directory
// containing tilegw.yaml. Unset fields keep their Defaults() values.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, ServiceFile)
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but %s not found: %s", ServiceFile, absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.SourcePath = absPath

	// Relative paths are relative to the config file, not the working directory.
	baseDir := filepath.Dir(absPath)
	cfg.Project.Root = resolvePath(baseDir, cfg.Project.Root)
	cfg.State.Path = resolvePath(baseDir, cfg.State.Path)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DiscoverConfig finds the service config by checking standard locations.
// Priority order: $TILEGW_CONFIG_DIR, ~/.config/tilegw, /etc/tilegw, ./tilegw.yaml
func DiscoverConfig() (string, error) {
	if dir := os.Getenv("TILEGW_CONFIG_DIR"); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "tilegw")
		if _, err := os.Stat(filepath.Join(userConfigDir, ServiceFile)); err == nil {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/tilegw"
	if _, err := os.Stat(filepath.Join(systemConfigDir, ServiceFile)); err == nil {
		return systemConfigDir, nil
	}

	if _, err := os.Stat(ServiceFile); err == nil {
		return ServiceFile, nil
	}

	return "", fmt.Errorf("no config found (checked: $TILEGW_CONFIG_DIR, ~/.config/tilegw, /etc/tilegw, ./%s)", ServiceFile)
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// interpolateEnv replaces ${VAR} with the environment value. Unset variables
// are left untouched so validation can point at them.
func interpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.API.Listen) == "" {
		return fmt.Errorf("api.listen is required")
	}
	if cfg.Project.Root == "" {
		return fmt.Errorf("project.root is required")
	}
	if cfg.Project.RasterPoolSize <= 0 {
		return fmt.Errorf("project.raster_pool_size must be positive, got %d", cfg.Project.RasterPoolSize)
	}
	if cfg.Project.VectorPoolSize <= 0 {
		return fmt.Errorf("project.vector_pool_size must be positive, got %d", cfg.Project.VectorPoolSize)
	}
	if cfg.API.LoadWait < 0 {
		return fmt.Errorf("api.load_wait must not be negative")
	}
	if cfg.Export.RatePerMinute < 0 || cfg.Export.Burst < 0 {
		return fmt.Errorf("export.rate_per_minute and export.burst must not be negative")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}
	return nil
}
