package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the project configuration file inside a project root.
const ProjectFile = "project.yaml"

// ErrNoProject is returned when the root has no project.yaml.
var ErrNoProject = errors.New("project.yaml not found")

// LoadProject reads <root>/project.yaml, applies defaults and fingerprints it.
func LoadProject(root string) (*Project, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root %q: %w", root, err)
	}

	path := filepath.Join(absRoot, ProjectFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w in %s", ErrNoProject, absRoot)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	p := DefaultProject()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	p.Root = absRoot
	p.Fingerprint = Fingerprint(data)
	if strings.TrimSpace(p.Name) == "" {
		p.Name = filepath.Base(absRoot)
	}

	if err := validateProject(&p); err != nil {
		return nil, fmt.Errorf("invalid project %s: %w", path, err)
	}
	return &p, nil
}

// Slug returns a URL-safe identifier for the project.
func (p *Project) Slug() string {
	return Slug(p.Name)
}

// Slug lowercases name and keeps only URL-safe characters. Spaces and dots
// become dashes.
func Slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "project"
	}
	return b.String()
}

// TemplatePath returns the absolute path of the custom main-page template, or "".
func (p *Project) TemplatePath() string {
	if p.UI.Template == "" {
		return ""
	}
	return resolvePath(p.Root, p.UI.Template)
}

func validateProject(p *Project) error {
	if p.TileSize <= 0 || p.TileSize&(p.TileSize-1) != 0 {
		return fmt.Errorf("tile_size must be a positive power of two, got %d", p.TileSize)
	}
	if p.Metatile <= 0 {
		return fmt.Errorf("metatile must be positive, got %d", p.Metatile)
	}
	if p.MinZoom < 0 || p.MaxZoom < p.MinZoom {
		return fmt.Errorf("zoom range [%d, %d] is invalid", p.MinZoom, p.MaxZoom)
	}
	for i, l := range p.Layers {
		if strings.TrimSpace(l.ID) == "" {
			return fmt.Errorf("layers[%d]: id is required", i)
		}
	}
	return nil
}
