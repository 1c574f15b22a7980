package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value from the service configuration using a dot-notation path.
func (c *Config) GetPath(path string) (any, error) {
	return lookup(c, path)
}

// GetPath retrieves a value from the project configuration using a dot-notation
// path. Sequence elements are addressed by index, e.g. "layers.0.id".
func (p *Project) GetPath(path string) (any, error) {
	return lookup(p, path)
}

// lookup round-trips v through YAML so paths use the yaml keys users write.
func lookup(v any, path string) (any, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		switch node := current.(type) {
		case map[string]any:
			val, exists := node[part]
			if !exists {
				return nil, fmt.Errorf("path %q: key %q not found", path, part)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("path %q: index %q out of range", path, part)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}
	}

	return current, nil
}
