package ai

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultRegistry []byte

type registryFile struct {
	Models []ModelSpec `yaml:"models"`
}

// DefaultRegistry returns the model table shipped with the service.
func DefaultRegistry() ([]ModelSpec, error) {
	return ParseRegistry(defaultRegistry)
}

// ParseRegistry reads a YAML model table and validates every entry. Each kind
// may appear at most once.
func ParseRegistry(data []byte) ([]ModelSpec, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model registry: %w", err)
	}
	seen := make(map[Kind]bool)
	for _, s := range f.Models {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Kind] {
			return nil, fmt.Errorf("model registry lists kind %q twice", s.Kind)
		}
		seen[s.Kind] = true
	}
	return f.Models, nil
}
