package tutor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Persona overrides the tutor's voice and capabilities.
type Persona struct {
	Name         string   `yaml:"name"`
	SystemPrompt string   `yaml:"system_prompt"`
	Tools        []string `yaml:"tools"`
	MaxIter      int      `yaml:"max_iterations"`
}

// LoadPersona reads a persona from a YAML file.
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading persona %s: %w", path, err)
	}

	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing persona %s: %w", path, err)
	}
	if p.MaxIter < 0 {
		return nil, fmt.Errorf("persona %s: max_iterations must not be negative", path)
	}
	return &p, nil
}
