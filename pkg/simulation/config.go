package simulation

import (
	"fmt"
	"slices"
)

// Parameter types understood by the CLI prompts
const (
	ParamInteger  = "integer"
	ParamFloat    = "float"
	ParamString   = "string"
	ParamBoolean  = "boolean"
	ParamDuration = "duration"
)

// SimulationConfig is the manifest a simulation ships as simulation.yaml
type SimulationConfig struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Version     string      `yaml:"version"`
	Category    string      `yaml:"category"`
	Parameters  []Parameter `yaml:"parameters"`
}

// Parameter is one value the runner collects before Configure
type Parameter struct {
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type"`
	Description string      `yaml:"description"`
	Default     interface{} `yaml:"default"`
	Required    bool        `yaml:"required"`
	Min         interface{} `yaml:"min,omitempty"`
	Max         interface{} `yaml:"max,omitempty"`
	// Options restricts string parameters to an enum
	Options []string `yaml:"options,omitempty"`
}

// Parameter looks up a parameter by name
func (c SimulationConfig) Parameter(name string) (Parameter, bool) {
	for _, p := range c.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Validate checks the manifest for missing names, unknown types and
// duplicate parameters
func (c SimulationConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("simulation manifest has no name")
	}

	known := []string{ParamInteger, ParamFloat, ParamString, ParamBoolean, ParamDuration}
	seen := make(map[string]bool, len(c.Parameters))
	for _, p := range c.Parameters {
		if p.Name == "" {
			return fmt.Errorf("%s: parameter without a name", c.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%s: duplicate parameter %s", c.Name, p.Name)
		}
		seen[p.Name] = true
		if !slices.Contains(known, p.Type) {
			return fmt.Errorf("%s: parameter %s has unsupported type %q", c.Name, p.Name, p.Type)
		}
		if len(p.Options) > 0 && p.Type != ParamString {
			return fmt.Errorf("%s: options are only valid on string parameter %s", c.Name, p.Name)
		}
	}
	return nil
}
