package design

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template is the persisted airframe design document. The core treats it as
// read-only except for the fields controlled by the design vector, which are
// rewritten on Apply.
type Template struct {
	Name     string         `yaml:"name"`
	Airframe StructuralSpec `yaml:"airframe"`
	Notes    string         `yaml:"notes,omitempty"`
}

// LoadTemplate loads and parses a design template file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read design template %s: %w", path, err)
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse design template %s: %w", path, err)
	}
	if t.Airframe.ReferenceDiamM <= 0 {
		return nil, fmt.Errorf("design template %s: airframe reference_diameter_m must be positive", path)
	}
	return &t, nil
}

// Apply overwrites the vector-controlled fields of the template's airframe
// with the decoded spec, leaving every other field untouched.
func (t *Template) Apply(spec StructuralSpec) {
	t.Airframe.BodyLengthM = spec.BodyLengthM
	t.Airframe.NoseLengthM = spec.NoseLengthM
	t.Airframe.FinSpanM = spec.FinSpanM
	t.Airframe.FinRootChordM = spec.FinRootChordM
	t.Airframe.FinTipChordM = spec.FinTipChordM
	t.Airframe.FinSweepM = spec.FinSweepM
	t.Airframe.FinPositionM = spec.FinPositionM
	t.Airframe.NoseBallastKG = spec.NoseBallastKG
	t.Airframe.AvBayPositionM = spec.AvBayPositionM
}

// SaveTemplate serializes the template back out as YAML.
func SaveTemplate(path string, t *Template) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal design template: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write design template %s: %w", path, err)
	}
	return nil
}
