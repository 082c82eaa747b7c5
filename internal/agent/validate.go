// internal/agent/validate.go
package agent

import (
	"textagents/internal/schema"
	"textagents/internal/spec"
)

// ValidationReport summarises a definition file that parsed and produced a
// schema.
type ValidationReport struct {
	Path         string
	Name         string
	Model        string
	Inputs       []string
	OutputFields []string
	Placeholders []string
	Retries      int
}

// Validate parses the file and builds its output schema without contacting a
// model.
func Validate(path string) (*ValidationReport, error) {
	s, err := spec.ParseFile(path)
	if err != nil {
		return nil, err
	}
	out, err := schema.Build(s)
	if err != nil {
		return nil, err
	}

	a := &Agent{spec: s, schema: out}
	return &ValidationReport{
		Path:         path,
		Name:         a.Name(),
		Model:        s.Model,
		Inputs:       a.InputNames(),
		OutputFields: out.PropertyNames(),
		Placeholders: s.AllPlaceholders(),
		Retries:      s.Retries,
	}, nil
}
