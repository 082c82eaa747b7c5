// Package inputs resolves caller-supplied runtime values for one agent run.
package inputs

import (
	"os"
	"sort"
	"strings"
	"time"

	"textagents/internal/common/errors"
	"textagents/internal/spec"
)

// Resolved maps input names to coerced, ready-to-interpolate values.
type Resolved map[string]interface{}

// Names returns the resolved names, sorted.
func (r Resolved) Names() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

const (
	CurrentDate     = "CURRENT_DATE"
	CurrentTime     = "CURRENT_TIME"
	CurrentDateTime = "CURRENT_DATETIME"
)

var magicLayouts = map[string]string{
	CurrentDate:     "2006-01-02",
	CurrentTime:     "15:04:05",
	CurrentDateTime: "2006-01-02 15:04:05",
}

// MagicVariables returns the auto-filled placeholder names.
func MagicVariables() []string {
	return []string{CurrentDate, CurrentTime, CurrentDateTime}
}

// IsMagic reports whether name is filled automatically when not supplied.
func IsMagic(name string) bool {
	_, ok := magicLayouts[name]
	return ok
}

// Processor resolves inputs against a Specification. The zero value is not
// usable; construct with NewProcessor.
type Processor struct {
	now      func() time.Time
	readFile func(string) ([]byte, error)
}

type Option func(*Processor)

// WithClock overrides the time source used for magic variables.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithFileReader overrides how @path values are read.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(p *Processor) { p.readFile = read }
}

func NewProcessor(opts ...Option) *Processor {
	p := &Processor{now: time.Now, readFile: os.ReadFile}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process resolves raw values in four steps: @file dereference, coercion to
// declared types, magic variable fill-in, and required-input validation.
func (p *Processor) Process(raw map[string]interface{}, s *spec.Specification) (Resolved, error) {
	resolved := make(Resolved, len(raw))

	for name, value := range raw {
		if str, ok := value.(string); ok && strings.HasPrefix(str, "@") {
			content, err := p.loadFile(name, str[1:])
			if err != nil {
				return nil, err
			}
			value = content
		}

		if def, ok := s.Input(name); ok {
			coerced, err := Coerce(value, def)
			if err != nil {
				return nil, err
			}
			value = coerced
		}

		resolved[name] = value
	}

	placeholders := s.AllPlaceholders()
	now := p.now()
	for _, name := range placeholders {
		if _, ok := resolved[name]; ok {
			continue
		}
		if layout, ok := magicLayouts[name]; ok {
			resolved[name] = now.Format(layout)
		}
	}

	if err := validateRequired(resolved, s, placeholders); err != nil {
		return nil, err
	}
	return resolved, nil
}

func (p *Processor) loadFile(inputName, path string) (string, error) {
	content, err := p.readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewInputFileNotFoundError(inputName, path)
		}
		return "", errors.NewInternalError(err)
	}
	return string(content), nil
}

// validateRequired collects every missing name into a single error. Optional
// inputs that the templates reference still need a value.
func validateRequired(resolved Resolved, s *spec.Specification, placeholders []string) error {
	var missing, optionalReferenced []string

	for _, def := range s.InputDefinitions {
		if _, ok := resolved[def.Name]; !ok && !def.Optional {
			missing = append(missing, def.Name)
		}
	}

	for _, name := range placeholders {
		if _, ok := resolved[name]; ok || IsMagic(name) {
			continue
		}
		def, declared := s.Input(name)
		switch {
		case declared && def.Optional:
			optionalReferenced = append(optionalReferenced, name)
			missing = append(missing, name)
		case !declared:
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	expected := make([]string, 0, len(s.InputDefinitions)+len(placeholders))
	for _, def := range s.InputDefinitions {
		expected = append(expected, def.Name)
	}
	for _, name := range placeholders {
		if _, declared := s.Input(name); !declared && !IsMagic(name) {
			expected = append(expected, name)
		}
	}

	return errors.NewMissingInputsError(missing, resolved.Names(), expected, optionalReferenced)
}
