// Package schema derives the structured-output contract of an agent from its
// output field specifications.
//
// The contract is a JSON Schema object whose properties follow the field order
// of the Specification: "reasoning" first, then alphabetical. The order is kept
// when the schema is marshalled because models fill fields in the order they are
// declared.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"textagents/internal/common/errors"
	"textagents/internal/spec"
)

// Property is one named entry of the schema's properties object.
type Property struct {
	Name       string
	Definition map[string]interface{}
}

// OutputSchema is immutable after Build and safe for concurrent use.
type OutputSchema struct {
	title       string
	description string
	properties  []Property
	required    []string
	fields      []spec.FieldSpec

	compiled *gojsonschema.Schema
}

// Build converts the output fields of s into an OutputSchema.
func Build(s *spec.Specification) (*OutputSchema, error) {
	out := &OutputSchema{
		title:       s.OutputTypeName,
		description: s.OutputTypeDescription,
		fields:      append([]spec.FieldSpec(nil), s.OutputFields...),
		required:    []string{},
	}
	if out.title == "" {
		out.title = spec.DefaultOutputTypeName
	}

	for _, f := range out.fields {
		out.properties = append(out.properties, Property{Name: f.Name, Definition: property(f)})
		if !f.Optional {
			out.required = append(out.required, f.Name)
		}
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(out.Map()))
	if err != nil {
		return nil, errors.NewDefinitionError(fmt.Sprintf("Cannot build output schema '%s': %v", out.title, err))
	}
	out.compiled = compiled
	return out, nil
}

// property returns the JSON Schema fragment for a single field.
func property(f spec.FieldSpec) map[string]interface{} {
	var p map[string]interface{}
	if f.HasEnum() {
		// Membership only; the declared base type is ignored.
		p = map[string]interface{}{"enum": append([]interface{}(nil), f.Enum...)}
	} else {
		p = baseType(f.Type)
	}

	if f.MinLength != nil {
		p["minLength"] = *f.MinLength
	}
	if f.MaxLength != nil {
		p["maxLength"] = *f.MaxLength
	}
	if f.Pattern != nil {
		p["pattern"] = *f.Pattern
	}
	if f.GE != nil {
		p["minimum"] = *f.GE
	}
	if f.LE != nil {
		p["maximum"] = *f.LE
	}
	if f.GT != nil {
		p["exclusiveMinimum"] = *f.GT
	}
	if f.LT != nil {
		p["exclusiveMaximum"] = *f.LT
	}
	// List bounds share the length-constraint concept with strings.
	if f.MinItems != nil {
		p["minItems"] = *f.MinItems
	}
	if f.MaxItems != nil {
		p["maxItems"] = *f.MaxItems
	}

	if f.Optional {
		p = map[string]interface{}{
			"anyOf":   []interface{}{p, map[string]interface{}{"type": "null"}},
			"default": nil,
		}
	}
	if f.Description != "" {
		p["description"] = f.Description
	}
	return p
}

func baseType(t spec.FieldType) map[string]interface{} {
	switch t {
	case spec.TypeStr:
		return map[string]interface{}{"type": "string"}
	case spec.TypeInt:
		return map[string]interface{}{"type": "integer"}
	case spec.TypeFloat:
		return map[string]interface{}{"type": "number"}
	case spec.TypeListStr:
		return map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}
	case spec.TypeListInt:
		return map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}}
	default:
		return map[string]interface{}{"type": "boolean"}
	}
}

// Name is the schema title, the output type name of the specification.
func (s *OutputSchema) Name() string { return s.title }

func (s *OutputSchema) Description() string { return s.description }

// Properties returns the properties in field order.
func (s *OutputSchema) Properties() []Property {
	return append([]Property(nil), s.properties...)
}

// PropertyNames returns the property names in field order.
func (s *OutputSchema) PropertyNames() []string {
	names := make([]string, len(s.properties))
	for i, p := range s.properties {
		names[i] = p.Name
	}
	return names
}

// Required returns the names of non-optional fields in field order.
func (s *OutputSchema) Required() []string {
	return append([]string(nil), s.required...)
}

// Fields returns the field specifications the schema was built from.
func (s *OutputSchema) Fields() []spec.FieldSpec {
	return append([]spec.FieldSpec(nil), s.fields...)
}

// Map returns the schema as a generic map. Property order is not preserved.
func (s *OutputSchema) Map() map[string]interface{} {
	props := make(map[string]interface{}, len(s.properties))
	for _, p := range s.properties {
		props[p.Name] = p.Definition
	}
	m := map[string]interface{}{
		"title":                s.title,
		"type":                 "object",
		"properties":           props,
		"required":             s.Required(),
		"additionalProperties": false,
	}
	if s.description != "" {
		m["description"] = s.description
	}
	return m
}

// MarshalJSON emits the schema with properties in field order.
func (s *OutputSchema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"title":`)
	if err := writeJSON(&buf, s.title); err != nil {
		return nil, err
	}
	if s.description != "" {
		buf.WriteString(`,"description":`)
		if err := writeJSON(&buf, s.description); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`,"type":"object","properties":{`)
	for i, p := range s.properties {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, p.Name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, p.Definition); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`},"required":`)
	if err := writeJSON(&buf, s.required); err != nil {
		return nil, err
	}
	buf.WriteString(`,"additionalProperties":false}`)
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// Validate checks a decoded result against the schema. Violations are returned
// as a retryable output-validation error.
func (s *OutputSchema) Validate(result map[string]interface{}) error {
	res, err := s.compiled.Validate(gojsonschema.NewGoLoader(result))
	if err != nil {
		return errors.NewModelRetryError(fmt.Sprintf("Output is not a valid JSON object: %v", err), []string{err.Error()})
	}
	if res.Valid() {
		return nil
	}

	violations := make([]string, 0, len(res.Errors()))
	for _, desc := range res.Errors() {
		violations = append(violations, desc.String())
	}
	return errors.NewModelRetryError(formatViolations("Output schema validation failed", violations), violations)
}

func formatViolations(header string, violations []string) string {
	var b bytes.Buffer
	b.WriteString(header)
	b.WriteString(":")
	for _, v := range violations {
		b.WriteString("\n- ")
		b.WriteString(v)
	}
	return b.String()
}
