// internal/schema/metadata.go
package schema

import "textagents/internal/spec"

// FieldInfo summarises one output field for introspection.
type FieldInfo struct {
	Required    bool          `json:"required"`
	Type        string        `json:"type"`
	Description string        `json:"description,omitempty"`
	Enum        []interface{} `json:"enum,omitempty"`

	GE *float64 `json:"ge,omitempty"`
	LE *float64 `json:"le,omitempty"`
	GT *float64 `json:"gt,omitempty"`
	LT *float64 `json:"lt,omitempty"`

	// MinLength and MaxLength also carry list item bounds.
	MinLength *int    `json:"min_length,omitempty"`
	MaxLength *int    `json:"max_length,omitempty"`
	Pattern   *string `json:"pattern,omitempty"`
}

// FieldMetadata returns per-field metadata keyed by field name.
func (s *OutputSchema) FieldMetadata() map[string]FieldInfo {
	out := make(map[string]FieldInfo, len(s.fields))
	for _, f := range s.fields {
		info := FieldInfo{
			Required:    !f.Optional,
			Type:        typeLabel(f),
			Description: f.Description,
			GE:          f.GE,
			LE:          f.LE,
			GT:          f.GT,
			LT:          f.LT,
			MinLength:   f.MinLength,
			MaxLength:   f.MaxLength,
			Pattern:     f.Pattern,
		}
		if f.HasEnum() {
			info.Enum = append([]interface{}(nil), f.Enum...)
		}
		if f.MinItems != nil {
			info.MinLength = f.MinItems
		}
		if f.MaxItems != nil {
			info.MaxLength = f.MaxItems
		}
		out[f.Name] = info
	}
	return out
}

func typeLabel(f spec.FieldSpec) string {
	label := string(f.Type)
	if f.HasEnum() {
		label = "enum"
	}
	if f.Optional {
		label += " | None"
	}
	return label
}
