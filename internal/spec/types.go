// Package spec parses agent definition files into a Specification.
//
// An agent definition is a text file with a TOML header between two "---" lines
// followed by the prompt template:
//
//	---
//	[agent]
//	model = "openai:gpt-5"
//
//	[agent.output_type]
//	reasoning = { type = "str" }
//	is_valid = { description = "Whether the input is valid" }
//	---
//	Evaluate: {input}
//
// A Specification is never mutated after Parse returns and may be shared across
// goroutines.
package spec

import (
	"regexp"
	"sort"
)

// FieldType is the declared type of an output field or input.
type FieldType string

const (
	TypeBool    FieldType = "bool"
	TypeStr     FieldType = "str"
	TypeInt     FieldType = "int"
	TypeFloat   FieldType = "float"
	TypeListStr FieldType = "list[str]"
	TypeListInt FieldType = "list[int]"
)

// SupportedTypes returns the output field types in a stable order.
func SupportedTypes() []FieldType {
	return []FieldType{TypeBool, TypeFloat, TypeInt, TypeListInt, TypeListStr, TypeStr}
}

// IsSupported reports whether t is a valid output field type.
func (t FieldType) IsSupported() bool {
	switch t {
	case TypeBool, TypeStr, TypeInt, TypeFloat, TypeListStr, TypeListInt:
		return true
	}
	return false
}

// IsList reports whether t is one of the list types.
func (t FieldType) IsList() bool {
	return t == TypeListStr || t == TypeListInt
}

const (
	DefaultOutputTypeName = "AgentOutput"
	DefaultRetries        = 2

	reasoningField = "reasoning"
)

// FieldSpec describes one output field. Nil constraint pointers mean "not set".
type FieldSpec struct {
	Name        string
	Type        FieldType
	Description string
	Optional    bool
	// Enum holds the allowed values in declaration order. Values are not checked
	// against Type.
	Enum []interface{}

	MinLength *int
	MaxLength *int
	Pattern   *string

	GE *float64
	LE *float64
	GT *float64
	LT *float64

	MinItems *int
	MaxItems *int
}

// HasEnum reports whether the field restricts values to a closed set.
func (f FieldSpec) HasEnum() bool {
	return f.Enum != nil
}

// InputSpec describes a declared runtime input.
type InputSpec struct {
	Name        string
	Type        FieldType
	Description string
	Optional    bool
}

// Specification is the parsed form of one agent definition file.
type Specification struct {
	Model          string
	PromptTemplate string
	Instructions   string
	OutputFields   []FieldSpec
	// InputDefinitions are sorted by name.
	InputDefinitions []InputSpec
	Retries          int
	Settings         map[string]interface{}

	Name                  string
	OutputTypeName        string
	OutputTypeDescription string

	// SourcePath is empty when the specification was parsed from memory.
	SourcePath string
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// FindPlaceholders returns the distinct {name} tokens in text, sorted.
func FindPlaceholders(text string) []string {
	set := map[string]struct{}{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		set[m[1]] = struct{}{}
	}
	return sortedKeys(set)
}

// Placeholders returns the placeholders of the prompt template.
func (s *Specification) Placeholders() []string {
	return FindPlaceholders(s.PromptTemplate)
}

// InstructionPlaceholders returns the placeholders of the instructions, if any.
func (s *Specification) InstructionPlaceholders() []string {
	if s.Instructions == "" {
		return nil
	}
	return FindPlaceholders(s.Instructions)
}

// AllPlaceholders is the union of prompt and instruction placeholders, sorted.
func (s *Specification) AllPlaceholders() []string {
	set := map[string]struct{}{}
	for _, p := range s.Placeholders() {
		set[p] = struct{}{}
	}
	for _, p := range s.InstructionPlaceholders() {
		set[p] = struct{}{}
	}
	return sortedKeys(set)
}

// Input returns the declared input with the given name.
func (s *Specification) Input(name string) (InputSpec, bool) {
	for _, in := range s.InputDefinitions {
		if in.Name == name {
			return in, true
		}
	}
	return InputSpec{}, false
}

// Field returns the output field with the given name.
func (s *Specification) Field(name string) (FieldSpec, bool) {
	for _, f := range s.OutputFields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// WithModel returns a copy of s that targets a different model.
func (s *Specification) WithModel(model string) *Specification {
	c := *s
	c.Model = model
	return &c
}

// SortFields orders fields with "reasoning" first and the rest by name.
func SortFields(fields []FieldSpec) {
	sort.SliceStable(fields, func(i, j int) bool {
		ri, rj := fields[i].Name == reasoningField, fields[j].Name == reasoningField
		if ri != rj {
			return ri
		}
		return fields[i].Name < fields[j].Name
	})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
