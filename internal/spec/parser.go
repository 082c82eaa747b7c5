// internal/spec/parser.go
package spec

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"textagents/internal/common/errors"
)

// outputMetadataKeys are reserved keys of [agent.output_type] that are not fields.
var outputMetadataKeys = map[string]bool{"name": true, "description": true}

// ParseFile reads and parses an agent definition file.
func ParseFile(path string) (*Specification, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewAgentFileNotFoundError(path)
		}
		return nil, fmt.Errorf("reading agent file %s: %w", path, err)
	}
	return Parse(string(content), path)
}

// Parse turns raw file content into a Specification. sourcePath is recorded
// for naming and may be empty.
func Parse(content, sourcePath string) (*Specification, error) {
	header, body, _ := SplitFrontMatter(content)

	meta := map[string]interface{}{}
	if strings.TrimSpace(header) != "" {
		if err := toml.Unmarshal([]byte(header), &meta); err != nil {
			return nil, errors.NewInvalidTOMLError(err)
		}
	}

	return fromTree(meta, body, sourcePath)
}

// fromTree projects the decoded TOML tree onto a Specification, failing on the
// first violation.
func fromTree(meta map[string]interface{}, body, sourcePath string) (*Specification, error) {
	rawAgent, ok := meta["agent"]
	if !ok {
		return nil, errors.NewMissingSectionError("agent")
	}
	agent, ok := rawAgent.(map[string]interface{})
	if !ok {
		return nil, errors.NewMissingSectionError("agent")
	}

	model, ok := agent["model"].(string)
	if !ok || model == "" {
		return nil, errors.NewMissingFieldError("agent", "model", `"openai:gpt-5"`)
	}

	prompt := strings.TrimSpace(body)
	if prompt == "" {
		return nil, errors.NewNoPromptBodyError()
	}

	name, err := optionalString(agent, "name", "[agent]")
	if err != nil {
		return nil, err
	}
	instructions, err := optionalString(agent, "instructions", "[agent]")
	if err != nil {
		return nil, err
	}

	if len(FindPlaceholders(prompt)) == 0 && len(FindPlaceholders(instructions)) == 0 {
		return nil, errors.NewNoPlaceholdersError()
	}

	outputTable, err := optionalTable(agent, "output_type", "[agent]")
	if err != nil {
		return nil, err
	}
	fields, err := parseOutputFields(outputTable)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errors.NewNoOutputFieldsError()
	}

	inputTable, err := optionalTable(agent, "input_type", "[agent]")
	if err != nil {
		return nil, err
	}
	inputDefs, err := parseInputDefinitions(inputTable)
	if err != nil {
		return nil, err
	}

	retries := DefaultRetries
	if raw, ok := agent["retries"]; ok {
		n, ok := raw.(int64)
		if !ok {
			return nil, invalidValue("retries", "[agent]", "integer", raw)
		}
		if n < 0 {
			return nil, errors.NewDefinitionError(fmt.Sprintf(
				"Invalid value for 'retries' in [agent]: must be zero or greater, got %d.\n\n"+
					"Example:\n  [agent]\n  retries = 2\n", n))
		}
		retries = int(n)
	}

	settingsTable, err := optionalTable(agent, "settings", "[agent]")
	if err != nil {
		return nil, err
	}
	settings := make(map[string]interface{}, len(settingsTable))
	for k, v := range settingsTable {
		settings[k] = normalize(v)
	}

	outputName, err := optionalString(outputTable, "name", "[agent.output_type]")
	if err != nil {
		return nil, err
	}
	if outputName == "" {
		outputName = DefaultOutputTypeName
	}
	outputDescription, err := optionalString(outputTable, "description", "[agent.output_type]")
	if err != nil {
		return nil, err
	}

	return &Specification{
		Model:                 model,
		PromptTemplate:        prompt,
		Instructions:          instructions,
		OutputFields:          fields,
		InputDefinitions:      inputDefs,
		Retries:               retries,
		Settings:              settings,
		Name:                  name,
		OutputTypeName:        outputName,
		OutputTypeDescription: outputDescription,
		SourcePath:            sourcePath,
	}, nil
}

func parseOutputFields(table map[string]interface{}) ([]FieldSpec, error) {
	fields := make([]FieldSpec, 0, len(table))
	for name, raw := range table {
		if outputMetadataKeys[name] {
			continue
		}
		attrs, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		f, err := parseField(name, attrs)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	SortFields(fields)
	return fields, nil
}

func parseField(name string, attrs map[string]interface{}) (FieldSpec, error) {
	where := fmt.Sprintf("[agent.output_type.%s]", name)
	f := FieldSpec{Name: name, Type: TypeBool}

	typeName, err := optionalString(attrs, "type", where)
	if err != nil {
		return f, err
	}
	if typeName != "" {
		f.Type = FieldType(typeName)
	}
	if !f.Type.IsSupported() {
		supported := make([]string, 0, len(SupportedTypes()))
		for _, t := range SupportedTypes() {
			supported = append(supported, string(t))
		}
		return f, errors.NewUnsupportedTypeError(name, typeName, supported)
	}

	if f.Description, err = optionalString(attrs, "description", where); err != nil {
		return f, err
	}
	if f.Optional, err = optionalBool(attrs, "optional", where); err != nil {
		return f, err
	}

	if raw, ok := attrs["enum"]; ok {
		values, ok := raw.([]interface{})
		if !ok {
			return f, invalidValue("enum", where, "array", raw)
		}
		f.Enum = make([]interface{}, len(values))
		for i, v := range values {
			f.Enum[i] = normalize(v)
		}
	}

	if raw, ok := attrs["pattern"]; ok {
		p, ok := raw.(string)
		if !ok {
			return f, invalidValue("pattern", where, "string", raw)
		}
		f.Pattern = &p
	}

	intConstraints := []struct {
		key string
		dst **int
	}{
		{"min_length", &f.MinLength},
		{"max_length", &f.MaxLength},
		{"min_items", &f.MinItems},
		{"max_items", &f.MaxItems},
	}
	for _, c := range intConstraints {
		if *c.dst, err = optionalInt(attrs, c.key, where); err != nil {
			return f, err
		}
	}

	floatConstraints := []struct {
		key string
		dst **float64
	}{
		{"ge", &f.GE},
		{"le", &f.LE},
		{"gt", &f.GT},
		{"lt", &f.LT},
	}
	for _, c := range floatConstraints {
		if *c.dst, err = optionalNumber(attrs, c.key, where); err != nil {
			return f, err
		}
	}

	return f, nil
}

func parseInputDefinitions(table map[string]interface{}) ([]InputSpec, error) {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	inputs := make([]InputSpec, 0, len(names))
	for _, name := range names {
		switch v := table[name].(type) {
		case map[string]interface{}:
			where := fmt.Sprintf("[agent.input_type.%s]", name)
			in := InputSpec{Name: name, Type: TypeStr}
			typeName, err := optionalString(v, "type", where)
			if err != nil {
				return nil, err
			}
			if typeName != "" {
				in.Type = FieldType(typeName)
			}
			if in.Description, err = optionalString(v, "description", where); err != nil {
				return nil, err
			}
			if in.Optional, err = optionalBool(v, "optional", where); err != nil {
				return nil, err
			}
			inputs = append(inputs, in)
		case string:
			inputs = append(inputs, InputSpec{Name: name, Type: FieldType(v)})
		default:
			return nil, errors.NewInvalidInputTypeError(name, tomlTypeName(v))
		}
	}
	return inputs, nil
}

func optionalString(table map[string]interface{}, key, where string) (string, error) {
	raw, ok := table[key]
	if !ok {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalidValue(key, where, "string", raw)
	}
	return s, nil
}

func optionalBool(table map[string]interface{}, key, where string) (bool, error) {
	raw, ok := table[key]
	if !ok {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, invalidValue(key, where, "boolean", raw)
	}
	return b, nil
}

func optionalTable(table map[string]interface{}, key, where string) (map[string]interface{}, error) {
	raw, ok := table[key]
	if !ok {
		return map[string]interface{}{}, nil
	}
	t, ok := raw.(map[string]interface{})
	if !ok {
		return nil, invalidValue(key, where, "table", raw)
	}
	return t, nil
}

func optionalInt(table map[string]interface{}, key, where string) (*int, error) {
	raw, ok := table[key]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case int64:
		n := int(v)
		return &n, nil
	case float64:
		if v == float64(int64(v)) {
			n := int(v)
			return &n, nil
		}
	}
	return nil, invalidValue(key, where, "integer", raw)
}

func optionalNumber(table map[string]interface{}, key, where string) (*float64, error) {
	raw, ok := table[key]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case int64:
		f := float64(v)
		return &f, nil
	case float64:
		return &v, nil
	}
	return nil, invalidValue(key, where, "number", raw)
}

func invalidValue(key, where, want string, got interface{}) *errors.StandardError {
	return errors.NewDefinitionError(fmt.Sprintf(
		"Invalid value for '%s' in %s: expected %s, got %s.\n\nExample:\n  %s = %s\n",
		key, where, want, tomlTypeName(got), key, exampleValue(key, want)))
}

func exampleValue(key, want string) string {
	switch want {
	case "integer":
		if key == "retries" {
			return "2"
		}
		return "10"
	case "number":
		return "0.5"
	case "boolean":
		return "true"
	case "array":
		return `["low", "medium", "high"]`
	case "table":
		if key == "settings" {
			return "{ temperature = 0.2, max_tokens = 1024 }"
		}
		return "{ }"
	case "string":
		if key == "pattern" {
			return `"^[A-Z]{3}-[0-9]+$"`
		}
		return `"text"`
	}
	return "..."
}

// normalize converts TOML integers to int so decoded values compare and
// marshal the same way as JSON-decoded model output.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int64:
		return int(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	default:
		return v
	}
}

func tomlTypeName(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case int64, int:
		return "integer"
	case float64:
		return "float"
	case bool:
		return "boolean"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "table"
	case time.Time, toml.LocalDate, toml.LocalTime, toml.LocalDateTime:
		return "datetime"
	default:
		return fmt.Sprintf("%T", v)
	}
}
