// internal/inputs/coerce.go
package inputs

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"textagents/internal/common/errors"
	"textagents/internal/spec"
)

// Coerce converts value to the declared type of def. List types and unknown
// types pass through unchanged.
func Coerce(value interface{}, def spec.InputSpec) (interface{}, error) {
	switch def.Type {
	case spec.TypeStr:
		return Stringify(value), nil

	case spec.TypeInt:
		if n, ok := asInt(value); ok {
			return n, nil
		}
		if s, ok := value.(string); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				return n, nil
			}
		}
		return nil, errors.NewCannotCoerceError(def.Name, value, "int")

	case spec.TypeFloat:
		if f, ok := asFloat(value); ok {
			return f, nil
		}
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f, nil
			}
		}
		return nil, errors.NewCannotCoerceError(def.Name, value, "float")

	case spec.TypeBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(v) {
			case "true", "1", "yes", "on":
				return true, nil
			case "false", "0", "no", "off":
				return false, nil
			}
		}
		return nil, errors.NewCannotCoerceError(def.Name, value, "bool")
	}
	return value, nil
}

// Stringify renders a value the way it appears in an interpolated prompt.
// Booleans render as True and False, nil as None, and whole floats keep a
// trailing ".0", matching how agent files written for the Python runtime
// expect their inputs to read.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(v, 64)
	case float32:
		return formatFloat(float64(v), 32)
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// asInt accepts integer kinds only; bool is never numeric.
func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
		return 0, false
	}
	if n, ok := asInt(value); ok {
		return float64(n), true
	}
	return 0, false
}
