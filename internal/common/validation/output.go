// Package validation re-checks structured agent output against the declared
// field constraints and reports every violation in one message a model can act on.
package validation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"textagents/internal/common/errors"
	"textagents/internal/spec"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// OutputValidator passes a valid result through unchanged or returns a
// retryable output-validation error.
type OutputValidator func(result map[string]interface{}) (map[string]interface{}, error)

// NewOutputValidator binds fields into an OutputValidator.
func NewOutputValidator(fields []spec.FieldSpec) OutputValidator {
	fields = append([]spec.FieldSpec(nil), fields...)
	return func(result map[string]interface{}) (map[string]interface{}, error) {
		if err := ValidateOutput(result, fields).Err(); err != nil {
			return nil, err
		}
		return result, nil
	}
}

// ValidateOutput checks every declared field of result, in field order.
func ValidateOutput(result map[string]interface{}, fields []spec.FieldSpec) *ValidationResult {
	var errs []ValidationError

	for _, f := range fields {
		value, present := result[f.Name]
		if !present || value == nil {
			if !f.Optional {
				errs = append(errs, ValidationError{
					Field:   f.Name,
					Message: fmt.Sprintf("'%s' is required but was None", f.Name),
					Code:    "REQUIRED_FIELD_MISSING",
				})
			}
			continue
		}
		errs = append(errs, validateField(f, value)...)
	}

	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func validateField(f spec.FieldSpec, value interface{}) []ValidationError {
	var errs []ValidationError
	add := func(code, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: f.Name, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if f.HasEnum() && !inEnum(value, f.Enum) {
		add("INVALID_ENUM_VALUE", "'%s' must be one of %s, got %s", f.Name, errors.Repr(f.Enum), errors.Repr(value))
	}

	if s, ok := value.(string); ok {
		n := utf8.RuneCountInString(s)
		if f.MaxLength != nil && n > *f.MaxLength {
			add("MAX_LENGTH_VIOLATION", "'%s' exceeds max_length of %d (got %d chars)", f.Name, *f.MaxLength, n)
		}
		if f.MinLength != nil && n < *f.MinLength {
			add("MIN_LENGTH_VIOLATION", "'%s' below min_length of %d (got %d chars)", f.Name, *f.MinLength, n)
		}
		if f.Pattern != nil {
			if re, err := regexp.Compile(*f.Pattern); err == nil && !re.MatchString(s) {
				add("PATTERN_MISMATCH", "'%s' must match pattern %s, got %s", f.Name, *f.Pattern, errors.Repr(s))
			}
		}
	}

	// bool is deliberately not a number here.
	if n, ok := toFloat(value); ok {
		if f.GE != nil && n < *f.GE {
			add("MINIMUM_VIOLATION", "'%s' must be >= %v, got %v", f.Name, *f.GE, value)
		}
		if f.LE != nil && n > *f.LE {
			add("MAXIMUM_VIOLATION", "'%s' must be <= %v, got %v", f.Name, *f.LE, value)
		}
		if f.GT != nil && n <= *f.GT {
			add("EXCLUSIVE_MINIMUM_VIOLATION", "'%s' must be > %v, got %v", f.Name, *f.GT, value)
		}
		if f.LT != nil && n >= *f.LT {
			add("EXCLUSIVE_MAXIMUM_VIOLATION", "'%s' must be < %v, got %v", f.Name, *f.LT, value)
		}
	}

	if n, ok := listLen(value); ok {
		if f.MaxItems != nil && n > *f.MaxItems {
			add("MAX_ITEMS_VIOLATION", "'%s' exceeds max_items of %d (got %d items)", f.Name, *f.MaxItems, n)
		}
		if f.MinItems != nil && n < *f.MinItems {
			add("MIN_ITEMS_VIOLATION", "'%s' below min_items of %d (got %d items)", f.Name, *f.MinItems, n)
		}
	}

	return errs
}

// Err returns nil when valid, otherwise the retry signal carrying all violations.
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	messages := vr.GetErrorMessages()
	return errors.NewModelRetryError("Output validation failed:\n- "+strings.Join(messages, "\n- "), messages)
}

// GetErrorMessages returns the violation messages in field order.
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = err.Message
	}
	return messages
}

// HasErrors checks if validation has errors for a specific field.
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a specific field.
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

func inEnum(value interface{}, allowed []interface{}) bool {
	for _, a := range allowed {
		if equalValues(value, a) {
			return true
		}
	}
	return false
}

// equalValues compares numbers by value regardless of Go type, everything else deeply.
func equalValues(a, b interface{}) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func listLen(value interface{}) (int, bool) {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len(), true
	}
	return 0, false
}
