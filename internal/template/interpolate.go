// Package template fills {name} placeholders in prompt and instruction text.
//
// There is no escaping, conditionals or loops. Braces that do not enclose a
// word are left untouched.
package template

import (
	"regexp"
	"strings"

	"textagents/internal/common/errors"
	"textagents/internal/inputs"
)

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// Interpolate replaces every {name} in tpl with the string form of values[name].
// A placeholder without a value fails with a template error.
func Interpolate(tpl string, values map[string]interface{}) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(tpl, func(token string) string {
		name := token[1 : len(token)-1]
		v, ok := values[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return token
		}
		return inputs.Stringify(v)
	})

	if missing != "" {
		available := make([]string, 0, len(values))
		for k := range values {
			available = append(available, k)
		}
		return "", errors.NewMissingPlaceholderError(missing, available)
	}
	return out, nil
}

// InterpolateOptional is Interpolate for text that may be empty.
func InterpolateOptional(tpl string, values map[string]interface{}) (string, error) {
	if strings.TrimSpace(tpl) == "" {
		return tpl, nil
	}
	return Interpolate(tpl, values)
}
