package template

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textagents/internal/common/errors"
)

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name   string
		tpl    string
		values map[string]interface{}
		want   string
	}{
		{"repeated placeholder", "{x} and {x}", map[string]interface{}{"x": "A"}, "A and A"},
		{"numbers", "count={n} ratio={r}", map[string]interface{}{"n": 3, "r": 0.5}, "count=3 ratio=0.5"},
		{"bool", "flag={b}", map[string]interface{}{"b": true}, "flag=True"},
		{"nil", "value={v}", map[string]interface{}{"v": nil}, "value=None"},
		{"non word braces kept", `json: {"a": 1} {x}`, map[string]interface{}{"x": "y"}, `json: {"a": 1} y`},
		{"extra values ignored", "{x}", map[string]interface{}{"x": "1", "unused": "2"}, "1"},
		{"value containing braces not re-expanded", "{x}", map[string]interface{}{"x": "{y}"}, "{y}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interpolate(tt.tpl, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpolate_MissingPlaceholder(t *testing.T) {
	_, err := Interpolate("Review {doc} for {audience}", map[string]interface{}{"doc": "d", "CURRENT_DATE": "2026-01-01"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrTemplate))
	assert.Contains(t, err.Error(), "Template placeholder '{audience}' not found in inputs.")
	assert.Contains(t, err.Error(), "Available inputs: 'CURRENT_DATE', 'doc'")
}

func TestInterpolateOptional(t *testing.T) {
	got, err := InterpolateOptional("", nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = InterpolateOptional("Focus on {topic}", map[string]interface{}{"topic": "security"})
	require.NoError(t, err)
	assert.Equal(t, "Focus on security", got)
}
