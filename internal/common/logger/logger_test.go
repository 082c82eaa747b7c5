package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapAdapter_FieldsAndChildren(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).With(map[string]interface{}{"agent": "judge"})

	log.Info("run completed", map[string]interface{}{"attempts": 2})
	log.WithError(errors.New("boom")).Error("run failed", nil)

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "judge", first["agent"])
	assert.EqualValues(t, 2, first["attempts"])

	second := entries[1].ContextMap()
	assert.Equal(t, "judge", second["agent"])
	assert.Equal(t, "boom", second["error"])
}

func TestNew_LevelParsing(t *testing.T) {
	assert.True(t, New("debug", "console").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, New("warn", "json").Core().Enabled(zapcore.InfoLevel))
	assert.True(t, New("not-a-level", "json").Core().Enabled(zapcore.InfoLevel))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := NewNoOpLogger()
	assert.Same(t, l, OrNop(l))
}
