package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLevels(t *testing.T) {
	defer Set(nil)

	require.NoError(t, Init("production", ""))
	assert.True(t, Get().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, Get().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Init("development", "warn"))
	assert.False(t, Get().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Get().Core().Enabled(zapcore.WarnLevel))

	assert.Error(t, Init("development", "loud"))
}

func TestGetFallsBackWhenUnset(t *testing.T) {
	Set(nil)
	assert.NotNil(t, Get())

	nop := zap.NewNop()
	Set(nop)
	defer Set(nil)
	assert.Same(t, nop, Get())
}
