package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		format   string
		terminal bool
		want     string
	}{
		{"", true, FormatConsole},
		{"auto", false, FormatJSON},
		{"AUTO", true, FormatConsole},
		{"json", true, FormatJSON},
		{" console ", false, FormatConsole},
		{"text", false, FormatConsole},
	}
	for _, tt := range tests {
		got, err := resolveFormat(tt.format, tt.terminal)
		require.NoError(t, err, tt.format)
		assert.Equal(t, tt.want, got, "format %q terminal %v", tt.format, tt.terminal)
	}

	_, err := resolveFormat("xml", false)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", FormatJSON)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger("warn", FormatConsole)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger("loud", FormatJSON)
	assert.Error(t, err)
}
