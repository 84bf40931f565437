package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "notify", cfg.StreamMode)
	assert.Equal(t, 500*time.Millisecond, cfg.StreamPollInterval)
	assert.Equal(t, 5*time.Minute, cfg.StreamMaxWait)
	assert.Equal(t, 1000, cfg.JobRetentionMax)
	assert.Equal(t, "models", cfg.ModelArchiveDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STREAM_MODE", "POLL")
	t.Setenv("STREAM_POLL_INTERVAL", "250ms")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("PREDICT_RATE_LIMIT", "2.5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "poll", cfg.StreamMode)
	assert.Equal(t, 250*time.Millisecond, cfg.StreamPollInterval)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 2.5, cfg.PredictRateLimit)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JOB_RETENTION_MAX=5\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("JOB_RETENTION_MAX") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.JobRetentionMax)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown stream mode", "STREAM_MODE", "websocket"},
		{"negative rate", "PREDICT_RATE_LIMIT", "-1"},
		{"zero max wait", "STREAM_MAX_WAIT", "0s"},
		{"negative retention", "JOB_RETENTION_MAX", "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
