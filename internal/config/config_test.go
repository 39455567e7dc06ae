package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 64, cfg.SendBuffer)
	assert.Equal(t, 5*time.Second, cfg.ChatRateInterval)
	assert.Empty(t, cfg.Consultations)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
mode: debug
port: 9090
ping_period: 10s
chat_rate_limit: 3
allowed_origins: ["https://clinic.example"]
consultations:
  appt-1: [doc-1, pat-7]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.PingPeriod)
	assert.Equal(t, 3, cfg.ChatRateLimit)
	assert.Equal(t, []string{"https://clinic.example"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"doc-1", "pat-7"}, cfg.Consultations["appt-1"])
}

func TestLoadFileRejectsBadPingPeriod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ping_period: 0s\n"), 0o600))
	_, err := LoadFile(path)
	assert.Error(t, err)
}
