package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cfg := &Config{Port: 8080, Audit: AuditConfig{Backend: "log"}}
	require.NoError(t, validate(cfg))

	cfg.Port = 0
	assert.Error(t, validate(cfg))

	cfg.Port = 8080
	cfg.Audit.Backend = "kafka"
	assert.Error(t, validate(cfg))

	// The redis audit trail needs the cache connection.
	cfg.Audit.Backend = "redis"
	cfg.Cache.Enabled = false
	assert.Error(t, validate(cfg))

	cfg.Cache.Enabled = true
	assert.NoError(t, validate(cfg))
}

func TestLoadDefaults(t *testing.T) {
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(orig) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "log", cfg.Audit.Backend)
	assert.Equal(t, 30, cfg.Agents.HealthCheckInterval)
}
