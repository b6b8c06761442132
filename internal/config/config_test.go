package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultRetries, cfg.Retries)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.TimeoutSeconds)
	assert.Equal(t, DefaultSleepBetweenBatchesMS, cfg.SleepBetweenBatchesMS)
	assert.Equal(t, DefaultStaleAfterMinutes, cfg.StaleAfterMinutes)
	assert.Equal(t, DefaultMode, cfg.Mode)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "titlegen.yaml")
	fileCfg := New()
	fileCfg.BatchSize = 50
	fileCfg.Concurrency = 1
	require.NoError(t, fileCfg.Save(path))

	// Env overrides file.
	t.Setenv("BATCH_SIZE", "200")
	t.Setenv("RETRIES", "5")
	t.Setenv("ENGINE_URL", "http://engine.internal:9000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.BatchSize, "env wins over file")
	assert.Equal(t, 1, cfg.Concurrency, "file wins over default")
	assert.Equal(t, 5, cfg.Retries)
	assert.Equal(t, "http://engine.internal:9000", cfg.EngineURL)
}

func TestLoad_IgnoresUnparsableEnv(t *testing.T) {
	t.Setenv("BATCH_SIZE", "lots")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"negative batch size", func(c *Config) { c.BatchSize = -10 }},
		{"batch size over ceiling", func(c *Config) { c.BatchSize = MaxBatchSize + 1 }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"concurrency over recommendation", func(c *Config) { c.Concurrency = MaxRecommendedConcurrency + 1 }},
		{"negative retries", func(c *Config) { c.Retries = -1 }},
		{"zero timeout", func(c *Config) { c.TimeoutSeconds = 0 }},
		{"negative sleep", func(c *Config) { c.SleepBetweenBatchesMS = -1 }},
		{"zero stale threshold", func(c *Config) { c.StaleAfterMinutes = 0 }},
		{"empty engine url", func(c *Config) { c.EngineURL = "" }},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := New()
	cfg.TimeoutSeconds = 90
	cfg.SleepBetweenBatchesMS = 250
	cfg.StaleAfterMinutes = 15

	assert.Equal(t, "1m30s", cfg.Timeout().String())
	assert.Equal(t, "250ms", cfg.SleepBetweenBatches().String())
	assert.Equal(t, "15m0s", cfg.StaleAfter().String())
}
