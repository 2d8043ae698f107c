package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
dedupe:
  inclusion_threshold: 0.4
  weights:
    email: 0.3
scheduler:
  auto_merge_interval_minutes: 15
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.InDelta(t, 0.4, cfg.Dedupe.InclusionThreshold, 1e-9)
	assert.InDelta(t, 0.3, cfg.Dedupe.Weights.Email, 1e-9)
	assert.InDelta(t, 0.30, cfg.Dedupe.Weights.Name, 1e-9)
	assert.InDelta(t, 0.8, cfg.Dedupe.ExactConfidence, 1e-9)
	assert.Equal(t, 15, cfg.Scheduler.AutoMergeIntervalMinutes)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeFile(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CUSTOMERDUPES_PORT", "7000")
	t.Setenv("CUSTOMERDUPES_DB_PATH", "/tmp/x.db")
	t.Setenv("CUSTOMERDUPES_LOG_LEVEL", "debug")
	t.Setenv("CUSTOMERDUPES_API_KEY", "secret")
	t.Setenv("CUSTOMERDUPES_AUTO_MERGE_INTERVAL_MINUTES", "5")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, 5, cfg.Scheduler.AutoMergeIntervalMinutes)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	t.Setenv("CUSTOMERDUPES_PORT", "eighty")
	cfg := DefaultConfig()
	assert.Error(t, cfg.ApplyEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"db path", func(c *Config) { c.Database.Path = "" }},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"interval", func(c *Config) { c.Scheduler.AutoMergeIntervalMinutes = -1 }},
		{"dedupe", func(c *Config) { c.Dedupe.InclusionThreshold = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
