package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "hybrid", cfg.Pipeline.Mode)
	assert.Equal(t, 0.8, cfg.Pipeline.Thresholds.PatternMin)
	assert.Equal(t, 0.6, cfg.Pipeline.Thresholds.BackupMin)
	assert.Equal(t, 0.4, cfg.Pipeline.Thresholds.SemanticMin)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 30*time.Second, cfg.PipelineTimeout())
	assert.Equal(t, 3*time.Second, cfg.PriorityTimeout())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
pipeline:
  mode: pattern_only
  concurrent: false
cache:
  ttl_hours: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "pattern_only", cfg.Pipeline.Mode)
	assert.False(t, cfg.Pipeline.Concurrent)
	assert.Equal(t, 2*time.Hour, cfg.CacheTTL())
	// Unset sections keep defaults.
	assert.Equal(t, 10000, cfg.Server.MaxTextSize)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadEnvInterpolation(t *testing.T) {
	t.Setenv("CHRONO_TEST_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm:
  provider: openai
  api_key: ${CHRONO_TEST_KEY}
  model: ${CHRONO_TEST_UNSET_MODEL}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	// Unset variables are left as-is rather than blanked.
	assert.Equal(t, "${CHRONO_TEST_UNSET_MODEL}", cfg.LLM.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid port"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "palm" }, "unsupported LLM provider"},
		{"openai needs key", func(c *Config) { c.LLM.Provider = "openai" }, "API key is required"},
		{"anthropic needs key", func(c *Config) { c.LLM.Provider = "anthropic" }, "API key is required"},
		{"ollama needs no key", func(c *Config) { c.LLM.Provider = "ollama" }, ""},
		{"bad mode", func(c *Config) { c.Pipeline.Mode = "psychic" }, "unsupported pipeline mode"},
		{"inverted thresholds", func(c *Config) { c.Pipeline.Thresholds.BackupMin = 0.9 }, "must be ordered"},
		{"threshold out of range", func(c *Config) {
			c.Pipeline.Thresholds.PatternMin = 1.5
			c.Pipeline.Thresholds.BackupMin = 1.2
		}, "out of range"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "workers"},
		{"zero ttl", func(c *Config) { c.Cache.TTLHours = 0 }, "TTL"},
		{"zero max entries", func(c *Config) { c.Cache.MaxEntries = 0 }, "max_entries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGenerateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, GenerateSample(path))

	// The sample keeps the ${OPENAI_API_KEY} placeholder but provider none,
	// so it validates as written.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, "@hourly", cfg.Cache.SweepSchedule)
}
