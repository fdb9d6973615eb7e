// Package config handles application configuration from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Database   DatabaseConfig  `yaml:"database"`
	LLM        LLMConfig       `yaml:"llm"`
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Cache      CacheConfig     `yaml:"cache"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Logging    LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port        int `yaml:"port"`
	MaxTextSize int `yaml:"max_text_size"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // sqlite file for API keys and audit logs
}

type LLMConfig struct {
	Provider  string `yaml:"provider"` // openai, anthropic, gemini, ollama, none
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	OllamaURL string `yaml:"ollama_url"`
}

// PipelineConfig tunes the extraction pipeline.
type PipelineConfig struct {
	// Mode is the default parse mode when a request does not name one.
	Mode string `yaml:"mode"` // hybrid, pattern_only, semantic_only

	Concurrent bool `yaml:"concurrent"`
	Workers    int  `yaml:"workers"`

	PipelineTimeoutSeconds int     `yaml:"pipeline_timeout_seconds"`
	BatchTimeoutSeconds    int     `yaml:"batch_timeout_seconds"`
	PriorityTimeoutSeconds float64 `yaml:"priority_timeout_seconds"`

	Thresholds ThresholdConfig `yaml:"thresholds"`
}

// ThresholdConfig holds the confidence cut points for strategy routing.
type ThresholdConfig struct {
	PatternMin  float64 `yaml:"pattern_min"`  // >= this: pattern match only
	BackupMin   float64 `yaml:"backup_min"`   // >= this: deterministic backup
	SemanticMin float64 `yaml:"semantic_min"` // >= this: semantic model; below: skip
}

type CacheConfig struct {
	TTLHours      int    `yaml:"ttl_hours"`
	MaxEntries    int    `yaml:"max_entries"`
	SweepSchedule string `yaml:"sweep_schedule"` // cron spec for the periodic expiry sweep
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"default_requests_per_minute"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			MaxTextSize: 10000,
		},
		Database: DatabaseConfig{
			Path: "./data/chrono.db",
		},
		LLM: LLMConfig{
			Provider: "none",
			Model:    "gpt-4o-mini",
		},
		Pipeline: PipelineConfig{
			Mode:                   "hybrid",
			Concurrent:             true,
			Workers:                4,
			PipelineTimeoutSeconds: 30,
			BatchTimeoutSeconds:    10,
			PriorityTimeoutSeconds: 3,
			Thresholds: ThresholdConfig{
				PatternMin:  0.8,
				BackupMin:   0.6,
				SemanticMin: 0.4,
			},
		},
		Cache: CacheConfig{
			TTLHours:      24,
			MaxEntries:    1000,
			SweepSchedule: "@hourly",
		},
		RateLimits: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s (run with --generate-config to create one)", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Interpolate environment variables
	content := interpolateEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// GenerateSample creates a sample configuration file.
func GenerateSample(path string) error {
	sample := `# Chrono Configuration
# See documentation for all options

server:
  port: 8080
  max_text_size: 10000

database:
  path: ./data/chrono.db

llm:
  provider: none  # openai, anthropic, gemini, ollama, none
  model: gpt-4o-mini
  api_key: ${OPENAI_API_KEY}

  # For Ollama (local):
  # provider: ollama
  # model: llama3
  # ollama_url: http://localhost:11434

pipeline:
  mode: hybrid  # hybrid, pattern_only, semantic_only
  concurrent: true
  workers: 4
  pipeline_timeout_seconds: 30
  batch_timeout_seconds: 10
  priority_timeout_seconds: 3
  thresholds:
    pattern_min: 0.8
    backup_min: 0.6
    semantic_min: 0.4

cache:
  ttl_hours: 24
  max_entries: 1000
  sweep_schedule: "@hourly"

rate_limits:
  default_requests_per_minute: 60

logging:
  level: info  # debug, info, warn, error
  format: json # json or text
`
	return os.WriteFile(path, []byte(sample), 0644)
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validProviders := map[string]bool{"openai": true, "anthropic": true, "gemini": true, "ollama": true, "none": true}
	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%s API key is required", c.LLM.Provider)
		}
	}

	validModes := map[string]bool{"hybrid": true, "pattern_only": true, "semantic_only": true}
	if !validModes[c.Pipeline.Mode] {
		return fmt.Errorf("unsupported pipeline mode: %s", c.Pipeline.Mode)
	}

	t := c.Pipeline.Thresholds
	if !(t.SemanticMin <= t.BackupMin && t.BackupMin <= t.PatternMin) {
		return fmt.Errorf("routing thresholds must be ordered: semantic_min <= backup_min <= pattern_min")
	}
	for _, v := range []float64{t.PatternMin, t.BackupMin, t.SemanticMin} {
		if v < 0 || v > 1 {
			return fmt.Errorf("routing threshold out of range [0,1]: %v", v)
		}
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be at least 1")
	}
	if c.Cache.TTLHours < 1 {
		return fmt.Errorf("cache TTL must be at least 1 hour")
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache max_entries must be at least 1")
	}

	return nil
}

// PipelineTimeout returns the whole-request deadline.
func (c *Config) PipelineTimeout() time.Duration {
	return time.Duration(c.Pipeline.PipelineTimeoutSeconds) * time.Second
}

// BatchTimeout returns the per-field-batch deadline.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.Pipeline.BatchTimeoutSeconds) * time.Second
}

// PriorityTimeout returns the shortened deadline used when retrying the
// essential-field subset after a batch timeout.
func (c *Config) PriorityTimeout() time.Duration {
	return time.Duration(c.Pipeline.PriorityTimeoutSeconds * float64(time.Second))
}

// CacheTTL returns the cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// interpolateEnvVars replaces ${VAR_NAME} with environment variable values.
func interpolateEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return match // Keep original if not set
	})
}
