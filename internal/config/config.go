// Package config defines the controller configuration surface: the
// five batching knobs, the engine endpoint, the job database location,
// and logging options. Values come from a YAML file, environment
// variables, and CLI flags, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values and hard limits for the batching knobs.
const (
	// DefaultBatchSize is the number of SKUs sent to the engine per call.
	DefaultBatchSize = 100

	// MaxBatchSize is the hard ceiling the engine endpoint accepts.
	MaxBatchSize = 300

	// DefaultConcurrency is the number of engine calls in flight at once.
	DefaultConcurrency = 2

	// MaxRecommendedConcurrency is the documented upper bound; higher
	// values are rejected to protect the engine.
	MaxRecommendedConcurrency = 3

	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 3

	// DefaultTimeoutSeconds is the per-call ceiling for one engine call.
	DefaultTimeoutSeconds = 120

	// DefaultSleepBetweenBatchesMS smooths load on the engine between
	// successive chunk dispatches.
	DefaultSleepBetweenBatchesMS = 500

	// DefaultStaleAfterMinutes is how long a job may sit in "processing"
	// before it is considered abandoned and re-admitted. It comfortably
	// exceeds the worst-case in-flight window of
	// TimeoutSeconds * (Retries + 1) plus backoff.
	DefaultStaleAfterMinutes = 30

	// DefaultDatabasePath is the SQLite job store location.
	DefaultDatabasePath = "titlegen.db"

	// DefaultEngineURL is the title-generation engine base URL.
	DefaultEngineURL = "http://localhost:8090"

	// DefaultMode is the engine processing mode.
	DefaultMode = "seo_and_label"
)

// ErrInvalidConfig is wrapped by all configuration validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Logging holds the logging section of the config file.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the full controller configuration.
type Config struct {
	// BatchSize is the maximum number of SKUs per engine call.
	BatchSize int `yaml:"batch_size"`

	// Concurrency caps engine calls in flight across the whole run.
	Concurrency int `yaml:"concurrency"`

	// Retries is the number of retries per chunk after the first attempt.
	Retries int `yaml:"retries"`

	// TimeoutSeconds bounds a single engine call.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// SleepBetweenBatchesMS is the pause after each chunk resolves,
	// taken while the concurrency slot is still held.
	SleepBetweenBatchesMS int `yaml:"sleep_between_batches_ms"`

	// StaleAfterMinutes is the re-admission threshold for jobs stuck
	// in "processing" after an abnormal termination.
	StaleAfterMinutes int `yaml:"stale_after_minutes"`

	// EngineURL is the base URL of the title-generation engine.
	EngineURL string `yaml:"engine_url"`

	// DatabasePath is the SQLite job store file.
	DatabasePath string `yaml:"database_path"`

	// Mode is the default engine processing mode.
	Mode string `yaml:"mode"`

	Logging Logging `yaml:"logging"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		BatchSize:             DefaultBatchSize,
		Concurrency:           DefaultConcurrency,
		Retries:               DefaultRetries,
		TimeoutSeconds:        DefaultTimeoutSeconds,
		SleepBetweenBatchesMS: DefaultSleepBetweenBatchesMS,
		StaleAfterMinutes:     DefaultStaleAfterMinutes,
		EngineURL:             DefaultEngineURL,
		DatabasePath:          DefaultDatabasePath,
		Mode:                  DefaultMode,
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path over defaults, then applies
// environment overrides. A missing file is not an error; env vars and
// defaults still apply.
func Load(path string) (*Config, error) {
	cfg := New()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
				return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, unmarshalErr)
			}
		case os.IsNotExist(err):
			// Fall through to env + defaults.
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides config values from the environment. The batching
// knobs use the bare names from the deployment contract; logging uses
// TITLEGEN_-prefixed names.
func (c *Config) applyEnv() {
	intVar(&c.BatchSize, "BATCH_SIZE")
	intVar(&c.Concurrency, "CONCURRENCY")
	intVar(&c.Retries, "RETRIES")
	intVar(&c.TimeoutSeconds, "TIMEOUT_SECONDS")
	intVar(&c.SleepBetweenBatchesMS, "SLEEP_BETWEEN_BATCHES_MS")
	intVar(&c.StaleAfterMinutes, "STALE_AFTER_MINUTES")
	strVar(&c.EngineURL, "ENGINE_URL")
	strVar(&c.DatabasePath, "DATABASE_PATH")
	strVar(&c.Mode, "MODE")
	strVar(&c.Logging.Level, "TITLEGEN_LOG_LEVEL")
	strVar(&c.Logging.Format, "TITLEGEN_LOG_FORMAT")
	strVar(&c.Logging.File, "TITLEGEN_LOG_FILE")
}

// Validate checks every knob against its allowed range. All violations
// wrap ErrInvalidConfig and are fatal at startup: a run never begins
// with an invalid configuration.
func (c *Config) Validate() error {
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch_size %d out of range [1,%d]", ErrInvalidConfig, c.BatchSize, MaxBatchSize)
	}
	if c.Concurrency < 1 || c.Concurrency > MaxRecommendedConcurrency {
		return fmt.Errorf("%w: concurrency %d out of range [1,%d]", ErrInvalidConfig, c.Concurrency, MaxRecommendedConcurrency)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%w: retries %d must not be negative", ErrInvalidConfig, c.Retries)
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("%w: timeout_seconds %d must be positive", ErrInvalidConfig, c.TimeoutSeconds)
	}
	if c.SleepBetweenBatchesMS < 0 {
		return fmt.Errorf("%w: sleep_between_batches_ms %d must not be negative", ErrInvalidConfig, c.SleepBetweenBatchesMS)
	}
	if c.StaleAfterMinutes < 1 {
		return fmt.Errorf("%w: stale_after_minutes %d must be positive", ErrInvalidConfig, c.StaleAfterMinutes)
	}
	if c.EngineURL == "" {
		return fmt.Errorf("%w: engine_url must not be empty", ErrInvalidConfig)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database_path must not be empty", ErrInvalidConfig)
	}
	return nil
}

// Timeout returns the per-call timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SleepBetweenBatches returns the inter-batch pause as a duration.
func (c *Config) SleepBetweenBatches() time.Duration {
	return time.Duration(c.SleepBetweenBatchesMS) * time.Millisecond
}

// StaleAfter returns the processing re-admission threshold.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

func intVar(dst *int, name string) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return
	}
	*dst = v
}

func strVar(dst *string, name string) {
	if raw := os.Getenv(name); raw != "" {
		*dst = raw
	}
}
