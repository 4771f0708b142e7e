package config

import (
	"errors"
	"time"
)

// Config validation errors
var (
	ErrMissingURL      = errors.New("prowlarr_url must be set")
	ErrMissingAPIKey   = errors.New("prowlarr_api_key must be set")
	ErrInvalidRetries  = errors.New("test_retries must be >= 0")
	ErrInvalidDelay    = errors.New("test_retry_delay_sec must be > 0")
	ErrInvalidAttempts = errors.New("indexer_max_attempts must be >= 1")
	ErrInvalidCooldown = errors.New("indexer_cooldown_min must be >= 0")
)

// Config is the immutable application configuration. It is resolved once
// at startup (YAML file, then environment overrides) and passed down
// explicitly; nothing below the CLI reads the environment.
type Config struct {
	ProwlarrURL    string `yaml:"prowlarr_url"     envconfig:"PROWLARR_URL"`
	ProwlarrAPIKey string `yaml:"prowlarr_api_key" envconfig:"PROWLARR_API_KEY"`

	CheckIntervalMin  int `yaml:"check_interval_min"   envconfig:"CHECK_INTERVAL_MIN"`
	TestRetries       int `yaml:"test_retries"         envconfig:"TEST_RETRIES"`
	TestRetryDelaySec int `yaml:"test_retry_delay_sec" envconfig:"TEST_RETRY_DELAY_SEC"`

	TagToTry               string `yaml:"tag_to_try"                 envconfig:"TAG_TO_TRY"`
	TagForce               bool   `yaml:"tag_force"                  envconfig:"TAG_FORCE"`
	ApplyTagSaveBeforeTest bool   `yaml:"apply_tag_save_before_test" envconfig:"APPLY_TAG_SAVE_BEFORE_TEST"`
	TestAsUI               bool   `yaml:"test_as_ui"                 envconfig:"TEST_AS_UI"`

	ForceTestIndexers []string `yaml:"force_test_indexers" envconfig:"FORCE_TEST_INDEXERS"`

	DryRun  bool `yaml:"dry_run"  envconfig:"DRY_RUN"`
	OneShot bool `yaml:"one_shot" envconfig:"ONE_SHOT"`

	MaxAttempts int    `yaml:"indexer_max_attempts" envconfig:"INDEXER_MAX_ATTEMPTS"`
	CooldownMin int    `yaml:"indexer_cooldown_min" envconfig:"INDEXER_COOLDOWN_MIN"`
	StateFile   string `yaml:"indexer_state_file"   envconfig:"INDEXER_STATE_FILE"`
	RedisURL    string `yaml:"state_redis_url"      envconfig:"STATE_REDIS_URL"`

	MetricsPort int    `yaml:"metrics_port" envconfig:"METRICS_PORT"`
	LogLevel    string `yaml:"log_level"    envconfig:"LOG_LEVEL"`
}

// Default returns a Config with default values. DRY_RUN defaults to true
// so a misconfigured deployment never mutates indexers by accident.
func Default() *Config {
	return &Config{
		CheckIntervalMin:  30,
		TestRetries:       2,
		TestRetryDelaySec: 2,
		DryRun:            true,
		MaxAttempts:       3,
		CooldownMin:       60,
		StateFile:         "/app/data/indexer_state.json",
		MetricsPort:       9090,
		LogLevel:          "info",
	}
}

// Validate checks the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.ProwlarrURL == "" {
		return ErrMissingURL
	}
	if c.ProwlarrAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.TestRetries < 0 {
		return ErrInvalidRetries
	}
	if c.TestRetryDelaySec <= 0 {
		return ErrInvalidDelay
	}
	if c.MaxAttempts < 1 {
		return ErrInvalidAttempts
	}
	if c.CooldownMin < 0 {
		return ErrInvalidCooldown
	}
	return nil
}

// CheckInterval returns the cycle interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMin) * time.Minute
}

// Cooldown returns the cooldown window as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMin) * time.Minute
}

// TestRetryDelay returns the base backoff delay as a duration.
func (c *Config) TestRetryDelay() time.Duration {
	return time.Duration(c.TestRetryDelaySec) * time.Second
}
