// Package config loads TranscribeBridge's YAML configuration via viper:
// sane defaults, a config file, environment-variable overrides, then a
// validate() pass that turns a missing required field into a startup-time
// fatal error, per §6 of the specification.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"port" yaml:"port"`

	Provider Provider `mapstructure:"provider" yaml:"provider"`
	Webhook  Webhook  `mapstructure:"webhook" yaml:"webhook"`
	Queue    Queue    `mapstructure:"queue" yaml:"queue"`
	Breaker  Breaker  `mapstructure:"breaker" yaml:"breaker"`
	Store    Store    `mapstructure:"store" yaml:"store"`
	Blob     Blob     `mapstructure:"blob" yaml:"blob"`
	Log      Log      `mapstructure:"log" yaml:"log"`
	Metrics  Metrics  `mapstructure:"metrics" yaml:"metrics"`

	SegmentDurationMinutes  int  `mapstructure:"segment_duration_minutes" yaml:"segment_duration_minutes"`
	CleanupIntervalHours    int  `mapstructure:"cleanup_interval_hours" yaml:"cleanup_interval_hours"`
	CompletionPolicyLenient bool `mapstructure:"completion_policy_lenient" yaml:"completion_policy_lenient"`
}

// Provider holds the transcription provider client's settings.
type Provider struct {
	APIKey                string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL               string `mapstructure:"base_url" yaml:"base_url"`
	WebhookSecret         string `mapstructure:"webhook_secret" yaml:"webhook_secret"`
	CallbackBaseURL       string `mapstructure:"callback_base_url" yaml:"callback_base_url"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// Webhook holds the outbound Client Webhook Deliverer's settings.
type Webhook struct {
	SigningSecret  string `mapstructure:"signing_secret" yaml:"signing_secret"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxAttempts    int    `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// Queue holds the Segment Queue's tunables (§4.1 of the spec).
type Queue struct {
	MaxConcurrent     int `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	MaxAttempts       int `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelayMs       int `mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
	BackoffMultiplier int `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxDelayMs        int `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	PumpIntervalMs    int `mapstructure:"pump_interval_ms" yaml:"pump_interval_ms"`
}

// Breaker holds the Circuit Breaker's tunables (§4.5).
type Breaker struct {
	FailureThreshold   int `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	RecoveryTimeoutSec int `mapstructure:"recovery_timeout_seconds" yaml:"recovery_timeout_seconds"`
}

type Store struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

type Blob struct {
	RootDir string `mapstructure:"root_dir" yaml:"root_dir"`
}

type Log struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type Metrics struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

func Load(path string) (*Config, error) {

	if path == "" {
		path = "config.yaml"
	}

	// 1. Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// FALLBACK: If we are in Docker (or similar) and didn't provide a flag, check /config/config.yaml
		if path == "config.yaml" {
			if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
				path = "/config/config.yaml"
			} else if _, errEx := os.Stat("config.yaml.example"); errEx == nil {
				// If config.yaml is missing but example exists, give a helpful error
				return nil, fmt.Errorf("configuration file 'config.yaml' not found\n\n" +
					"To fix this, run:\n" +
					"  cp config.yaml.example config.yaml\n" +
					"Then edit it with your provider credentials.")
			} else {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
		} else {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	v := viper.New()

	// Set Defaults
	v.SetDefault("port", ":8080")
	v.SetDefault("segment_duration_minutes", 15)
	v.SetDefault("cleanup_interval_hours", 24)
	v.SetDefault("completion_policy_lenient", false)

	v.SetDefault("provider.request_timeout_seconds", 300)

	v.SetDefault("webhook.timeout_seconds", 30)
	v.SetDefault("webhook.max_attempts", 5)

	v.SetDefault("queue.max_concurrent", 8)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.base_delay_ms", 1000)
	v.SetDefault("queue.backoff_multiplier", 2)
	v.SetDefault("queue.max_delay_ms", 30000)
	v.SetDefault("queue.pump_interval_ms", 100)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout_seconds", 60)

	v.SetDefault("blob.root_dir", "./data/blobs")

	v.SetDefault("log.path", "transcribebridge.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)

	v.SetDefault("metrics.addr", ":9090")

	// Read config File
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	// Support Environment Variables
	v.SetEnvPrefix("TRANSCRIBEBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate enforces §6's "missing any of providerApiKey, store credentials,
// or the base URL is a startup-time fatal error".
func (c *Config) validate() error {
	var missing []string

	if c.Provider.APIKey == "" {
		missing = append(missing, "provider.api_key")
	}
	if c.Store.DSN == "" {
		missing = append(missing, "store.dsn")
	}
	if c.Provider.CallbackBaseURL == "" {
		missing = append(missing, "provider.callback_base_url")
	}
	if c.Webhook.SigningSecret == "" {
		missing = append(missing, "webhook.signing_secret")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Queue.MaxConcurrent <= 0 {
		return errors.New("queue.max_concurrent must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return errors.New("queue.max_attempts must be positive")
	}

	return nil
}
