// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// ErrArkAPIKeyRequired is returned when ARK_API_KEY is not set.
var ErrArkAPIKeyRequired = errors.New("config: ARK_API_KEY is required")

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Ark settings
	ArkAPIKey     string `env:"ARK_API_KEY, required" json:"-"` // Masked in JSON
	ArkBaseURL    string `env:"ARK_BASE_URL" json:"ark_base_url,omitempty"`
	ArkTimeoutSec int    `env:"ARK_TIMEOUT_SEC, default=60" json:"ark_timeout_sec"`
	DefaultModel  string `env:"DEFAULT_MODEL" json:"default_model,omitempty"`

	// Flow settings
	MaxPollAttempts int `env:"MAX_POLL_ATTEMPTS, default=900" json:"max_poll_attempts"` // 0 polls forever

	// Storage and media settings
	TempDir         string `env:"TEMP_DIR, default=./temp" json:"temp_dir"`
	FFmpegPath      string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	FFprobePath     string `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"`
	FetchTimeoutSec int    `env:"FETCH_TIMEOUT_SEC, default=300" json:"fetch_timeout_sec"` // 0 disables the limit

	// Optional task cache settings
	RedisAddr       string `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword   string `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	TaskCacheTTLSec int    `env:"TASK_CACHE_TTL_SEC, default=1800" json:"task_cache_ttl_sec"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// RedisEnabled returns true if the task cache should use Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// ArkTimeout is the per-request timeout for provider calls.
func (c *Config) ArkTimeout() time.Duration {
	return time.Duration(c.ArkTimeoutSec) * time.Second
}

// FetchTimeout bounds each segment download during stitching.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// TaskCacheTTL is how long terminal task payloads are cached.
func (c *Config) TaskCacheTTL() time.Duration {
	return time.Duration(c.TaskCacheTTLSec) * time.Second
}

// Load reads a .env file from the working directory when one exists, then
// reads configuration from environment variables using go-envconfig.
// Variables already set in the environment take precedence over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "ARK_API_KEY") {
			return nil, ErrArkAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and sane.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ArkAPIKey) == "" {
		return ErrArkAPIKeyRequired
	}
	if c.MaxPollAttempts < 0 {
		return fmt.Errorf("config: MAX_POLL_ATTEMPTS must not be negative, got %d", c.MaxPollAttempts)
	}
	if c.ArkTimeoutSec <= 0 {
		return fmt.Errorf("config: ARK_TIMEOUT_SEC must be positive, got %d", c.ArkTimeoutSec)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, ArkBaseURL: %s, DefaultModel: %s, TempDir: %s, MaxPollAttempts: %d, RedisAddr: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.ArkBaseURL,
		c.DefaultModel,
		c.TempDir,
		c.MaxPollAttempts,
		c.RedisAddr,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
