// Package server provides configuration helpers that define runtime defaults
// and limits for the Huddle service.
package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"

	"github.com/huddlechat/huddle/internal/room"
)

// Config holds the server configuration. Fields are populated from the
// environment and fall back to the defaults below when unset or invalid.
type Config struct {
	Port            string        `env:"SERVER_PORT"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS"` // comma-separated
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE"`
	MaxParticipants int           `env:"MAX_PARTICIPANTS"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST"`
	RateLimitRefill time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `env:"LOG_LEVEL"`
}

// NewConfig returns a Config populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Port:            ":8080",
		AllowedOrigins:  "http://localhost:8080",
		MaxMessageSize:  4096,
		MaxParticipants: room.DefaultMaxParticipants,
		RateLimitBurst:  5,
		RateLimitRefill: time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// LoadConfig reads the configuration from the environment and sanitizes it.
func LoadConfig() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("reading config from environment: %w", err)
	}
	cfg.sanitize()
	return &cfg, nil
}

// sanitize replaces empty or out-of-range values with defaults.
func (c *Config) sanitize() {
	defaults := NewConfig()
	if c.Port == "" {
		c.Port = defaults.Port
	}
	if c.AllowedOrigins == "" {
		c.AllowedOrigins = defaults.AllowedOrigins
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.MaxParticipants <= 0 {
		c.MaxParticipants = defaults.MaxParticipants
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = defaults.RateLimitBurst
	}
	if c.RateLimitRefill <= 0 {
		c.RateLimitRefill = defaults.RateLimitRefill
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
}

// Origins returns the configured allowed origins as a slice.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ParseLogLevel maps a level name to a slog.Level, defaulting to info for
// anything unrecognized.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
