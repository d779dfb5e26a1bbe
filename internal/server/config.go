// Package server provides configuration helpers that define runtime defaults,
// file and environment loading, and sanitizing for the relay.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAddress        = "0.0.0.0:1337"
	defaultReadBufferSize = 1024
	defaultEventQueueSize = 256
	defaultLogLevel       = "info"
)

// Config holds the relay settings. The zero value of every optional field
// keeps the plain TCP behavior: no HTTP surface and no write deadline.
type Config struct {
	Address        string        `yaml:"address"`
	HTTPAddress    string        `yaml:"http_address"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadBufferSize int           `yaml:"read_buffer_size"`
	EventQueueSize int           `yaml:"event_queue_size"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	LogLevel       string        `yaml:"log_level"`
	Development    bool          `yaml:"development"`
}

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() *Config {
	return &Config{
		Address:        defaultAddress,
		ReadBufferSize: defaultReadBufferSize,
		EventQueueSize: defaultEventQueueSize,
		LogLevel:       defaultLogLevel,
	}
}

// LoadConfigFile reads a YAML file on top of the defaults.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// NewConfigFromEnv creates a Config from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := DefaultConfig()
	ApplyEnv(cfg)
	return cfg
}

// ApplyEnv overrides cfg with any of the recognized environment variables that are set.
func ApplyEnv(cfg *Config) {
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.Address = addr
	}

	if addr := os.Getenv("HTTP_ADDRESS"); addr != "" {
		cfg.HTTPAddress = addr
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if size := os.Getenv("READ_BUFFER_SIZE"); size != "" {
		cfg.ReadBufferSize = parseIntValue(size, cfg.ReadBufferSize)
	}

	if size := os.Getenv("EVENT_QUEUE_SIZE"); size != "" {
		cfg.EventQueueSize = parseIntValue(size, cfg.EventQueueSize)
	}

	if timeout := os.Getenv("WRITE_TIMEOUT"); timeout != "" {
		cfg.WriteTimeout = parseDuration(timeout, cfg.WriteTimeout)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Development = env != "production"
	}

	cfg.Sanitize()
}

// Sanitize replaces invalid values with their defaults.
func (c *Config) Sanitize() {
	if c.Address == "" {
		c.Address = defaultAddress
	}

	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = defaultReadBufferSize
	}

	if c.EventQueueSize < 0 {
		c.EventQueueSize = defaultEventQueueSize
	}

	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}

	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	c.AllowedOrigins = normalizeOrigins(c.AllowedOrigins)
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts either a Go duration ("500ms") or a whole number of seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
