package server

import (
	"fmt"
	"time"
)

// RateLimitConfig configures the inbound request limiter.
type RateLimitConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Capacity   int     `yaml:"capacity" mapstructure:"capacity" validate:"gte=0"`
	RefillRate float64 `yaml:"refill_rate" mapstructure:"refill_rate" validate:"gte=0"`
	MaxKeys    int     `yaml:"max_keys" mapstructure:"max_keys" validate:"gte=0"`
}

// Config holds HTTP server configuration.
type Config struct {
	Enabled         bool            `yaml:"enabled" mapstructure:"enabled"`
	Host            string          `yaml:"host" mapstructure:"host"`
	Port            int             `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 20
	}
	if c.RateLimit.RefillRate == 0 {
		c.RateLimit.RefillRate = 10
	}
	if c.RateLimit.MaxKeys == 0 {
		c.RateLimit.MaxKeys = 10_000
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535 (got: %d)", c.Port)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout must be non-negative (got: %s)", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout must be non-negative (got: %s)", c.WriteTimeout)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("server.idle_timeout must be non-negative (got: %s)", c.IdleTimeout)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Capacity <= 0 || c.RateLimit.RefillRate <= 0) {
		return fmt.Errorf("server.rate_limit needs a positive capacity and refill_rate")
	}
	return nil
}
