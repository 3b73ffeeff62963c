package redisqueue

import (
	"fmt"
	"time"
)

// Config holds the Redis connection and queue settings.
type Config struct {
	// Enabled controls whether the Redis queue is used.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required_if=Enabled true"`

	// Password is the Redis server password.
	Password string `yaml:"password" mapstructure:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db" mapstructure:"db" validate:"gte=0"`

	// Prefix namespaces the queue keys.
	Prefix string `yaml:"prefix" mapstructure:"prefix"`

	// Name is the list name under Prefix.
	Name string `yaml:"name" mapstructure:"name"`

	// MaxLength bounds the list; Push fails with queue.ErrQueueFull beyond it.
	MaxLength int64 `yaml:"max_length" mapstructure:"max_length" validate:"gte=0"`

	// PollInterval is the wait between empty reads while polling.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// PoolSize is the maximum number of socket connections.
	PoolSize int `yaml:"pool_size" mapstructure:"pool_size"`

	// PushAttempts is how many times a push is tried on transient errors.
	PushAttempts int `yaml:"push_attempts" mapstructure:"push_attempts"`

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "boundguard:queue:"
	}
	if c.Name == "" {
		c.Name = "work"
	}
	if c.MaxLength <= 0 {
		c.MaxLength = 10_000
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.PushAttempts <= 0 {
		c.PushAttempts = 3
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be > 0")
	}
	return nil
}
