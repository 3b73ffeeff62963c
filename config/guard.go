package config

import (
	"fmt"
	"time"

	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/loop"
	"github.com/kbukum/boundguard/memory"
	"github.com/kbukum/boundguard/observability"
	"github.com/kbukum/boundguard/queue/redisqueue"
	"github.com/kbukum/boundguard/resilience"
	"github.com/kbukum/boundguard/server"
	"github.com/kbukum/boundguard/timeout"
	"github.com/kbukum/boundguard/traversal"
)

// TimeoutConfig is the default deadline policy.
type TimeoutConfig struct {
	Default     time.Duration `yaml:"default" mapstructure:"default"`
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
}

// BreakerConfig holds the circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"gte=1"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" mapstructure:"recovery_timeout"`
	SuccessThreshold int           `yaml:"success_threshold" mapstructure:"success_threshold" validate:"gte=1"`
	CallTimeout      time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
}

// RateLimitConfig holds the token bucket parameters used for loop admission.
type RateLimitConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Capacity       int           `yaml:"capacity" mapstructure:"capacity" validate:"gte=1"`
	RefillRate     float64       `yaml:"refill_rate" mapstructure:"refill_rate" validate:"gt=0"`
	MaxKeys        int           `yaml:"max_keys" mapstructure:"max_keys" validate:"gte=1"`
	DegradedWindow time.Duration `yaml:"degraded_window" mapstructure:"degraded_window"`
}

// LoopConfig holds the supervised loop parameters.
type LoopConfig struct {
	Name                 string        `yaml:"name" mapstructure:"name" validate:"required"`
	PollTimeout          time.Duration `yaml:"poll_timeout" mapstructure:"poll_timeout"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors" mapstructure:"max_consecutive_errors" validate:"gte=1"`
	BaseBackoff          time.Duration `yaml:"base_backoff" mapstructure:"base_backoff"`
	MaxBackoff           time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	ItemTimeout          time.Duration `yaml:"item_timeout" mapstructure:"item_timeout"`
	HistorySize          int           `yaml:"history_size" mapstructure:"history_size" validate:"gte=1"`
}

// Guard is the root configuration of a boundguard process. Each block
// parameterizes one component; blocks are converted into component configs
// with the methods below, which attach the runtime hooks.
type Guard struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Timeout       TimeoutConfig        `yaml:"timeout" mapstructure:"timeout"`
	Traversal     traversal.Config     `yaml:"traversal" mapstructure:"traversal"`
	Memory        memory.Config        `yaml:"memory" mapstructure:"memory"`
	RateLimit     RateLimitConfig      `yaml:"rate_limit" mapstructure:"rate_limit"`
	Breaker       BreakerConfig        `yaml:"breaker" mapstructure:"breaker"`
	Loop          LoopConfig           `yaml:"loop" mapstructure:"loop"`
	Redis         redisqueue.Config    `yaml:"redis" mapstructure:"redis"`
	Server        server.Config        `yaml:"server" mapstructure:"server"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults fills every block.
func (g *Guard) ApplyDefaults() {
	g.ServiceConfig.ApplyDefaults()

	td := timeout.DefaultConfig(g.Name)
	if g.Timeout.Default <= 0 {
		g.Timeout.Default = td.Timeout
	}
	if g.Timeout.GracePeriod <= 0 {
		g.Timeout.GracePeriod = td.GracePeriod
	}

	g.Traversal.ApplyDefaults()

	md := memory.DefaultConfig()
	if g.Memory.MaxCollections <= 0 {
		g.Memory.MaxCollections = md.MaxCollections
	}
	if g.Memory.DegradedUtilization <= 0 {
		g.Memory.DegradedUtilization = md.DegradedUtilization
	}
	g.Memory.Default.ApplyDefaults()

	rd := resilience.DefaultRateLimiterConfig(g.Name)
	if g.RateLimit.Capacity <= 0 {
		g.RateLimit.Capacity = rd.Capacity
	}
	if g.RateLimit.RefillRate <= 0 {
		g.RateLimit.RefillRate = rd.RefillRate
	}
	if g.RateLimit.MaxKeys <= 0 {
		g.RateLimit.MaxKeys = rd.MaxKeys
	}
	if g.RateLimit.DegradedWindow <= 0 {
		g.RateLimit.DegradedWindow = rd.DegradedWindow
	}

	bd := resilience.DefaultCircuitBreakerConfig(g.Name)
	if g.Breaker.FailureThreshold <= 0 {
		g.Breaker.FailureThreshold = bd.FailureThreshold
	}
	if g.Breaker.RecoveryTimeout <= 0 {
		g.Breaker.RecoveryTimeout = bd.RecoveryTimeout
	}
	if g.Breaker.SuccessThreshold <= 0 {
		g.Breaker.SuccessThreshold = bd.SuccessThreshold
	}
	if g.Breaker.CallTimeout <= 0 {
		g.Breaker.CallTimeout = bd.CallTimeout
	}

	if g.Loop.Name == "" {
		g.Loop.Name = g.Name
	}
	ld := loop.DefaultConfig(g.Loop.Name)
	if g.Loop.PollTimeout <= 0 {
		g.Loop.PollTimeout = ld.PollTimeout
	}
	if g.Loop.MaxConsecutiveErrors <= 0 {
		g.Loop.MaxConsecutiveErrors = ld.MaxConsecutiveErrors
	}
	if g.Loop.BaseBackoff <= 0 {
		g.Loop.BaseBackoff = ld.BaseBackoff
	}
	if g.Loop.MaxBackoff <= 0 {
		g.Loop.MaxBackoff = ld.MaxBackoff
	}
	if g.Loop.ItemTimeout <= 0 {
		g.Loop.ItemTimeout = g.Breaker.CallTimeout
	}
	if g.Loop.HistorySize <= 0 {
		g.Loop.HistorySize = ld.HistorySize
	}

	g.Redis.ApplyDefaults()
	g.Server.ApplyDefaults()

	if g.Observability.ServiceName == "" {
		g.Observability.ServiceName = g.Name
	}
	if g.Observability.ServiceVersion == "" {
		g.Observability.ServiceVersion = g.Version
	}
	if g.Observability.Environment == "" {
		g.Observability.Environment = g.Environment
	}
	g.Observability.ApplyDefaults()
}

// Validate runs the struct tag rules, then each block's own checks.
func (g *Guard) Validate() error {
	if err := ValidateStruct(g); err != nil {
		return err
	}
	if err := g.ServiceConfig.Validate(); err != nil {
		return err
	}
	if g.Loop.BaseBackoff > g.Loop.MaxBackoff {
		return fmt.Errorf("config.loop: base_backoff %s exceeds max_backoff %s", g.Loop.BaseBackoff, g.Loop.MaxBackoff)
	}
	if g.Memory.DegradedUtilization > 1 {
		return fmt.Errorf("config.memory: degraded_utilization must be within (0, 1], got %v", g.Memory.DegradedUtilization)
	}
	if err := g.Memory.Default.Validate(); err != nil {
		return fmt.Errorf("config.memory.default: %w", err)
	}
	if err := g.Redis.Validate(); err != nil {
		return fmt.Errorf("config.redis: %w", err)
	}
	if err := g.Server.Validate(); err != nil {
		return fmt.Errorf("config.server: %w", err)
	}
	if err := g.Observability.Validate(); err != nil {
		return fmt.Errorf("config.observability: %w", err)
	}
	return nil
}

// TimeoutManager returns the config of the process-wide timeout manager.
func (g *Guard) TimeoutManager(log *logger.Logger) timeout.Config {
	return timeout.Config{
		Name:        g.Name,
		Timeout:     g.Timeout.Default,
		GracePeriod: g.Timeout.GracePeriod,
		Logger:      log,
	}
}

// SentinelConfig returns the memory sentinel config.
func (g *Guard) SentinelConfig(log *logger.Logger) memory.Config {
	cfg := g.Memory
	cfg.Logger = log
	return cfg
}

// CircuitBreaker returns a breaker config named name.
func (g *Guard) CircuitBreaker(name string, log *logger.Logger) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: g.Breaker.FailureThreshold,
		RecoveryTimeout:  g.Breaker.RecoveryTimeout,
		SuccessThreshold: g.Breaker.SuccessThreshold,
		CallTimeout:      g.Breaker.CallTimeout,
		GracePeriod:      g.Timeout.GracePeriod,
		Logger:           log,
	}
}

// RateLimiter returns a limiter config named name, tracked by sentinel.
func (g *Guard) RateLimiter(name string, sentinel *memory.Sentinel, log *logger.Logger) resilience.RateLimiterConfig {
	return resilience.RateLimiterConfig{
		Name:           name,
		Capacity:       g.RateLimit.Capacity,
		RefillRate:     g.RateLimit.RefillRate,
		MaxKeys:        g.RateLimit.MaxKeys,
		DegradedWindow: g.RateLimit.DegradedWindow,
		Sentinel:       sentinel,
		Logger:         log,
	}
}

// LoopSettings returns the loop config. Breaker, Admission, Metrics and
// OnDrop are left for the caller to attach.
func (g *Guard) LoopSettings(sentinel *memory.Sentinel, log *logger.Logger) loop.Config {
	return loop.Config{
		Name:                 g.Loop.Name,
		PollTimeout:          g.Loop.PollTimeout,
		MaxConsecutiveErrors: g.Loop.MaxConsecutiveErrors,
		BaseBackoff:          g.Loop.BaseBackoff,
		MaxBackoff:           g.Loop.MaxBackoff,
		ItemTimeout:          g.Loop.ItemTimeout,
		GracePeriod:          g.Timeout.GracePeriod,
		HistorySize:          g.Loop.HistorySize,
		Sentinel:             sentinel,
		Logger:               log,
	}
}

// Load reads a Guard for serviceName, fills defaults and validates it.
func Load(serviceName string, opts ...LoaderOption) (*Guard, error) {
	g := &Guard{}
	g.Name = serviceName
	if err := LoadConfig(serviceName, g, opts...); err != nil {
		return nil, err
	}
	g.ApplyDefaults()
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
