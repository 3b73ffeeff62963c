package resilience

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/memory"
)

// ErrRateLimited is returned when a key has no token left.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiterConfig configures a keyed token bucket rate limiter.
type RateLimiterConfig struct {
	// Name identifies this rate limiter for metrics/logging.
	Name string
	// Capacity is the bucket size per key, i.e. the largest burst.
	Capacity int
	// RefillRate is the number of tokens added per second.
	RefillRate float64
	// MaxKeys bounds the number of buckets kept; the oldest key is dropped
	// beyond it.
	MaxKeys int
	// DegradedWindow is how long after a denial the limiter reports itself
	// as degraded.
	DegradedWindow time.Duration
	// OnLimit is called when a request is rate limited.
	OnLimit func(name, key string)
	// Sentinel, when set, tracks the bucket registry.
	Sentinel *memory.Sentinel
	// Now overrides the clock, for tests.
	Now func() time.Time
	// Logger; nil uses the global logger.
	Logger *logger.Logger
}

// DefaultRateLimiterConfig returns sensible defaults.
func DefaultRateLimiterConfig(name string) RateLimiterConfig {
	return RateLimiterConfig{
		Name:           name,
		Capacity:       10,
		RefillRate:     1,
		MaxKeys:        10_000,
		DegradedWindow: 10 * time.Second,
	}
}

// RateLimiterSnapshot is a point-in-time view of a limiter.
type RateLimiterSnapshot struct {
	Name       string    `json:"name" yaml:"name"`
	Keys       int       `json:"keys" yaml:"keys"`
	MaxKeys    int       `json:"max_keys" yaml:"max_keys"`
	Allowed    uint64    `json:"allowed" yaml:"allowed"`
	Denied     uint64    `json:"denied" yaml:"denied"`
	LastDenied time.Time `json:"last_denied,omitempty" yaml:"last_denied,omitempty"`
}

// RateLimiter admits or rejects requests per key with a token bucket.
// It never queues: a request either takes a token now or is rejected.
type RateLimiter struct {
	config  RateLimiterConfig
	log     *logger.Logger
	now     func() time.Time
	buckets *memory.BoundedMap[string, *rate.Limiter]

	mu         sync.Mutex
	allowed    uint64
	denied     uint64
	lastDenied time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	d := DefaultRateLimiterConfig(config.Name)
	if config.Capacity <= 0 {
		config.Capacity = d.Capacity
	}
	if config.RefillRate <= 0 {
		config.RefillRate = d.RefillRate
	}
	if config.MaxKeys <= 0 {
		config.MaxKeys = d.MaxKeys
	}
	if config.DegradedWindow <= 0 {
		config.DegradedWindow = d.DegradedWindow
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	rl := &RateLimiter{
		config:  config,
		log:     logger.OrDefault(config.Logger, "ratelimiter"),
		now:     now,
		buckets: memory.NewBoundedMap[string, *rate.Limiter](config.Name+".buckets", config.MaxKeys, nil),
	}
	if config.Sentinel != nil {
		if err := config.Sentinel.Register(rl.buckets); err != nil {
			rl.log.Warn("bucket registry not tracked", logger.Fields("limiter", config.Name, logger.FieldError, err.Error()))
		}
	}
	return rl
}

// Name returns the limiter name.
func (rl *RateLimiter) Name() string { return rl.config.Name }

// Allow takes one token from key's bucket. Returns false if the bucket is
// empty.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.AllowN(key, 1)
}

// AllowN takes n tokens from key's bucket, all or nothing.
func (rl *RateLimiter) AllowN(key string, n int) bool {
	now := rl.now()
	ok := rl.bucket(key).AllowN(now, n)

	rl.mu.Lock()
	if ok {
		rl.allowed++
	} else {
		rl.denied++
		rl.lastDenied = now
	}
	rl.mu.Unlock()

	if !ok {
		rl.log.Debug("request rate limited", logger.Fields("limiter", rl.config.Name, logger.FieldKey, key))
		if rl.config.OnLimit != nil {
			rl.config.OnLimit(rl.config.Name, key)
		}
	}
	return ok
}

// Check is Allow reporting a denial as ErrRateLimited.
func (rl *RateLimiter) Check(key string) error {
	if !rl.Allow(key) {
		return ErrRateLimited
	}
	return nil
}

// Execute runs fn if key is admitted.
func (rl *RateLimiter) Execute(key string, fn func() error) error {
	if err := rl.Check(key); err != nil {
		return err
	}
	return fn()
}

// Tokens returns the tokens currently available to key.
func (rl *RateLimiter) Tokens(key string) float64 {
	return rl.bucket(key).TokensAt(rl.now())
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	return rl.buckets.GetOrCreate(key, func() *rate.Limiter {
		return rate.NewLimiter(rate.Limit(rl.config.RefillRate), rl.config.Capacity)
	})
}

// Degraded reports whether a request was denied within DegradedWindow.
func (rl *RateLimiter) Degraded() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return !rl.lastDenied.IsZero() && rl.now().Sub(rl.lastDenied) < rl.config.DegradedWindow
}

// Snapshot returns the limiter's counters.
func (rl *RateLimiter) Snapshot() RateLimiterSnapshot {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return RateLimiterSnapshot{
		Name:       rl.config.Name,
		Keys:       rl.buckets.Len(),
		MaxKeys:    rl.config.MaxKeys,
		Allowed:    rl.allowed,
		Denied:     rl.denied,
		LastDenied: rl.lastDenied,
	}
}

// RefillRate returns the tokens added per second.
func (rl *RateLimiter) RefillRate() float64 {
	return rl.config.RefillRate
}

// Capacity returns the bucket size.
func (rl *RateLimiter) Capacity() int {
	return rl.config.Capacity
}
