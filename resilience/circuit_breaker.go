package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/timeout"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows limited requests to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrCircuitOpen is returned without invoking the call while the breaker is
// open or its half-open probes are all in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this circuit breaker for metrics/logging.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before probing.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of half-open successes that closes the
	// circuit, and the number of probes admitted while half-open.
	SuccessThreshold int
	// CallTimeout bounds each call. Zero leaves calls without a deadline of
	// their own.
	CallTimeout time.Duration
	// GracePeriod is how long a timed-out call is given to clean up.
	GracePeriod time.Duration
	// OnStateChange is called after each transition, outside the breaker lock.
	OnStateChange func(name string, from, to State)
	// Now overrides the clock, for tests.
	Now func() time.Time
	// Logger receives transition logs. Nil uses the global logger.
	Logger *logger.Logger
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 3,
		CallTimeout:      30 * time.Second,
		GracePeriod:      time.Second,
	}
}

// BreakerSnapshot is a point-in-time view of a breaker.
type BreakerSnapshot struct {
	Name            string    `json:"name" yaml:"name"`
	State           State     `json:"state" yaml:"state"`
	FailureCount    int       `json:"failure_count" yaml:"failure_count"`
	SuccessCount    int       `json:"success_count" yaml:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty" yaml:"last_failure_time,omitempty"`
}

type transition struct {
	from, to State
}

// CircuitBreaker implements the circuit breaker pattern.
// It prevents cascading failures by failing fast when a dependency is unhealthy.
//
// States:
//   - Closed: normal operation, consecutive failures are counted
//   - Open: calls fail immediately with ErrCircuitOpen
//   - Half-Open: up to SuccessThreshold probes test recovery
//
// Every guarded call site should own its breaker.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	log    *logger.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	halfOpenCalls   int
	lastFailureTime time.Time
	generation      uint64
	pending         []transition
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 3
	}
	if config.GracePeriod < 0 {
		config.GracePeriod = 0
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &CircuitBreaker{
		config: config,
		log:    logger.OrDefault(config.Logger, "breaker"),
		now:    now,
		state:  StateClosed,
	}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.config.Name }

// Execute runs fn through the circuit breaker under CallTimeout.
// Returns ErrCircuitOpen without calling fn if the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteWithResult(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteWithResult runs a function that returns a value through cb.
//
// A call fails when fn returns an error or times out. When the caller's own
// ctx ends first the call is neither a success nor a failure.
func ExecuteWithResult[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	gen, err := cb.beforeCall()
	if err != nil {
		return zero, err
	}

	v, err := timeout.Run(ctx, cb.config.CallTimeout, cb.config.GracePeriod, fn)
	cb.afterCall(ctx, gen, err)
	return v, err
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	s := cb.currentStateLocked()
	events := cb.drainLocked()
	cb.mu.Unlock()

	cb.emit(events)
	return s
}

// Snapshot returns the breaker's counters.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	snap := BreakerSnapshot{
		Name:            cb.config.Name,
		State:           cb.currentStateLocked(),
		FailureCount:    cb.failures,
		SuccessCount:    cb.successes,
		LastFailureTime: cb.lastFailureTime,
	}
	events := cb.drainLocked()
	cb.mu.Unlock()

	cb.emit(events)
	return snap
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.toStateLocked(StateClosed)
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenCalls = 0
	events := cb.drainLocked()
	cb.mu.Unlock()

	cb.emit(events)
}

// Failures returns the current failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) beforeCall() (uint64, error) {
	cb.mu.Lock()
	var err error
	switch cb.currentStateLocked() {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCalls < cb.config.SuccessThreshold {
			cb.halfOpenCalls++
		} else {
			err = ErrCircuitOpen
		}
	}
	gen := cb.generation
	events := cb.drainLocked()
	cb.mu.Unlock()

	cb.emit(events)
	return gen, err
}

func (cb *CircuitBreaker) afterCall(ctx context.Context, gen uint64, err error) {
	cb.mu.Lock()
	switch {
	case gen != cb.generation:
		// The breaker changed state while the call was in flight.
	case err != nil && ctx.Err() != nil && !timeout.IsTimeout(err):
		if cb.state == StateHalfOpen && cb.halfOpenCalls > 0 {
			cb.halfOpenCalls--
		}
	case err != nil:
		cb.onFailureLocked()
	default:
		cb.onSuccessLocked()
	}
	events := cb.drainLocked()
	cb.mu.Unlock()

	cb.emit(events)
}

func (cb *CircuitBreaker) onSuccessLocked() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.toStateLocked(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailureLocked() {
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.toStateLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.toStateLocked(StateOpen)
	}
}

// currentStateLocked moves an open breaker to half-open once the recovery
// timeout has passed.
func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailureTime) >= cb.config.RecoveryTimeout {
		cb.toStateLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) toStateLocked(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to
	cb.generation++

	switch to {
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
		cb.halfOpenCalls = 0
	case StateHalfOpen, StateOpen:
		cb.halfOpenCalls = 0
		cb.successes = 0
	}

	cb.pending = append(cb.pending, transition{from: from, to: to})
}

func (cb *CircuitBreaker) drainLocked() []transition {
	if len(cb.pending) == 0 {
		return nil
	}
	events := cb.pending
	cb.pending = nil
	return events
}

func (cb *CircuitBreaker) emit(events []transition) {
	for _, e := range events {
		fields := logger.TransitionFields(cb.config.Name, e.from, e.to)
		fields[logger.FieldBreaker] = cb.config.Name
		if e.to == StateOpen {
			cb.log.Warn("circuit breaker opened", fields)
		} else {
			cb.log.Info("circuit breaker state changed", fields)
		}
		if cb.config.OnStateChange != nil {
			cb.config.OnStateChange(cb.config.Name, e.from, e.to)
		}
	}
}
