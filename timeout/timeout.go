// Package timeout runs operations under a hard deadline with a grace period
// for cancellation cleanup.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kbukum/boundguard/logger"
)

// ErrTimeout is matched by every *Error returned from Run.
var ErrTimeout = errors.New("operation timed out")

// Error reports an operation that missed its deadline.
type Error struct {
	// Timeout is the deadline the operation was given.
	Timeout time.Duration
	// Grace is how long cleanup was awaited after cancellation.
	Grace time.Duration
	// CleanedUp is true when the operation returned within the grace period.
	CleanedUp bool
}

func (e *Error) Error() string {
	if e.CleanedUp {
		return fmt.Sprintf("operation timed out after %s", e.Timeout)
	}
	return fmt.Sprintf("operation timed out after %s (cleanup not finished within %s grace)", e.Timeout, e.Grace)
}

// Is makes errors.Is(err, ErrTimeout) hold.
func (e *Error) Is(target error) bool { return target == ErrTimeout }

// PanicError wraps a panic recovered from an operation.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("operation panicked: %v", e.Value) }

type outcome[T any] struct {
	val T
	err error
}

// Run executes op with its own deadline.
//
// If op returns before timeout, its result is returned unchanged. Otherwise
// the context passed to op is cancelled, Run waits up to grace for op to
// return, and then fails with *Error whether or not op finished. When the
// parent ctx is cancelled first, op is cancelled the same way and ctx.Err()
// is returned instead of a timeout.
//
// A timeout <= 0 gives op no deadline of its own; enclosing deadlines on ctx
// still apply, and the nearest one always wins.
func Run[T any](ctx context.Context, timeout, grace time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	var (
		opCtx  context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		opCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: &PanicError{Value: r}}
			}
		}()
		v, err := op(opCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case out := <-done:
		// The op may notice its own deadline before our timer fires.
		if out.err != nil && ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return zero, &Error{Timeout: timeout, Grace: grace, CleanedUp: true}
		}
		return out.val, out.err
	case <-deadline:
		cancel()
		return zero, &Error{Timeout: timeout, Grace: grace, CleanedUp: awaitCleanup(done, grace)}
	case <-ctx.Done():
		cancel()
		awaitCleanup(done, grace)
		return zero, ctx.Err()
	}
}

// Do is Run for operations that only return an error.
func Do(ctx context.Context, timeout, grace time.Duration, op func(ctx context.Context) error) error {
	_, err := Run(ctx, timeout, grace, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func awaitCleanup[T any](done <-chan outcome[T], grace time.Duration) bool {
	if grace <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// IsTimeout reports whether err is a timeout produced by Run.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Config holds the default deadline settings of a Manager.
type Config struct {
	// Name identifies the manager in logs.
	Name string
	// Timeout is the default deadline for operations.
	Timeout time.Duration
	// GracePeriod is how long cancellation cleanup is awaited.
	GracePeriod time.Duration
	// OnTimeout is called after an operation times out.
	OnTimeout func(name string, err *Error)
	// Logger receives timeout warnings. Nil uses the global logger.
	Logger *logger.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		Timeout:     30 * time.Second,
		GracePeriod: time.Second,
	}
}

// Manager applies a fixed timeout policy to the operations it runs.
type Manager struct {
	config Config
	log    *logger.Logger
}

// NewManager creates a Manager. A non-positive GracePeriod means cleanup is
// not awaited at all.
func NewManager(config Config) *Manager {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.GracePeriod < 0 {
		config.GracePeriod = 0
	}
	return &Manager{
		config: config,
		log:    logger.OrDefault(config.Logger, "timeout"),
	}
}

// Timeout returns the configured deadline.
func (m *Manager) Timeout() time.Duration { return m.config.Timeout }

// GracePeriod returns the configured grace period.
func (m *Manager) GracePeriod() time.Duration { return m.config.GracePeriod }

// Do runs op under the manager's deadline.
func (m *Manager) Do(ctx context.Context, op func(ctx context.Context) error) error {
	err := Do(ctx, m.config.Timeout, m.config.GracePeriod, op)
	m.observe(err)
	return err
}

// WithTimeout runs op under the manager's deadline and returns its result.
func WithTimeout[T any](ctx context.Context, m *Manager, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := Run(ctx, m.config.Timeout, m.config.GracePeriod, op)
	m.observe(err)
	return v, err
}

func (m *Manager) observe(err error) {
	var te *Error
	if !errors.As(err, &te) {
		return
	}
	m.log.Warn("operation timed out", logger.Fields(
		"name", m.config.Name,
		"timeout_ms", te.Timeout.Milliseconds(),
		"cleaned_up", te.CleanedUp,
	))
	if m.config.OnTimeout != nil {
		m.config.OnTimeout(m.config.Name, te)
	}
}
