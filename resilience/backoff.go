package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kbukum/boundguard/logger"
)

// Backoff maps the number of consecutive failures (starting at 1) to the
// delay before the next attempt.
type Backoff interface {
	Delay(failures int) time.Duration
}

// LinearBackoff waits failures*Base, capped at Max.
type LinearBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay implements Backoff.
func (b LinearBackoff) Delay(failures int) time.Duration {
	if failures <= 0 || b.Base <= 0 {
		return 0
	}
	d := time.Duration(failures) * b.Base
	if b.Max > 0 && (d > b.Max || d/time.Duration(failures) != b.Base) {
		return b.Max
	}
	return d
}

// ExponentialBackoff waits Initial*Factor^(failures-1) with optional jitter,
// capped at Max.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	// Jitter adds randomness to the delay (0.0 to 1.0).
	Jitter float64
}

// Delay implements Backoff.
func (b ExponentialBackoff) Delay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	initial := b.Initial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	factor := b.Factor
	if factor <= 0 {
		factor = 2.0
	}

	d := float64(initial) * math.Pow(factor, float64(failures-1))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if d < 0 {
		d = float64(initial)
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// Name identifies the retried operation in logs.
	Name string
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// Backoff computes the wait between attempts.
	Backoff Backoff
	// RetryIf determines if an error should be retried.
	RetryIf func(error) bool
	// OnRetry is called before each retry.
	OnRetry func(attempt int, err error, backoff time.Duration)
	// Logger; nil uses the global logger.
	Logger *logger.Logger
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff: ExponentialBackoff{
			Initial: 100 * time.Millisecond,
			Max:     10 * time.Second,
			Factor:  2.0,
			Jitter:  0.1,
		},
		RetryIf: DefaultRetryIf,
	}
}

// DefaultRetryIf retries every error except cancellation and the
// framework's own fail-fast rejections.
func DefaultRetryIf(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrRateLimited), errors.Is(err, ErrBulkheadFull):
		return false
	default:
		return true
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. The last error is returned.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	d := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = d.Backoff
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = DefaultRetryIf
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !cfg.RetryIf(err) || attempt == cfg.MaxAttempts {
			break
		}

		wait := cfg.Backoff.Delay(attempt)
		logger.OrDefault(cfg.Logger, "retry").Debug("retrying", logger.Fields(
			logger.FieldOperation, cfg.Name,
			logger.FieldAttempt, attempt,
			logger.FieldBackoff, wait.Milliseconds(),
			logger.FieldError, err.Error(),
		))
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		if err := Sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

// RetryFunc executes a function that returns only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
