package status

import (
	"context"

	"github.com/kbukum/boundguard/observability"
	"github.com/kbukum/boundguard/resilience"
	"github.com/kbukum/boundguard/timeout"
)

// The hooks below adapt component callbacks to observability.Metrics. Each
// chains next when it is non-nil.

// BreakerTransitions returns an OnStateChange hook recording transitions.
func BreakerTransitions(m *observability.Metrics, next func(name string, from, to resilience.State)) func(name string, from, to resilience.State) {
	return func(name string, from, to resilience.State) {
		m.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
		if next != nil {
			next(name, from, to)
		}
	}
}

// Evictions returns an OnEvict hook recording evicted items.
func Evictions(m *observability.Metrics, next func(name string, evicted int)) func(name string, evicted int) {
	return func(name string, evicted int) {
		m.RecordEviction(context.Background(), name, evicted)
		if next != nil {
			next(name, evicted)
		}
	}
}

// RateLimits returns an OnLimit hook recording denials.
func RateLimits(m *observability.Metrics, next func(name, key string)) func(name, key string) {
	return func(name, key string) {
		m.RecordRateLimit(context.Background(), name, false)
		if next != nil {
			next(name, key)
		}
	}
}

// Timeouts returns an OnTimeout hook for a timeout.Manager.
func Timeouts(m *observability.Metrics, next func(name string, err *timeout.Error)) func(name string, err *timeout.Error) {
	return func(name string, err *timeout.Error) {
		m.RecordTimeout(context.Background(), name)
		if next != nil {
			next(name, err)
		}
	}
}
