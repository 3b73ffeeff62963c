package health

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kbukum/boundguard/loop"
	"github.com/kbukum/boundguard/memory"
	"github.com/kbukum/boundguard/resilience"
)

// Breaker reports a circuit breaker: half-open is degraded, open is
// unhealthy.
func Breaker(cb *resilience.CircuitBreaker) Checker {
	return CheckerFunc(func(context.Context) Health {
		snap := cb.Snapshot()
		h := Health{
			Name:   snap.Name,
			Status: StatusHealthy,
			Details: map[string]string{
				"state":    snap.State.String(),
				"failures": strconv.Itoa(snap.FailureCount),
			},
		}
		switch snap.State {
		case resilience.StateHalfOpen:
			h.Status = StatusDegraded
			h.Message = "circuit half-open, probing recovery"
		case resilience.StateOpen:
			h.Status = StatusUnhealthy
			h.Message = "circuit open"
		}
		return h
	})
}

// RateLimiter reports a limiter as degraded while it is denying requests.
func RateLimiter(rl *resilience.RateLimiter) Checker {
	return CheckerFunc(func(context.Context) Health {
		snap := rl.Snapshot()
		h := Health{
			Name:   snap.Name,
			Status: StatusHealthy,
			Details: map[string]string{
				"keys":   strconv.Itoa(snap.Keys),
				"denied": strconv.FormatUint(snap.Denied, 10),
			},
		}
		if rl.Degraded() {
			h.Status = StatusDegraded
			h.Message = "recently rate limited"
		}
		return h
	})
}

// Bulkhead reports a bulkhead as degraded while every slot is taken.
func Bulkhead(b *resilience.Bulkhead) Checker {
	return CheckerFunc(func(context.Context) Health {
		snap := b.Snapshot()
		h := Health{
			Name:    snap.Name,
			Status:  StatusHealthy,
			Details: map[string]string{"in_use": fmt.Sprintf("%d/%d", snap.InUse, snap.MaxConcurrent)},
		}
		if snap.InUse >= snap.MaxConcurrent {
			h.Status = StatusDegraded
			h.Message = "all slots in use"
		}
		return h
	})
}

// Sentinel reports the memory sentinel as degraded when any structure is
// at or above the degraded utilisation or the registry itself is full.
func Sentinel(name string, s *memory.Sentinel) Checker {
	return CheckerFunc(func(context.Context) Health {
		h := Health{
			Name:   name,
			Status: StatusHealthy,
			Details: map[string]string{
				"collections": fmt.Sprintf("%d/%d", s.Len(), s.MaxCollections()),
				"dropped":     strconv.FormatUint(s.Dropped(), 10),
			},
		}
		var msgs []string
		if pressured := s.UnderPressure(); len(pressured) > 0 {
			names := make([]string, len(pressured))
			for i, p := range pressured {
				names[i] = p.Name
			}
			msgs = append(msgs, "under pressure: "+strings.Join(names, ", "))
		}
		if s.Len() >= s.MaxCollections() {
			msgs = append(msgs, "registry full")
		}
		if len(msgs) > 0 {
			h.Status = StatusDegraded
			h.Message = strings.Join(msgs, "; ")
		}
		return h
	})
}

// Loop reports a supervised loop: draining or stopped is unhealthy, a
// failure streak or a loop not yet started is degraded.
func Loop(l *loop.Loop) Checker {
	return CheckerFunc(func(context.Context) Health {
		snap := l.Snapshot()
		h := Health{
			Name:   snap.Name,
			Status: StatusHealthy,
			Details: map[string]string{
				"state":              snap.State.String(),
				"consecutive_errors": strconv.Itoa(snap.ConsecutiveErrors),
				"processed":          strconv.FormatUint(snap.Processed, 10),
			},
		}
		switch {
		case snap.State == loop.StateDraining || snap.State == loop.StateStopped:
			h.Status = StatusUnhealthy
			h.Message = "loop " + snap.State.String()
		case snap.State == loop.StateIdle:
			h.Status = StatusDegraded
			h.Message = "loop not started"
		case snap.ConsecutiveErrors > 0:
			h.Status = StatusDegraded
			h.Message = fmt.Sprintf("%d consecutive failures", snap.ConsecutiveErrors)
		}
		return h
	})
}

// Ping reports a dependency unhealthy when ping fails.
func Ping(name string, ping func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) Health {
		if err := ping(ctx); err != nil {
			return Health{Name: name, Status: StatusUnhealthy, Message: err.Error()}
		}
		return Health{Name: name, Status: StatusHealthy}
	})
}
