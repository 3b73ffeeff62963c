package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/timeout"
)

// Status is a point on the health ladder. Higher values are worse.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText renders the status name in JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Worst returns the most severe of the given statuses, StatusHealthy for none.
func Worst(statuses ...Status) Status {
	worst := StatusHealthy
	for _, s := range statuses {
		if s > worst {
			worst = s
		}
	}
	return worst
}

// Health describes the health of one component.
type Health struct {
	Name    string            `json:"name" yaml:"name"`
	Status  Status            `json:"status" yaml:"status"`
	Message string            `json:"message,omitempty" yaml:"message,omitempty"`
	Details map[string]string `json:"details,omitempty" yaml:"details,omitempty"`
}

// Checker is implemented by components that can report their health.
type Checker interface {
	CheckHealth(ctx context.Context) Health
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) Health

// CheckHealth implements Checker.
func (f CheckerFunc) CheckHealth(ctx context.Context) Health { return f(ctx) }

// Report is the aggregated health of every registered component.
type Report struct {
	Status     Status    `json:"status" yaml:"status"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	Components []Health  `json:"components" yaml:"components"`
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	// Timeout bounds each checker.
	Timeout time.Duration
	// GracePeriod is how long a timed-out checker is given to return.
	GracePeriod time.Duration
	// Logger; nil uses the global logger.
	Logger *logger.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultMonitorConfig returns sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Timeout:     2 * time.Second,
		GracePeriod: 100 * time.Millisecond,
	}
}

type entry struct {
	name    string
	checker Checker
}

// Monitor runs registered checkers and aggregates them worst-wins.
type Monitor struct {
	config MonitorConfig
	log    *logger.Logger
	now    func() time.Time

	mu       sync.RWMutex
	checkers []entry
	last     map[string]Status
}

// NewMonitor creates a Monitor.
func NewMonitor(config MonitorConfig) *Monitor {
	if config.Timeout <= 0 {
		config.Timeout = DefaultMonitorConfig().Timeout
	}
	if config.GracePeriod < 0 {
		config.GracePeriod = 0
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		config: config,
		log:    logger.OrDefault(config.Logger, "health"),
		now:    now,
		last:   make(map[string]Status),
	}
}

// Register adds c under name, replacing a checker already registered under
// the same name. Components are reported in registration order.
func (m *Monitor) Register(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.checkers {
		if m.checkers[i].name == name {
			m.checkers[i].checker = c
			return
		}
	}
	m.checkers = append(m.checkers, entry{name: name, checker: c})
}

// Unregister removes the checker registered under name.
func (m *Monitor) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.checkers {
		if m.checkers[i].name == name {
			m.checkers = append(m.checkers[:i], m.checkers[i+1:]...)
			delete(m.last, name)
			return
		}
	}
}

// Len returns the number of registered checkers.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.checkers)
}

// Check runs every checker concurrently, each under the monitor's timeout.
// A checker that times out or panics reports unhealthy.
func (m *Monitor) Check(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]entry, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	results := make([]Health, len(checkers))
	var g errgroup.Group
	for i, e := range checkers {
		g.Go(func() error {
			results[i] = m.run(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: StatusHealthy, Timestamp: m.now().UTC(), Components: results}
	for _, h := range results {
		report.Status = Worst(report.Status, h.Status)
	}
	m.observe(results)
	return report
}

func (m *Monitor) run(ctx context.Context, e entry) Health {
	h, err := timeout.Run(ctx, m.config.Timeout, m.config.GracePeriod, func(ctx context.Context) (Health, error) {
		return e.checker.CheckHealth(ctx), nil
	})
	if err != nil {
		var pe *timeout.PanicError
		msg := err.Error()
		switch {
		case timeout.IsTimeout(err):
			msg = fmt.Sprintf("health check timed out after %s", m.config.Timeout)
		case errors.As(err, &pe):
			msg = fmt.Sprintf("health check panicked: %v", pe.Value)
		}
		return Health{Name: e.name, Status: StatusUnhealthy, Message: msg}
	}
	if h.Name == "" {
		h.Name = e.name
	}
	return h
}

// observe logs components whose status changed since the previous check.
func (m *Monitor) observe(results []Health) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range results {
		prev, seen := m.last[h.Name]
		m.last[h.Name] = h.Status
		if !seen || prev == h.Status {
			continue
		}
		fields := logger.TransitionFields(h.Name, prev, h.Status)
		if h.Message != "" {
			fields["message"] = h.Message
		}
		if h.Status > prev {
			m.log.Warn("component health changed", fields)
		} else {
			m.log.Info("component health changed", fields)
		}
	}
}
