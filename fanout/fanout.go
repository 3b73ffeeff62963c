// Package fanout delivers one message to many listeners without letting a
// slow or failing listener hold up the others.
//
// Each listener call runs under its own timeout. A bulkhead caps how many
// calls run at once, and the broadcast returns once every listener has
// finished, failed or timed out.
package fanout

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/memory"
	"github.com/kbukum/boundguard/resilience"
	"github.com/kbukum/boundguard/timeout"
)

// Listener receives broadcast messages.
type Listener[M any] interface {
	Notify(ctx context.Context, msg M) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc[M any] func(ctx context.Context, msg M) error

// Notify implements Listener.
func (f ListenerFunc[M]) Notify(ctx context.Context, msg M) error { return f(ctx, msg) }

// Config configures a Hub.
type Config struct {
	// Name identifies the hub in logs.
	Name string `yaml:"name" mapstructure:"name"`
	// Timeout bounds each listener call.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// GracePeriod is how long a timed-out listener is given to clean up.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
	// MaxConcurrent caps listener calls running at once.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	// MaxListeners bounds the subscriber registry; the oldest subscriber is
	// dropped beyond it.
	MaxListeners int `yaml:"max_listeners" mapstructure:"max_listeners"`
	// Sentinel, when set, tracks the subscriber registry.
	Sentinel *memory.Sentinel `yaml:"-" mapstructure:"-"`
	// Logger; nil uses the global logger.
	Logger *logger.Logger `yaml:"-" mapstructure:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:          name,
		Timeout:       5 * time.Second,
		GracePeriod:   500 * time.Millisecond,
		MaxConcurrent: 16,
		MaxListeners:  1024,
	}
}

// Outcome is the result of delivering to one listener.
type Outcome struct {
	Listener string        `json:"listener"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	TimedOut bool          `json:"timed_out"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Failed returns the outcomes that carry an error.
func Failed(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Hub holds named listeners and broadcasts to them.
type Hub[M any] struct {
	config    Config
	log       *logger.Logger
	bulkhead  *resilience.Bulkhead
	listeners *memory.BoundedMap[string, Listener[M]]
}

// NewHub creates a hub.
func NewHub[M any](config Config) *Hub[M] {
	d := DefaultConfig(config.Name)
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	if config.GracePeriod < 0 {
		config.GracePeriod = 0
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = d.MaxConcurrent
	}
	if config.MaxListeners <= 0 {
		config.MaxListeners = d.MaxListeners
	}

	h := &Hub[M]{
		config: config,
		log:    logger.OrDefault(config.Logger, "fanout"),
		bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          config.Name,
			MaxConcurrent: config.MaxConcurrent,
			MaxWait:       config.Timeout,
		}),
	}
	h.listeners = memory.NewBoundedMap[string, Listener[M]](config.Name+".listeners", config.MaxListeners,
		func(name string, _ Listener[M]) {
			h.log.Warn("listener dropped, registry full", logger.Fields("listener", name))
		})
	if config.Sentinel != nil {
		if err := config.Sentinel.Register(h.listeners); err != nil {
			h.log.Warn("listener registry not tracked", logger.Fields(logger.FieldError, err.Error()))
		}
	}
	return h
}

// Subscribe registers l under name, replacing any listener of that name.
func (h *Hub[M]) Subscribe(name string, l Listener[M]) {
	h.listeners.Put(name, l)
	h.log.Debug("listener subscribed", logger.Fields("listener", name, "total", h.listeners.Len()))
}

// Unsubscribe removes the listener called name.
func (h *Hub[M]) Unsubscribe(name string) {
	h.listeners.Delete(name)
}

// Bulkhead returns the bulkhead capping concurrent deliveries.
func (h *Hub[M]) Bulkhead() *resilience.Bulkhead { return h.bulkhead }

// Len returns the number of listeners.
func (h *Hub[M]) Len() int { return h.listeners.Len() }

// Publish delivers msg to every listener.
func (h *Hub[M]) Publish(ctx context.Context, msg M) []Outcome {
	return h.PublishTo(ctx, "*", msg)
}

// PublishTo delivers msg to the listeners whose name matches the glob
// pattern. Outcomes are sorted by listener name.
func (h *Hub[M]) PublishTo(ctx context.Context, pattern string, msg M) []Outcome {
	targets := make(map[string]Listener[M])
	h.listeners.Range(func(name string, l Listener[M]) bool {
		if ok, _ := filepath.Match(pattern, name); ok {
			targets[name] = l
		}
		return true
	})
	return h.broadcast(ctx, targets, msg)
}

// Broadcast delivers msg to listeners once, with the hub's limits, without
// registering them.
func Broadcast[M any](ctx context.Context, config Config, listeners map[string]Listener[M], msg M) []Outcome {
	return NewHub[M](config).broadcast(ctx, listeners, msg)
}

func (h *Hub[M]) broadcast(ctx context.Context, listeners map[string]Listener[M], msg M) []Outcome {
	outcomes := make([]Outcome, 0, len(listeners))
	if len(listeners) == 0 {
		return outcomes
	}

	names := make([]string, 0, len(listeners))
	for name := range listeners {
		names = append(names, name)
	}
	sort.Strings(names)
	outcomes = outcomes[:len(names)]

	var g errgroup.Group
	for i, name := range names {
		l := listeners[name]
		g.Go(func() error {
			outcomes[i] = h.deliver(ctx, name, l, msg)
			return nil
		})
	}
	_ = g.Wait()

	if failed := Failed(outcomes); len(failed) > 0 {
		h.log.Warn("broadcast partially failed", logger.Fields(
			"hub", h.config.Name,
			"listeners", len(outcomes),
			"failed", len(failed),
		))
	}
	return outcomes
}

func (h *Hub[M]) deliver(ctx context.Context, name string, l Listener[M], msg M) Outcome {
	start := time.Now()
	err := h.bulkhead.Execute(ctx, func(ctx context.Context) error {
		return timeout.Do(ctx, h.config.Timeout, h.config.GracePeriod, func(ctx context.Context) error {
			return l.Notify(ctx, msg)
		})
	})

	out := Outcome{Listener: name, Err: err, Elapsed: time.Since(start)}
	if err != nil {
		out.Error = err.Error()
		out.TimedOut = timeout.IsTimeout(err) || errors.Is(err, resilience.ErrBulkheadTimeout)
		h.log.Debug("listener failed", logger.Fields("listener", name, logger.FieldError, err.Error()))
	}
	return out
}
