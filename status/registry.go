package status

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kbukum/boundguard/health"
	"github.com/kbukum/boundguard/loop"
	"github.com/kbukum/boundguard/memory"
	"github.com/kbukum/boundguard/resilience"
)

// MemoryStatus is the sentinel's view of every bounded structure.
type MemoryStatus struct {
	Collections    []memory.Snapshot `json:"collections" yaml:"collections"`
	MaxCollections int               `json:"max_collections" yaml:"max_collections"`
	Dropped        uint64            `json:"dropped" yaml:"dropped"`
}

// Document is a point-in-time status of every registered component.
type Document struct {
	Service      string                           `json:"service" yaml:"service"`
	Timestamp    time.Time                        `json:"timestamp" yaml:"timestamp"`
	Breakers     []resilience.BreakerSnapshot     `json:"breakers" yaml:"breakers"`
	RateLimiters []resilience.RateLimiterSnapshot `json:"rate_limiters" yaml:"rate_limiters"`
	Bulkheads    []resilience.BulkheadSnapshot    `json:"bulkheads" yaml:"bulkheads"`
	Loops        []loop.Snapshot                  `json:"loops" yaml:"loops"`
	Memory       *MemoryStatus                    `json:"memory,omitempty" yaml:"memory,omitempty"`
}

// Registry holds the guards of a process so they can be reported together.
// Every Add also registers the matching health checker.
type Registry struct {
	service string
	monitor *health.Monitor
	now     func() time.Time

	mu        sync.RWMutex
	breakers  map[string]*resilience.CircuitBreaker
	limiters  map[string]*resilience.RateLimiter
	bulkheads map[string]*resilience.Bulkhead
	loops     map[string]*loop.Loop
	sentinel  *memory.Sentinel
}

// NewRegistry creates a registry for service. A nil monitor gets a default
// one.
func NewRegistry(service string, monitor *health.Monitor) *Registry {
	if monitor == nil {
		monitor = health.NewMonitor(health.DefaultMonitorConfig())
	}
	return &Registry{
		service:   service,
		monitor:   monitor,
		now:       time.Now,
		breakers:  make(map[string]*resilience.CircuitBreaker),
		limiters:  make(map[string]*resilience.RateLimiter),
		bulkheads: make(map[string]*resilience.Bulkhead),
		loops:     make(map[string]*loop.Loop),
	}
}

// Service returns the service name.
func (r *Registry) Service() string { return r.service }

// Monitor returns the health monitor fed by the registry.
func (r *Registry) Monitor() *health.Monitor { return r.monitor }

// AddBreaker registers a circuit breaker.
func (r *Registry) AddBreaker(cb *resilience.CircuitBreaker) {
	r.mu.Lock()
	r.breakers[cb.Name()] = cb
	r.mu.Unlock()
	r.monitor.Register("breaker:"+cb.Name(), health.Breaker(cb))
}

// AddRateLimiter registers a rate limiter.
func (r *Registry) AddRateLimiter(rl *resilience.RateLimiter) {
	r.mu.Lock()
	r.limiters[rl.Name()] = rl
	r.mu.Unlock()
	r.monitor.Register("limiter:"+rl.Name(), health.RateLimiter(rl))
}

// AddBulkhead registers a bulkhead.
func (r *Registry) AddBulkhead(b *resilience.Bulkhead) {
	name := b.Snapshot().Name
	r.mu.Lock()
	r.bulkheads[name] = b
	r.mu.Unlock()
	r.monitor.Register("bulkhead:"+name, health.Bulkhead(b))
}

// AddLoop registers a supervised loop and its breaker.
func (r *Registry) AddLoop(l *loop.Loop) {
	r.mu.Lock()
	r.loops[l.Name()] = l
	r.mu.Unlock()
	r.monitor.Register("loop:"+l.Name(), health.Loop(l))
	r.AddBreaker(l.Breaker())
}

// SetSentinel registers the memory sentinel.
func (r *Registry) SetSentinel(s *memory.Sentinel) {
	r.mu.Lock()
	r.sentinel = s
	r.mu.Unlock()
	r.monitor.Register("memory", health.Sentinel("memory", s))
}

// AddChecker registers an extra health checker, e.g. a dependency ping.
func (r *Registry) AddChecker(name string, c health.Checker) {
	r.monitor.Register(name, c)
}

// Loops returns the registered loops sorted by name.
func (r *Registry) Loops() []*loop.Loop {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sorted(r.loops)
}

// Health runs every checker.
func (r *Registry) Health(ctx context.Context) health.Report {
	return r.monitor.Check(ctx)
}

// Snapshot returns the status document. Components are sorted by name.
func (r *Registry) Snapshot() Document {
	r.mu.RLock()
	breakers := sorted(r.breakers)
	limiters := sorted(r.limiters)
	bulkheads := sorted(r.bulkheads)
	loops := sorted(r.loops)
	sentinel := r.sentinel
	r.mu.RUnlock()

	doc := Document{
		Service:      r.service,
		Timestamp:    r.now().UTC(),
		Breakers:     make([]resilience.BreakerSnapshot, 0, len(breakers)),
		RateLimiters: make([]resilience.RateLimiterSnapshot, 0, len(limiters)),
		Bulkheads:    make([]resilience.BulkheadSnapshot, 0, len(bulkheads)),
		Loops:        make([]loop.Snapshot, 0, len(loops)),
	}
	for _, cb := range breakers {
		doc.Breakers = append(doc.Breakers, cb.Snapshot())
	}
	for _, rl := range limiters {
		doc.RateLimiters = append(doc.RateLimiters, rl.Snapshot())
	}
	for _, b := range bulkheads {
		doc.Bulkheads = append(doc.Bulkheads, b.Snapshot())
	}
	for _, l := range loops {
		doc.Loops = append(doc.Loops, l.Snapshot())
	}
	if sentinel != nil {
		doc.Memory = &MemoryStatus{
			Collections:    sentinel.Status(),
			MaxCollections: sentinel.MaxCollections(),
			Dropped:        sentinel.Dropped(),
		}
	}
	return doc
}

func sorted[V any](m map[string]V) []V {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]V, len(names))
	for i, name := range names {
		out[i] = m[name]
	}
	return out
}
