package traversal

import (
	"time"
)

// StopReason says why a traversal ended.
type StopReason int

const (
	// ReasonCompleted means every reachable node within bounds was visited.
	ReasonCompleted StopReason = iota
	// ReasonDepth means a branch reached MaxDepth.
	ReasonDepth
	// ReasonIterations means MaxIterations steps were taken.
	ReasonIterations
	// ReasonTimeout means the time budget ran out.
	ReasonTimeout
	// ReasonCancelled means the caller cancelled the walk.
	ReasonCancelled
	// ReasonStopped means the visitor asked to stop early.
	ReasonStopped
)

// String returns the reason name.
func (r StopReason) String() string {
	switch r {
	case ReasonCompleted:
		return "completed"
	case ReasonDepth:
		return "max_depth"
	case ReasonIterations:
		return "max_iterations"
	case ReasonTimeout:
		return "timeout"
	case ReasonCancelled:
		return "cancelled"
	case ReasonStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config bounds a single traversal.
type Config struct {
	// MaxDepth bounds the depth of a walk; the root is depth 0 and nodes at
	// depth MaxDepth or deeper are not visited.
	MaxDepth int `yaml:"max_depth" mapstructure:"max_depth"`
	// MaxIterations caps the number of nodes expanded.
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`
	// Timeout caps wall-clock time of the walk.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// GracePeriod is how long a step that ignores cancellation is awaited
	// after Timeout before the walk is abandoned.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:      100,
		MaxIterations: 10_000,
		Timeout:       30 * time.Second,
		GracePeriod:   time.Second,
	}
}

// ApplyDefaults fills unset bounds. A guardian is never unbounded.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.GracePeriod < 0 {
		c.GracePeriod = 0
	}
}

// Context is a snapshot of the bookkeeping for one traversal.
type Context struct {
	Visited    int           `json:"visited"`
	Depth      int           `json:"depth"`
	Iterations int           `json:"iterations"`
	StartTime  time.Time     `json:"start_time"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Guardian tracks visited nodes, depth, iterations and elapsed time for one
// traversal and decides when it must stop. A Guardian belongs to a single
// walk and is not safe for concurrent use.
type Guardian[K comparable] struct {
	config     Config
	visited    map[K]struct{}
	depth      int
	iterations int
	start      time.Time
	now        func() time.Time
}

// NewGuardian creates a guardian whose clock starts now.
func NewGuardian[K comparable](config Config) *Guardian[K] {
	return newGuardian[K](config, time.Now)
}

func newGuardian[K comparable](config Config, now func() time.Time) *Guardian[K] {
	config.ApplyDefaults()
	return &Guardian[K]{
		config:  config,
		visited: make(map[K]struct{}),
		start:   now(),
		now:     now,
	}
}

// Check returns the first bound that the given position violates, or
// ReasonCompleted when the walk may go on.
func (g *Guardian[K]) Check(depth, iterations int, elapsed time.Duration) StopReason {
	switch {
	case depth >= g.config.MaxDepth:
		return ReasonDepth
	case iterations >= g.config.MaxIterations:
		return ReasonIterations
	case elapsed >= g.config.Timeout:
		return ReasonTimeout
	default:
		return ReasonCompleted
	}
}

// CanContinue reports whether a walk at this position may expand further.
func (g *Guardian[K]) CanContinue(depth, iterations int, elapsed time.Duration) bool {
	return g.Check(depth, iterations, elapsed) == ReasonCompleted
}

// DetectCycle marks id as visited and reports whether it had been seen
// before. It never fails; what to do about a revisit is the caller's call.
func (g *Guardian[K]) DetectCycle(id K) bool {
	if _, seen := g.visited[id]; seen {
		return true
	}
	g.visited[id] = struct{}{}
	return false
}

// Seen reports whether id has been visited without marking it.
func (g *Guardian[K]) Seen(id K) bool {
	_, ok := g.visited[id]
	return ok
}

// Step checks the bounds for a node at depth and, when allowed, counts it as
// one iteration.
func (g *Guardian[K]) Step(depth int) StopReason {
	if reason := g.Check(depth, g.iterations, g.Elapsed()); reason != ReasonCompleted {
		return reason
	}
	g.iterations++
	if depth > g.depth {
		g.depth = depth
	}
	return ReasonCompleted
}

// Elapsed returns the time since the guardian was created.
func (g *Guardian[K]) Elapsed() time.Duration {
	return g.now().Sub(g.start)
}

// Iterations returns the number of steps taken so far.
func (g *Guardian[K]) Iterations() int { return g.iterations }

// Config returns the bounds in effect.
func (g *Guardian[K]) Config() Config { return g.config }

// Snapshot returns the current bookkeeping.
func (g *Guardian[K]) Snapshot() Context {
	return Context{
		Visited:    len(g.visited),
		Depth:      g.depth,
		Iterations: g.iterations,
		StartTime:  g.start,
		Elapsed:    g.Elapsed(),
	}
}
