package traversal

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kbukum/boundguard/timeout"
)

var tracer = otel.Tracer("github.com/kbukum/boundguard/traversal")

// ErrStop can be returned by a VisitFunc to end the walk early without error.
var ErrStop = errors.New("traversal: stop")

// NeighborsFunc returns the nodes reachable from node in one step.
type NeighborsFunc[K comparable] func(ctx context.Context, node K) ([]K, error)

// VisitFunc is called once per expanded node.
type VisitFunc[K comparable] func(node K, depth int) error

// Result is the outcome of a guarded walk. It is always usable, even when the
// walk stopped at a bound.
type Result[K comparable] struct {
	Root          K             `json:"root"`
	Visited       []K           `json:"visited"`
	Steps         int           `json:"steps"`
	MaxDepth      int           `json:"max_depth"`
	CycleDetected bool          `json:"cycle_detected"`
	CycleAt       K             `json:"cycle_at,omitempty"`
	Revisits      int           `json:"revisits"`
	Reason        StopReason    `json:"reason"`
	Truncated     bool          `json:"truncated"`
	Elapsed       time.Duration `json:"elapsed"`
}

type frame[K comparable] struct {
	node  K
	depth int
}

// recorder holds the partial result so it can still be read when the walk
// goroutine is abandoned by the outer deadline.
type recorder[K comparable] struct {
	mu  sync.Mutex
	res Result[K]
}

func (r *recorder[K]) visit(node K, depth int) {
	r.mu.Lock()
	r.res.Visited = append(r.res.Visited, node)
	r.res.Steps++
	if depth > r.res.MaxDepth {
		r.res.MaxDepth = depth
	}
	r.mu.Unlock()
}

// revisit counts an edge to an already expanded node. Only back edges, to a
// node on the current path, are cycles.
func (r *recorder[K]) revisit(node K, backEdge bool) {
	r.mu.Lock()
	if backEdge && !r.res.CycleDetected {
		r.res.CycleDetected = true
		r.res.CycleAt = node
	}
	r.res.Revisits++
	r.mu.Unlock()
}

func (r *recorder[K]) stop(reason StopReason) {
	r.mu.Lock()
	if r.res.Reason == ReasonCompleted || reason != ReasonDepth {
		r.res.Reason = reason
	}
	r.res.Truncated = true
	r.mu.Unlock()
}

func (r *recorder[K]) snapshot() Result[K] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.res
	out.Visited = append([]K(nil), r.res.Visited...)
	return out
}

// Walk performs a bounded depth-first traversal from root.
//
// It uses an explicit stack rather than recursion and a fresh Guardian. Each
// node is expanded at most once. An edge back to a node on the current path
// marks the result as CycleDetected; edges to nodes expanded on another branch
// only count as Revisits. Branches reaching MaxDepth are pruned; running out of
// iterations or time ends the walk. All of these return the partial result
// with a nil error.
//
// The whole walk also runs under timeout.Run with cfg.Timeout and
// cfg.GracePeriod, so a step that never returns cannot hold the caller longer
// than Timeout plus GracePeriod. In that case, or when neighbors fails or the
// caller cancels ctx, an error is returned alongside the partial result.
func Walk[K comparable](ctx context.Context, cfg Config, root K, neighbors NeighborsFunc[K], visit VisitFunc[K]) (*Result[K], error) {
	cfg.ApplyDefaults()

	ctx, span := tracer.Start(ctx, "traversal.Walk")
	defer span.End()
	span.SetAttributes(
		attribute.Int("max_depth", cfg.MaxDepth),
		attribute.Int("max_iterations", cfg.MaxIterations),
		attribute.Int64("timeout_ms", cfg.Timeout.Milliseconds()),
	)

	start := time.Now()
	rec := &recorder[K]{res: Result[K]{Root: root}}

	_, err := timeout.Run(ctx, cfg.Timeout, cfg.GracePeriod, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, walk(ctx, cfg, root, neighbors, visit, rec)
	})

	var te *timeout.Error
	switch {
	case err == nil:
	case errors.As(err, &te):
		rec.stop(ReasonTimeout)
		// The walk noticed its deadline and returned: that is the time bound,
		// not a failure.
		if te.CleanedUp {
			err = nil
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		rec.stop(ReasonCancelled)
	}

	res := rec.snapshot()
	res.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.Int("steps", res.Steps),
		attribute.Int("depth", res.MaxDepth),
		attribute.Bool("cycle_detected", res.CycleDetected),
		attribute.Bool("truncated", res.Truncated),
		attribute.String("reason", res.Reason.String()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return &res, err
}

func walk[K comparable](ctx context.Context, cfg Config, root K, neighbors NeighborsFunc[K], visit VisitFunc[K], rec *recorder[K]) error {
	g := NewGuardian[K](cfg)
	stack := []frame[K]{{node: root, depth: 0}}
	// path holds the ancestors of the node being expanded; path[d] is at depth d.
	var path []K
	onPath := make(map[K]struct{})

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Reached earlier through another branch.
		if g.Seen(f.node) {
			rec.revisit(f.node, false)
			continue
		}

		switch reason := g.Step(f.depth); reason {
		case ReasonCompleted:
		case ReasonDepth:
			rec.stop(reason)
			continue
		default:
			rec.stop(reason)
			return nil
		}
		g.DetectCycle(f.node)
		rec.visit(f.node, f.depth)

		for _, n := range path[f.depth:] {
			delete(onPath, n)
		}
		path = append(path[:f.depth], f.node)
		onPath[f.node] = struct{}{}

		if visit != nil {
			if err := visit(f.node, f.depth); err != nil {
				if errors.Is(err, ErrStop) {
					rec.stop(ReasonStopped)
					return nil
				}
				return err
			}
		}

		next, err := neighbors(ctx, f.node)
		if err != nil {
			return err
		}
		// Push in reverse so the first neighbor is expanded first.
		for i := len(next) - 1; i >= 0; i-- {
			n := next[i]
			if _, back := onPath[n]; back {
				rec.revisit(n, true)
				continue
			}
			if g.Seen(n) {
				rec.revisit(n, false)
				continue
			}
			stack = append(stack, frame[K]{node: n, depth: f.depth + 1})
		}
	}
	return nil
}

// WalkGraph walks an adjacency map from root.
func WalkGraph[K comparable](ctx context.Context, cfg Config, graph map[K][]K, root K) (*Result[K], error) {
	return Walk(ctx, cfg, root, func(_ context.Context, node K) ([]K, error) {
		return graph[node], nil
	}, nil)
}
