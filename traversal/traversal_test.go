package traversal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kbukum/boundguard/timeout"
)

func TestGuardian_CheckOrder(t *testing.T) {
	g := NewGuardian[string](Config{MaxDepth: 5, MaxIterations: 10, Timeout: time.Second})

	tests := []struct {
		name       string
		depth      int
		iterations int
		elapsed    time.Duration
		want       StopReason
	}{
		{"within bounds", 4, 9, 999 * time.Millisecond, ReasonCompleted},
		{"depth reached", 5, 0, 0, ReasonDepth},
		{"iterations reached", 0, 10, 0, ReasonIterations},
		{"time reached", 0, 0, time.Second, ReasonTimeout},
		{"depth wins over others", 6, 11, 2 * time.Second, ReasonDepth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Check(tt.depth, tt.iterations, tt.elapsed); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
			if got := g.CanContinue(tt.depth, tt.iterations, tt.elapsed); got != (tt.want == ReasonCompleted) {
				t.Errorf("CanContinue() = %v", got)
			}
		})
	}
}

func TestGuardian_DetectCycle(t *testing.T) {
	g := NewGuardian[string](DefaultConfig())

	if g.DetectCycle("a") {
		t.Error("first sighting must not be a cycle")
	}
	if g.Seen("b") {
		t.Error("b was never visited")
	}
	if !g.DetectCycle("a") {
		t.Error("second sighting must be a cycle")
	}
	if g.Snapshot().Visited != 1 {
		t.Errorf("expected 1 visited, got %d", g.Snapshot().Visited)
	}
}

func TestGuardian_UnsetBoundsGetDefaults(t *testing.T) {
	g := NewGuardian[int](Config{})
	cfg := g.Config()
	if cfg.MaxDepth != 100 || cfg.MaxIterations != 10_000 || cfg.Timeout != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestGuardian_ElapsedUsesClock(t *testing.T) {
	now := time.Unix(0, 0)
	g := newGuardian[int](Config{Timeout: 5 * time.Second}, func() time.Time { return now })

	if g.Step(0) != ReasonCompleted {
		t.Fatal("expected first step to be allowed")
	}
	now = now.Add(5 * time.Second)
	if got := g.Step(1); got != ReasonTimeout {
		t.Errorf("expected timeout after 5s, got %v", got)
	}
	if g.Iterations() != 1 {
		t.Errorf("a rejected step must not count, got %d iterations", g.Iterations())
	}
}

// Recursive callers use the guardian directly.
func TestGuardian_RecursiveWalkStopsOnCycle(t *testing.T) {
	graph := map[string][]string{"A": {"B"}, "B": {"C"}, "C": {"A"}}
	g := NewGuardian[string](Config{MaxDepth: 50})

	var order []string
	cycle := false
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		if g.DetectCycle(id) {
			cycle = true
			return
		}
		if g.Step(depth) != ReasonCompleted {
			return
		}
		order = append(order, id)
		for _, n := range graph[id] {
			visit(n, depth+1)
		}
	}
	visit("A", 0)

	if !cycle {
		t.Error("expected cycle to be detected")
	}
	if fmt.Sprint(order) != "[A B C]" {
		t.Errorf("unexpected order %v", order)
	}
	if g.Iterations() != 3 {
		t.Errorf("expected 3 iterations, got %d", g.Iterations())
	}
}

func TestWalkGraph_CycleStopsAfterThreeSteps(t *testing.T) {
	graph := map[string][]string{"A": {"B"}, "B": {"C"}, "C": {"A"}}

	res, err := WalkGraph(context.Background(), Config{MaxDepth: 50}, graph, "A")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Steps != 3 {
		t.Errorf("expected 3 steps, got %d", res.Steps)
	}
	if !res.CycleDetected || res.CycleAt != "A" {
		t.Errorf("expected cycle at A, got detected=%v at=%q", res.CycleDetected, res.CycleAt)
	}
	if res.Truncated {
		t.Error("a cycle alone must not truncate the walk")
	}
	if res.Reason != ReasonCompleted {
		t.Errorf("expected completed, got %v", res.Reason)
	}
}

func TestWalkGraph_DiamondIsNotACycle(t *testing.T) {
	graph := map[string][]string{"api": {"auth", "db"}, "auth": {"db"}}

	res, err := WalkGraph(context.Background(), Config{MaxDepth: 50}, graph, "api")
	if err != nil {
		t.Fatal(err)
	}
	if res.Steps != 3 {
		t.Errorf("expected each node expanded once, got %d steps", res.Steps)
	}
	if res.CycleDetected {
		t.Errorf("shared dependency reported as cycle at %q", res.CycleAt)
	}
	if res.Revisits != 1 {
		t.Errorf("expected db to be reached twice, got %d revisits", res.Revisits)
	}
	if fmt.Sprint(res.Visited) != "[api auth db]" {
		t.Errorf("unexpected visit order %v", res.Visited)
	}
}

func TestWalkGraph_CycleBehindSharedNode(t *testing.T) {
	// b and c form a cycle that is first entered from different branches.
	graph := map[string][]string{"a": {"b", "c"}, "b": {"c"}, "c": {"b"}}

	res, err := WalkGraph(context.Background(), DefaultConfig(), graph, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !res.CycleDetected || res.CycleAt != "b" {
		t.Errorf("expected cycle at b, got detected=%v at=%q", res.CycleDetected, res.CycleAt)
	}
	if res.Steps != 3 {
		t.Errorf("expected 3 steps, got %d", res.Steps)
	}
}

func TestWalkGraph_SelfLoop(t *testing.T) {
	res, err := WalkGraph(context.Background(), DefaultConfig(), map[int][]int{1: {1}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Steps != 1 || !res.CycleDetected || res.Revisits != 1 {
		t.Errorf("unexpected self-loop result %+v", res)
	}
}

func TestWalkGraph_DepthBoundOnChain(t *testing.T) {
	graph := make(map[int][]int)
	for i := 0; i < 1000; i++ {
		graph[i] = []int{i + 1}
	}

	res, err := WalkGraph(context.Background(), Config{MaxDepth: 10}, graph, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Steps != 10 {
		t.Errorf("expected 10 steps (depths 0-9), got %d", res.Steps)
	}
	if res.MaxDepth != 9 {
		t.Errorf("expected max depth 9, got %d", res.MaxDepth)
	}
	if !res.Truncated || res.Reason != ReasonDepth {
		t.Errorf("expected truncated by depth, got truncated=%v reason=%v", res.Truncated, res.Reason)
	}
}

func TestWalkGraph_DepthPrunesBranchButKeepsSiblings(t *testing.T) {
	graph := map[string][]string{
		"root": {"deep", "wide"},
		"deep": {"deeper"},
	}
	res, err := WalkGraph(context.Background(), Config{MaxDepth: 2}, graph, "root")
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(res.Visited) != "[root deep wide]" {
		t.Errorf("unexpected visit order %v", res.Visited)
	}
	if res.Reason != ReasonDepth {
		t.Errorf("expected depth reason, got %v", res.Reason)
	}
}

func TestWalkGraph_FullyConnectedRespectsIterations(t *testing.T) {
	const n = 200
	graph := make(map[int][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				graph[i] = append(graph[i], j)
			}
		}
	}

	res, err := WalkGraph(context.Background(), Config{MaxDepth: 1000, MaxIterations: 25}, graph, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Steps != 25 {
		t.Errorf("expected 25 steps, got %d", res.Steps)
	}
	if res.Reason != ReasonIterations || !res.Truncated {
		t.Errorf("expected iterations bound, got %v truncated=%v", res.Reason, res.Truncated)
	}
	if !res.CycleDetected {
		t.Error("expected revisits in a fully connected graph")
	}
}

func TestWalk_TimeBound(t *testing.T) {
	slow := func(ctx context.Context, node int) ([]int, error) {
		time.Sleep(5 * time.Millisecond)
		return []int{node + 1}, nil
	}

	start := time.Now()
	res, err := Walk(context.Background(), Config{Timeout: 30 * time.Millisecond, GracePeriod: time.Second}, 0, slow, nil)
	if err != nil {
		t.Fatalf("guardian time bound is not an error, got %v", err)
	}
	if res.Reason != ReasonTimeout || !res.Truncated {
		t.Errorf("expected timeout reason, got %v", res.Reason)
	}
	if res.Steps == 0 {
		t.Error("expected partial progress")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("walk overran its budget: %v", time.Since(start))
	}
}

func TestWalk_OuterDeadlineReturnsPartialResult(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	neighbors := func(ctx context.Context, node int) ([]int, error) {
		if node == 2 {
			<-block
		}
		return []int{node + 1}, nil
	}

	const limit, grace = 50 * time.Millisecond, 50 * time.Millisecond
	start := time.Now()
	res, err := Walk(context.Background(), Config{Timeout: limit, GracePeriod: grace}, 0, neighbors, nil)
	elapsed := time.Since(start)
	if !timeout.IsTimeout(err) {
		t.Fatalf("expected the outer deadline to fire, got %v", err)
	}
	if elapsed > limit+grace+100*time.Millisecond {
		t.Errorf("walk held the caller for %v, budget is %v plus %v grace", elapsed, limit, grace)
	}
	if res.Reason != ReasonTimeout || !res.Truncated {
		t.Errorf("expected timeout reason, got %v", res.Reason)
	}
	if res.Steps != 3 {
		t.Errorf("expected nodes 0..2 to be recorded, got %d", res.Steps)
	}
}

func TestWalk_NeighborErrorIsReturned(t *testing.T) {
	boom := errors.New("lookup failed")
	res, err := Walk(context.Background(), DefaultConfig(), "a", func(ctx context.Context, node string) ([]string, error) {
		return nil, boom
	}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
	if res.Steps != 1 {
		t.Errorf("expected the root to be recorded, got %d steps", res.Steps)
	}
}

func TestWalk_VisitorCanStop(t *testing.T) {
	graph := map[int][]int{0: {1, 2, 3}}
	res, err := Walk(context.Background(), DefaultConfig(), 0, func(_ context.Context, n int) ([]int, error) {
		return graph[n], nil
	}, func(node, depth int) error {
		if node == 2 {
			return ErrStop
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ReasonStopped || res.Steps != 3 {
		t.Errorf("expected stop after 3 steps, got %v / %d", res.Reason, res.Steps)
	}
}

func TestWalk_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := WalkGraph(ctx, DefaultConfig(), map[int][]int{0: {1}}, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Reason != ReasonCancelled {
		t.Errorf("expected cancelled reason, got %v", res.Reason)
	}
}

func TestStopReasonString(t *testing.T) {
	if ReasonIterations.String() != "max_iterations" || StopReason(99).String() != "unknown" {
		t.Error("unexpected reason names")
	}
}
