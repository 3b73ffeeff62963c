package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/boundguard/config"
	"github.com/kbukum/boundguard/errors"
	"github.com/kbukum/boundguard/fanout"
	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/memory"
	"github.com/kbukum/boundguard/queue"
	"github.com/kbukum/boundguard/traversal"
)

func testGuard(t *testing.T) *config.Guard {
	t.Helper()
	cfg := &config.Guard{}
	cfg.ApplyDefaults()
	cfg.Loop.PollTimeout = 20 * time.Millisecond
	cfg.Loop.BaseBackoff = 10 * time.Millisecond
	cfg.Loop.MaxBackoff = 50 * time.Millisecond
	cfg.Redis.MaxLength = 16
	cfg.Server.Enabled = false
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestHandler(t *testing.T) (*graphHandler, *queue.Channel) {
	t.Helper()
	sentinel := memory.NewSentinel(memory.DefaultConfig())
	hub := fanout.NewHub[GraphReport](fanout.DefaultConfig("reports"))
	out := queue.NewChannel(8)
	hub.Subscribe("push", pushListener(out))
	h, err := newGraphHandler(traversal.DefaultConfig(), hub, sentinel, logger.Nop())
	if err != nil {
		t.Fatalf("newGraphHandler: %v", err)
	}
	return h, out
}

func TestGraphHandler_DetectsCycle(t *testing.T) {
	h, out := newTestHandler(t)
	job := GraphJob{Root: "a", Edges: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}}}
	payload, _ := json.Marshal(job)

	if err := h.Handle(context.Background(), queue.NewItem("k", payload)); err != nil {
		t.Fatalf("a cycle is a reported bound, not a failure: %v", err)
	}

	reports := h.Reports()
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if !r.CycleDetected || r.CycleAt != "a" || r.Steps != 3 {
		t.Errorf("unexpected report %+v", r)
	}
	if r.Error == nil || r.Error.Code != errors.ErrCodeCycleDetected || r.Error.Details["node"] != "a" {
		t.Errorf("expected a CYCLE_DETECTED error body, got %+v", r.Error)
	}

	item, ok, err := out.Poll(context.Background(), time.Second)
	if err != nil || !ok {
		t.Fatalf("expected the report to be pushed, ok=%v err=%v", ok, err)
	}
	var pushed GraphReport
	if err := json.Unmarshal(item.Payload, &pushed); err != nil {
		t.Fatal(err)
	}
	if pushed.Key != "k" || !pushed.CycleDetected {
		t.Errorf("unexpected pushed report %+v", pushed)
	}
}

func TestGraphHandler_TruncatedWalkCarriesBoundCode(t *testing.T) {
	sentinel := memory.NewSentinel(memory.DefaultConfig())
	hub := fanout.NewHub[GraphReport](fanout.DefaultConfig("reports"))
	bounds := traversal.DefaultConfig()
	bounds.MaxDepth = 2
	h, err := newGraphHandler(bounds, hub, sentinel, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}

	deep, _ := json.Marshal(GraphJob{Root: "a", Edges: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"d"}}})
	shallow, _ := json.Marshal(GraphJob{Root: "x", Edges: map[string][]string{"x": {"y"}}})
	for _, p := range [][]byte{deep, shallow} {
		if err := h.Handle(context.Background(), queue.NewItem("", p)); err != nil {
			t.Fatal(err)
		}
	}

	reports := h.Reports()
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	r := reports[0]
	if !r.Truncated || r.Reason != traversal.ReasonDepth.String() {
		t.Fatalf("expected a depth-truncated walk, got %+v", r)
	}
	if r.Error == nil || r.Error.Code != errors.ErrCodeBoundExceeded || r.Error.Details["bound"] != "depth" {
		t.Errorf("expected a BOUND_EXCEEDED error body, got %+v", r.Error)
	}
	if reports[1].Error != nil {
		t.Errorf("a completed walk carries no error, got %+v", reports[1].Error)
	}
}

func TestGraphHandler_RejectsBadPayload(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "{"},
		{"missing root", `{"edges": {"a": ["b"]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(context.Background(), queue.NewItem("", []byte(tt.payload)))
			appErr, ok := errors.AsAppError(err)
			if !ok || appErr.Code != errors.ErrCodeInvalidInput {
				t.Errorf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
	if len(h.Reports()) != 0 {
		t.Error("failed jobs must not be reported")
	}
}

func TestValidateJob(t *testing.T) {
	if err := validateJob([]byte(`{"root": "api"}`)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateJob([]byte(`{"edges": {}}`)); err == nil {
		t.Error("expected missing root to fail")
	}
}

func TestFetchJSONAndPrintYAML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status": "unhealthy"}`))
			return
		}
		_, _ = w.Write([]byte(`{"service": "boundguard", "loops": [{"name": "work", "state": "running"}]}`))
	}))
	defer srv.Close()

	doc, code, err := fetchJSON(context.Background(), srv.Client(), srv.URL+"/status")
	if err != nil || code != http.StatusOK {
		t.Fatalf("fetch failed: code=%d err=%v", code, err)
	}
	var buf bytes.Buffer
	if err := printYAML(&buf, doc); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "service: boundguard") || !strings.Contains(out, "- name: work") {
		t.Errorf("unexpected YAML:\n%s", out)
	}

	_, code, err = fetchJSON(context.Background(), srv.Client(), srv.URL+"/health")
	if err != nil || code != http.StatusServiceUnavailable {
		t.Errorf("expected the 503 body to be returned, code=%d err=%v", code, err)
	}
}

func TestApp_ProcessesSeededJobsAndShutsDownOverHTTP(t *testing.T) {
	cfg := testGuard(t)
	cfg.Server.Enabled = true
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if err := a.seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	waitFor(t, "three reports", func() bool { return len(a.handler.Reports()) == 3 })
	reports := a.handler.Reports()
	if !reports[1].CycleDetected || reports[0].CycleDetected {
		t.Errorf("expected only the second job to be cyclic: %+v", reports)
	}

	base := "http://" + a.server.Addr()
	doc, code, err := fetchJSON(ctx, http.DefaultClient, base+"/status")
	if err != nil || code != http.StatusOK {
		t.Fatalf("GET /status: code=%d err=%v", code, err)
	}
	m, _ := doc.(map[string]any)
	if m["service"] != "boundguard" {
		t.Errorf("unexpected status document %v", doc)
	}
	bulkheads, _ := m["bulkheads"].([]any)
	if len(bulkheads) != 1 || bulkheads[0].(map[string]any)["name"] != "reports" {
		t.Errorf("expected the reports hub bulkhead in /status, got %v", m["bulkheads"])
	}

	resp, err := http.Post(base+"/jobs?key=http", "application/json", strings.NewReader(`{"root": "solo"}`))
	if err != nil {
		t.Fatalf("POST /jobs: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 from /jobs, got %d", resp.StatusCode)
	}
	waitFor(t, "the posted job", func() bool { return len(a.handler.Reports()) == 4 })

	resp, err = http.Post(base+"/jobs", "application/json", strings.NewReader(`{"edges": {}}`))
	if err != nil {
		t.Fatalf("POST /jobs: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a job without root, got %d", resp.StatusCode)
	}

	resp, err = http.Post(base+"/shutdown", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /shutdown: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("expected 202, got %d", resp.StatusCode)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected a clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after /shutdown")
	}
	if !a.loop.IsStopped() {
		t.Errorf("expected loop stopped, got %s", a.loop.State())
	}
	if snap := a.loop.Snapshot(); snap.Processed != 4 || snap.Failed != 0 {
		t.Errorf("unexpected loop counters %+v", snap)
	}
}

func TestApp_RedisQueueForwardsReports(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testGuard(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := newApp(ctx, cfg, logger.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if err := a.seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	reportsKey := cfg.Redis.Prefix + cfg.Redis.Name + ".reports"
	waitFor(t, "reports in redis", func() bool {
		items, _ := mr.List(reportsKey)
		return len(items) == 3
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected a clean stop on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestApp_StopsEveryHookAndJoinsErrors(t *testing.T) {
	a := &app{log: logger.Nop()}
	var order []string
	a.addStop("first", func(context.Context) error { order = append(order, "first"); return nil })
	a.addStop("second", func(context.Context) error {
		order = append(order, "second")
		return errors.Internal(nil)
	})

	err := a.stop(context.Background())
	if err == nil || !strings.Contains(err.Error(), "second") {
		t.Errorf("expected the failing hook to be reported, got %v", err)
	}
	if strings.Join(order, ",") != "second,first" {
		t.Errorf("expected reverse order, got %v", order)
	}
	if a.stop(context.Background()) != nil {
		t.Error("hooks must run once")
	}
}
