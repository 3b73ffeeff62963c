package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newJSONLogger(buf *bytes.Buffer, level string) *Logger {
	return NewWithWriter(&Config{Level: level, Format: FormatJSON}, buf, "boundguard")
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("test-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.service != "test-svc" {
		t.Errorf("expected service 'test-svc', got %q", l.service)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	l := New(&Config{Level: "invalid-level", Format: FormatJSON}, "test")
	if l == nil {
		t.Fatal("expected logger to be created even with invalid level")
	}
}

func TestNewFromEnv(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "json")
	defer os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("LOG_FORMAT")

	if l := NewFromEnv("env-svc"); l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestJSONOutputCarriesServiceAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, "info")

	l.WithComponent("breaker").Warn("circuit opened", Fields(FieldBreaker, "payments", "failures", 5))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	got := lines[0]
	if got["message"] != "circuit opened" {
		t.Errorf("unexpected message %v", got["message"])
	}
	if got[FieldService] != "boundguard" {
		t.Errorf("expected service field, got %v", got[FieldService])
	}
	if got[FieldComponent] != "breaker" {
		t.Errorf("expected component=breaker, got %v", got[FieldComponent])
	}
	if got[FieldBreaker] != "payments" {
		t.Errorf("expected breaker=payments, got %v", got[FieldBreaker])
	}
	if got["failures"] != float64(5) {
		t.Errorf("expected failures=5, got %v", got["failures"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, "warn")

	l.Debug("hidden")
	l.Info("hidden too")
	l.Error("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected only the error line, got %d lines", len(lines))
	}
	if lines[0]["level"] != "error" {
		t.Errorf("expected level=error, got %v", lines[0]["level"])
	}
}

func TestWithContextAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, "info")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	l.WithContext(ctx).Info("traced")

	lines := decodeLines(t, &buf)
	if lines[0][FieldTraceID] != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace_id %s, got %v", span.SpanContext().TraceID(), lines[0][FieldTraceID])
	}
	if lines[0][FieldSpanID] == nil {
		t.Error("expected span_id field")
	}
}

func TestWithContextWithoutSpan(t *testing.T) {
	l := NewDefault("test")
	if l.WithContext(context.Background()) != l {
		t.Error("expected the same logger when ctx carries no span")
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	newJSONLogger(&buf, "info").WithError(errors.New("boom")).Error("failed")

	lines := decodeLines(t, &buf)
	if lines[0]["error"] != "boom" {
		t.Errorf("expected error=boom, got %v", lines[0]["error"])
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	newJSONLogger(&buf, "info").WithFields(map[string]interface{}{FieldLoop: "worker"}).Info("tick")

	lines := decodeLines(t, &buf)
	if lines[0][FieldLoop] != "worker" {
		t.Errorf("expected loop=worker, got %v", lines[0][FieldLoop])
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("discarded", Fields("k", "v"))
	l.WithComponent("x").Error("also discarded")
}

func TestInitAndGlobal(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	Init(Config{Level: "debug", Format: FormatJSON})
	if GetGlobalLogger() == prev {
		t.Error("expected Init to replace the global logger")
	}

	Info("package level")
	Debug("package level")
	Warn("package level")
	Error("package level")
}

func TestOrDefault(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, "info")

	OrDefault(l, "memory").Info("cleanup")
	lines := decodeLines(t, &buf)
	if lines[0][FieldComponent] != "memory" {
		t.Errorf("expected component=memory, got %v", lines[0][FieldComponent])
	}

	if OrDefault(nil, "memory") == nil {
		t.Error("expected fallback logger for nil input")
	}
}

func TestRegisterAndGet(t *testing.T) {
	l := NewDefault("registered")
	Register("custom", l)
	if Get("custom") != l {
		t.Error("expected registered logger")
	}
	if Get("unregistered-component") == nil {
		t.Error("expected fallback logger")
	}
}

func TestRegisterDefaults(t *testing.T) {
	RegisterDefaults()
	names := Registered()
	for _, want := range []string{"breaker", "loop", "redisqueue"} {
		if !slices.Contains(names, want) {
			t.Errorf("expected %s logger to be registered, got %v", want, names)
		}
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != FormatConsole || cfg.Output != "stdout" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.Timestamp {
		t.Error("expected timestamp enabled")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid json", Config{Level: "info", Format: FormatJSON}, false},
		{"valid console", Config{Level: "debug", Format: FormatConsole}, false},
		{"bad level", Config{Level: "loud", Format: FormatJSON}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", Format: FormatConsole, NoColor: true}, &buf, "guard")
	l.Info("hello", Fields("k", "v"))

	out := buf.String()
	if !strings.Contains(out, "[GUA][INF]") {
		t.Errorf("expected service and level tag, got %q", out)
	}
	if !strings.Contains(out, "k:") {
		t.Errorf("expected formatted field name, got %q", out)
	}
}

func TestFields(t *testing.T) {
	m := Fields("a", 1, "b", "two", 3, "ignored", "dangling")
	if len(m) != 2 {
		t.Fatalf("expected 2 fields, got %d: %v", len(m), m)
	}
	if m["a"] != 1 || m["b"] != "two" {
		t.Errorf("unexpected fields %v", m)
	}
}

func TestErrorAndDurationFields(t *testing.T) {
	ef := ErrorFields("poll", errors.New("down"))
	if ef[FieldOperation] != "poll" || ef[FieldError] != "down" {
		t.Errorf("unexpected error fields %v", ef)
	}
	df := DurationFields("walk", 1500*time.Millisecond)
	if df[FieldDuration] != int64(1500) {
		t.Errorf("expected 1500ms, got %v", df[FieldDuration])
	}
}

type stringer string

func (s stringer) String() string { return string(s) }

func TestTransitionFields(t *testing.T) {
	f := TransitionFields("db", stringer("closed"), stringer("open"))
	if f[FieldFrom] != "closed" || f[FieldTo] != "open" || f[FieldComponent] != "db" {
		t.Errorf("unexpected transition fields %v", f)
	}
}
