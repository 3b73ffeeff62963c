package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/memory"
	"github.com/kbukum/boundguard/observability"
	"github.com/kbukum/boundguard/queue"
	"github.com/kbukum/boundguard/resilience"
	"github.com/kbukum/boundguard/timeout"
)

// State is the lifecycle state of a Loop.
type State int32

const (
	// StateIdle is a loop that has not been started.
	StateIdle State = iota
	// StateRunning polls and processes items.
	StateRunning
	// StateDraining accepts nothing new and lets the in-flight item finish.
	StateDraining
	// StateStopped is terminal.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrTooManyFailures is returned by Run when the loop drained because
	// MaxConsecutiveErrors was reached.
	ErrTooManyFailures = errors.New("loop: too many consecutive failures")
	// ErrAlreadyStarted is returned by Run on a loop that is not idle.
	ErrAlreadyStarted = errors.New("loop: already started")
)

// Handler processes one work item.
type Handler interface {
	Handle(ctx context.Context, item queue.Item) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, item queue.Item) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, item queue.Item) error { return f(ctx, item) }

// Config configures a Loop.
type Config struct {
	// Name identifies the loop in logs, metrics and the sentinel.
	Name string
	// PollTimeout bounds each wait on the queue.
	PollTimeout time.Duration
	// MaxConsecutiveErrors drains the loop once reached.
	MaxConsecutiveErrors int
	// BaseBackoff is multiplied by the consecutive error count between
	// failures.
	BaseBackoff time.Duration
	// MaxBackoff caps the delay between failures.
	MaxBackoff time.Duration
	// ItemTimeout bounds one item when the loop builds its own breaker.
	ItemTimeout time.Duration
	// GracePeriod is how long a timed-out item is given to clean up.
	GracePeriod time.Duration
	// Breaker guards the handler. Nil creates one named "<Name>.handler".
	Breaker *resilience.CircuitBreaker
	// Admission, when set, admits items by Item.Key before processing.
	Admission *resilience.RateLimiter
	// OnDrop is called for items that were rejected or failed.
	OnDrop func(item queue.Item, err error)
	// HistorySize bounds the processing history.
	HistorySize int
	// Sentinel, when set, tracks the processing history.
	Sentinel *memory.Sentinel
	// Metrics records item outcomes. Nil records nothing.
	Metrics *observability.Metrics
	// Logger; nil uses the global logger.
	Logger *logger.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:                 name,
		PollTimeout:          time.Second,
		MaxConsecutiveErrors: 10,
		BaseBackoff:          time.Second,
		MaxBackoff:           30 * time.Second,
		ItemTimeout:          30 * time.Second,
		GracePeriod:          time.Second,
		HistorySize:          100,
	}
}

// ApplyDefaults fills zero values from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig(c.Name)
	if c.Name == "" {
		c.Name = "loop"
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = d.MaxConsecutiveErrors
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = d.ItemTimeout
	}
	if c.GracePeriod < 0 {
		c.GracePeriod = 0
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
}

// Record is one entry of the processing history.
type Record struct {
	ItemID    string        `json:"item_id" yaml:"item_id"`
	Key       string        `json:"key,omitempty" yaml:"key,omitempty"`
	Outcome   string        `json:"outcome" yaml:"outcome"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Snapshot is a point-in-time view of a loop.
type Snapshot struct {
	Name              string `json:"name" yaml:"name"`
	RunID             string `json:"run_id" yaml:"run_id"`
	State             State  `json:"state" yaml:"state"`
	ConsecutiveErrors int    `json:"consecutive_errors" yaml:"consecutive_errors"`
	Processed         uint64 `json:"processed" yaml:"processed"`
	Failed            uint64 `json:"failed" yaml:"failed"`
	Rejected          uint64 `json:"rejected" yaml:"rejected"`
	ShutdownRequested bool   `json:"shutdown_requested" yaml:"shutdown_requested"`
}

// Loop polls a queue and processes items one at a time until shut down or
// until too many consecutive items fail.
type Loop struct {
	config  Config
	queue   queue.Queue
	handler Handler
	breaker *resilience.CircuitBreaker
	backoff resilience.LinearBackoff
	history *memory.Collection[Record]
	log     *logger.Logger
	now     func() time.Time
	runID   string

	state        atomic.Int32
	shutdown     atomic.Bool
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	mu                sync.Mutex
	consecutiveErrors int
	processed         uint64
	failed            uint64
	rejected          uint64
}

// New creates a loop that feeds items from q to h.
func New(config Config, q queue.Queue, h Handler) *Loop {
	config.ApplyDefaults()
	now := config.Now
	if now == nil {
		now = time.Now
	}
	log := logger.OrDefault(config.Logger, "loop")

	breaker := config.Breaker
	if breaker == nil {
		bc := resilience.DefaultCircuitBreakerConfig(config.Name + ".handler")
		bc.CallTimeout = config.ItemTimeout
		bc.GracePeriod = config.GracePeriod
		bc.Now = config.Now
		bc.Logger = config.Logger
		breaker = resilience.NewCircuitBreaker(bc)
	}

	l := &Loop{
		config:     config,
		queue:      q,
		handler:    h,
		breaker:    breaker,
		backoff:    resilience.LinearBackoff{Base: config.BaseBackoff, Max: config.MaxBackoff},
		log:        log,
		now:        now,
		runID:      uuid.NewString(),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
	l.history = l.newHistory()
	return l
}

func (l *Loop) newHistory() *memory.Collection[Record] {
	name := l.config.Name + ".history"
	cfg := memory.CollectionConfig{Capacity: l.config.HistorySize}
	if l.config.Sentinel != nil {
		c, err := memory.Track[Record](l.config.Sentinel, name, cfg, nil)
		if err == nil {
			return c
		}
		l.log.Warn("history not tracked", logger.Fields(logger.FieldLoop, l.config.Name, logger.FieldError, err.Error()))
	}
	return memory.NewCollection[Record](name, cfg, nil)
}

// Name returns the loop name.
func (l *Loop) Name() string { return l.config.Name }

// RunID identifies this loop instance in logs.
func (l *Loop) RunID() string { return l.runID }

// Breaker returns the breaker guarding the handler.
func (l *Loop) Breaker() *resilience.CircuitBreaker { return l.breaker }

// State returns the current lifecycle state.
func (l *Loop) State() State { return State(l.state.Load()) }

// Run polls and processes items until Shutdown, ctx cancellation, queue
// closure, or MaxConsecutiveErrors consecutive failures. Shutdown and
// cancellation interrupt polling and backoff; an item already taken from the
// queue is still processed under the breaker's deadline. Run returns
// ErrTooManyFailures when it drained because of failures.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	defer close(l.done)
	l.log.Info("loop started", logger.Fields(logger.FieldLoop, l.config.Name, "run_id", l.runID))

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.shutdownCh:
			l.transition(StateRunning, StateDraining)
			cancel()
		case <-pollCtx.Done():
		}
	}()

	err := l.run(ctx, pollCtx)

	l.transition(StateRunning, StateDraining)
	l.transition(StateDraining, StateStopped)
	return err
}

func (l *Loop) run(ctx, pollCtx context.Context) error {
	for {
		if l.shutdown.Load() || ctx.Err() != nil {
			return nil
		}

		item, ok, err := l.queue.Poll(pollCtx, l.config.PollTimeout)
		if err != nil {
			if pollCtx.Err() != nil {
				return nil
			}
			if errors.Is(err, queue.ErrClosed) {
				l.log.Info("queue closed", logger.Fields(logger.FieldLoop, l.config.Name))
				return nil
			}
			if l.recordFailure(err) {
				return ErrTooManyFailures
			}
			l.log.Warn("poll failed", logger.Fields(logger.FieldLoop, l.config.Name, logger.FieldError, err.Error()))
			l.wait(pollCtx)
			continue
		}
		if !ok {
			continue
		}

		err = l.process(ctx, item)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if l.recordFailure(err) {
			return ErrTooManyFailures
		}
		l.wait(pollCtx)
	}
}

// process runs one item. It returns nil for successes and admission
// rejections, the handler error otherwise.
func (l *Loop) process(ctx context.Context, item queue.Item) error {
	ctx, span := observability.StartSpan(ctx, observability.SpanLoopItem, trace.WithAttributes(
		attribute.String(observability.AttrLoop, l.config.Name),
		attribute.String(observability.AttrItemID, item.ID),
		attribute.String(observability.AttrItemKey, item.Key),
	))
	defer span.End()

	start := l.now()
	if l.config.Admission != nil && !l.config.Admission.Allow(item.Key) {
		l.mu.Lock()
		l.rejected++
		l.mu.Unlock()
		l.finish(ctx, item, start, observability.OutcomeRejected, resilience.ErrRateLimited)
		return nil
	}

	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		return l.handler.Handle(ctx, item)
	})

	switch {
	case err == nil:
		l.mu.Lock()
		l.processed++
		l.consecutiveErrors = 0
		l.mu.Unlock()
		l.finish(ctx, item, start, observability.OutcomeSuccess, nil)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Cancelled by the owner; neither success nor failure.
		l.finish(ctx, item, start, "cancelled", err)
	case timeout.IsTimeout(err):
		l.config.Metrics.RecordTimeout(ctx, "loop")
		l.finish(ctx, item, start, observability.OutcomeTimeout, err)
	default:
		l.finish(ctx, item, start, observability.OutcomeFailure, err)
	}
	return err
}

func (l *Loop) finish(ctx context.Context, item queue.Item, start time.Time, outcome string, err error) {
	elapsed := l.now().Sub(start)
	rec := Record{ItemID: item.ID, Key: item.Key, Outcome: outcome, StartedAt: start, Duration: elapsed}
	if err != nil {
		rec.Error = err.Error()
		observability.SetSpanError(ctx, err)
	}
	observability.SetSpanAttribute(ctx, observability.AttrOutcome, outcome)
	l.history.Add(rec)
	l.config.Metrics.RecordItem(ctx, l.config.Name, outcome, elapsed)

	if err == nil {
		return
	}
	l.log.Warn("item not processed", logger.Fields(
		logger.FieldLoop, l.config.Name,
		logger.FieldItemID, item.ID,
		"outcome", outcome,
		logger.FieldError, err.Error(),
		logger.FieldDuration, elapsed.Milliseconds(),
	))
	if l.config.OnDrop != nil {
		l.config.OnDrop(item, err)
	}
}

// recordFailure counts a failure and reports whether the loop must drain.
func (l *Loop) recordFailure(err error) bool {
	l.mu.Lock()
	l.failed++
	l.consecutiveErrors++
	n := l.consecutiveErrors
	l.mu.Unlock()

	if n < l.config.MaxConsecutiveErrors {
		return false
	}
	l.log.Error("too many consecutive failures, draining", logger.Fields(
		logger.FieldLoop, l.config.Name,
		"consecutive_errors", n,
		logger.FieldError, err.Error(),
	))
	return true
}

// wait sleeps for the backoff of the current failure streak. Shutdown cuts
// it short.
func (l *Loop) wait(ctx context.Context) {
	l.mu.Lock()
	d := l.backoff.Delay(l.consecutiveErrors)
	l.mu.Unlock()
	l.log.Debug("backing off", logger.Fields(logger.FieldLoop, l.config.Name, logger.FieldBackoff, d.Milliseconds()))
	_ = resilience.Sleep(ctx, d)
}

func (l *Loop) transition(from, to State) {
	if !l.state.CompareAndSwap(int32(from), int32(to)) {
		return
	}
	l.log.Info("loop state changed", logger.TransitionFields(l.config.Name, from, to))
}

// Shutdown asks the loop to stop. It returns immediately, is safe to call
// from any goroutine and any number of times.
func (l *Loop) Shutdown() {
	l.shutdownOnce.Do(func() {
		l.shutdown.Store(true)
		close(l.shutdownCh)
		l.log.Info("shutdown requested", logger.Fields(logger.FieldLoop, l.config.Name))
	})
}

// Stop calls Shutdown and waits until the loop has stopped or ctx is done.
// A loop that was never started is stopped directly.
func (l *Loop) Stop(ctx context.Context) error {
	l.Shutdown()
	if l.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		close(l.done)
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

// IsStopped reports whether the loop reached StateStopped.
func (l *Loop) IsStopped() bool { return l.State() == StateStopped }

// ShutdownRequested reports whether Shutdown was called.
func (l *Loop) ShutdownRequested() bool { return l.shutdown.Load() }

// History returns the most recent processing records, oldest first.
func (l *Loop) History() []Record { return l.history.Items() }

// Snapshot returns the loop's state and counters.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Name:              l.config.Name,
		RunID:             l.runID,
		State:             l.State(),
		ConsecutiveErrors: l.consecutiveErrors,
		Processed:         l.processed,
		Failed:            l.failed,
		Rejected:          l.rejected,
		ShutdownRequested: l.shutdown.Load(),
	}
}
