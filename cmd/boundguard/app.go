package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kbukum/boundguard/config"
	"github.com/kbukum/boundguard/fanout"
	"github.com/kbukum/boundguard/health"
	"github.com/kbukum/boundguard/logger"
	"github.com/kbukum/boundguard/loop"
	"github.com/kbukum/boundguard/memory"
	"github.com/kbukum/boundguard/observability"
	"github.com/kbukum/boundguard/queue"
	"github.com/kbukum/boundguard/queue/redisqueue"
	"github.com/kbukum/boundguard/resilience"
	"github.com/kbukum/boundguard/server"
	"github.com/kbukum/boundguard/status"
	"github.com/kbukum/boundguard/timeout"
)

// stopHook releases one resource during shutdown.
type stopHook struct {
	name string
	fn   func(ctx context.Context) error
}

// app wires the guards of a `boundguard run` process.
type app struct {
	cfg      *config.Guard
	log      *logger.Logger
	timeouts *timeout.Manager
	metrics  *observability.Metrics
	sentinel *memory.Sentinel
	registry *status.Registry
	gatherer *prometheus.Registry
	queue    queue.Queue
	pusher   queue.Pusher
	reports  queue.Pusher
	handler  *graphHandler
	loop     *loop.Loop
	server   *server.Server

	onStop []stopHook
}

// newApp builds every component from cfg. Components are released in
// reverse order of creation by stop, also when building fails halfway.
func newApp(ctx context.Context, cfg *config.Guard, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	if err := a.build(ctx); err != nil {
		_ = a.stop(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	otelShutdown, err := observability.Init(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	a.addStop("observability", otelShutdown)

	a.metrics, err = observability.NewMetrics(observability.Meter("boundguard"))
	if err != nil {
		return err
	}

	tc := cfg.TimeoutManager(log)
	tc.OnTimeout = status.Timeouts(a.metrics, nil)
	a.timeouts = timeout.NewManager(tc)

	sc := cfg.SentinelConfig(log)
	sc.OnEvict = status.Evictions(a.metrics, nil)
	a.sentinel = memory.NewSentinel(sc)

	a.registry = status.NewRegistry(cfg.Name, health.NewMonitor(health.MonitorConfig{Logger: log}))
	a.registry.SetSentinel(a.sentinel)

	if err := a.buildQueue(ctx); err != nil {
		return err
	}
	if err := a.buildLoop(); err != nil {
		return err
	}
	if cfg.Server.Enabled {
		a.buildServer()
	}
	return nil
}

func (a *app) addStop(name string, fn func(ctx context.Context) error) {
	a.onStop = append(a.onStop, stopHook{name: name, fn: fn})
}

// buildQueue connects to Redis when enabled, otherwise uses an in-process
// channel sized like a redis list.
func (a *app) buildQueue(ctx context.Context) error {
	if !a.cfg.Redis.Enabled {
		ch := queue.NewChannel(int(a.cfg.Redis.MaxLength))
		a.queue, a.pusher = ch, ch
		a.addStop("queue", func(context.Context) error { ch.Close(); return nil })
		return nil
	}

	rq, err := redisqueue.New(a.cfg.Redis, a.log)
	if err != nil {
		return err
	}
	a.addStop("redis", func(context.Context) error { return rq.Close() })
	if err := a.timeouts.Do(ctx, rq.Ping); err != nil {
		return fmt.Errorf("redis unreachable at %s: %w", a.cfg.Redis.Addr, err)
	}
	a.queue, a.pusher = rq, rq
	a.registry.AddChecker("redis", health.Ping("redis", rq.Ping))

	rc := a.cfg.Redis
	rc.Name = rc.Name + ".reports"
	reports, err := redisqueue.New(rc, a.log)
	if err != nil {
		return err
	}
	a.addStop("redis.reports", func(context.Context) error { return reports.Close() })
	a.reports = reports
	return nil
}

func (a *app) buildLoop() error {
	hub := fanout.NewHub[GraphReport](fanout.Config{
		Name:     "reports",
		Timeout:  a.cfg.Timeout.Default,
		Sentinel: a.sentinel,
		Logger:   a.log,
	})
	a.registry.AddBulkhead(hub.Bulkhead())
	hub.Subscribe("log", logListener(a.log.WithComponent("reports")))
	if a.reports != nil {
		hub.Subscribe("redis", pushListener(a.reports))
	}

	h, err := newGraphHandler(a.cfg.Traversal, hub, a.sentinel, a.log)
	if err != nil {
		return err
	}
	a.handler = h

	lc := a.cfg.LoopSettings(a.sentinel, a.log)
	lc.Metrics = a.metrics

	bc := a.cfg.CircuitBreaker(lc.Name+".handler", a.log)
	bc.OnStateChange = status.BreakerTransitions(a.metrics, nil)
	lc.Breaker = resilience.NewCircuitBreaker(bc)

	if a.cfg.RateLimit.Enabled {
		rc := a.cfg.RateLimiter(lc.Name+".admission", a.sentinel, a.log)
		rc.OnLimit = status.RateLimits(a.metrics, nil)
		lc.Admission = resilience.NewRateLimiter(rc)
		a.registry.AddRateLimiter(lc.Admission)
	}
	lc.OnDrop = func(item queue.Item, err error) {
		a.log.Debug("item dropped", logger.Fields(logger.FieldItemID, item.ID, logger.FieldError, err.Error()))
	}

	a.loop = loop.New(lc, a.queue, h)
	a.registry.AddLoop(a.loop)
	return nil
}

func (a *app) buildServer() {
	a.gatherer = prometheus.NewRegistry()
	a.gatherer.MustRegister(
		status.NewCollector(a.registry),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var limiter *resilience.RateLimiter
	if rl := a.cfg.Server.RateLimit; rl.Enabled {
		limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Name:       "http",
			Capacity:   rl.Capacity,
			RefillRate: rl.RefillRate,
			MaxKeys:    rl.MaxKeys,
			OnLimit:    status.RateLimits(a.metrics, nil),
			Sentinel:   a.sentinel,
			Logger:     a.log,
		})
		a.registry.AddRateLimiter(limiter)
	}

	a.server = server.New(a.cfg.Server, a.log)
	a.server.ApplyMiddleware(limiter, a.metrics)
	a.server.RegisterEndpoints(a.registry, a.gatherer, a.loop.Shutdown)
	a.server.RegisterEnqueue(a.pusher, validateJob)
}

// run serves until the loop stops, either drained after repeated failures,
// shut down over HTTP, or interrupted by a signal.
func (a *app) run(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Start(ctx); err != nil {
			return err
		}
		a.addStop("server", a.server.Stop)
	}

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	loopErr := make(chan error, 1)
	go func() { loopErr <- a.loop.Run(loopCtx) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	a.log.Info("boundguard running", logger.Fields(
		logger.FieldLoop, a.loop.Name(),
		"run_id", a.loop.RunID(),
		"redis", a.cfg.Redis.Enabled,
	))

	var err error
	select {
	case err = <-loopErr:
	case s := <-sig:
		a.log.Info("received signal, draining", logger.Fields("signal", s.String()))
		err = a.drain(loopErr, cancelLoop)
	case <-ctx.Done():
		err = a.drain(loopErr, cancelLoop)
	}

	if stopErr := a.stop(context.Background()); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

// drain asks the loop to finish its in-flight item, cancelling it if that
// takes longer than the item timeout plus grace.
func (a *app) drain(loopErr <-chan error, cancel context.CancelFunc) error {
	a.loop.Shutdown()
	wait := a.cfg.Loop.ItemTimeout + a.cfg.Timeout.GracePeriod
	select {
	case err := <-loopErr:
		return err
	case <-time.After(wait):
		a.log.Warn("loop did not drain in time, cancelling", logger.Fields(logger.FieldDuration, wait.Milliseconds()))
		cancel()
		return <-loopErr
	}
}

// stop runs the stop hooks in reverse order, each bounded by the timeout
// manager. Every hook runs; their errors are joined.
func (a *app) stop(ctx context.Context) error {
	var errs []error
	for i := len(a.onStop) - 1; i >= 0; i-- {
		h := a.onStop[i]
		run := h.fn
		if a.timeouts != nil {
			run = func(ctx context.Context) error { return a.timeouts.Do(ctx, h.fn) }
		}
		if err := run(ctx); err != nil {
			a.log.Warn("stop hook failed", logger.Fields("hook", h.name, logger.FieldError, err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	a.onStop = nil
	return errors.Join(errs...)
}

// seed pushes sample jobs, one of them cyclic.
func (a *app) seed(ctx context.Context) error {
	jobs := []GraphJob{
		{Root: "api", Edges: map[string][]string{"api": {"auth", "db"}, "auth": {"db"}}},
		{Root: "a", Edges: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}}},
		{Root: "leaf"},
	}
	for _, j := range jobs {
		payload, err := json.Marshal(j)
		if err != nil {
			return err
		}
		if err := a.pusher.Push(ctx, queue.NewItem("seed", payload)); err != nil {
			return err
		}
	}
	return nil
}
