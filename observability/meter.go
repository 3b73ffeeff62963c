package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/boundguard/logger"
)

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config Config) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.MetricInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.MetricInterval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(newResource(config)),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		logger.FieldService, config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.MetricInterval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Item outcomes recorded by RecordItem.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeTimeout  = "timeout"
	OutcomeRejected = "rejected"
)

// Metrics holds the framework's metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	itemTotal         metric.Int64Counter
	itemDuration      metric.Float64Histogram
	breakerTransition metric.Int64Counter
	rateLimitDecision metric.Int64Counter
	evictionTotal     metric.Int64Counter
	timeoutTotal      metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	itemTotal, err := meter.Int64Counter("boundguard.loop.items",
		metric.WithDescription("Work items handled by supervised loops, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating boundguard.loop.items counter: %w", err)
	}

	itemDuration, err := meter.Float64Histogram("boundguard.loop.item.duration",
		metric.WithDescription("Duration of work item processing in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating boundguard.loop.item.duration histogram: %w", err)
	}

	breakerTransition, err := meter.Int64Counter("boundguard.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating boundguard.breaker.transitions counter: %w", err)
	}

	rateLimitDecision, err := meter.Int64Counter("boundguard.ratelimit.decisions",
		metric.WithDescription("Rate limiter admissions and denials"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating boundguard.ratelimit.decisions counter: %w", err)
	}

	evictionTotal, err := meter.Int64Counter("boundguard.memory.evictions",
		metric.WithDescription("Items evicted from bounded collections"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating boundguard.memory.evictions counter: %w", err)
	}

	timeoutTotal, err := meter.Int64Counter("boundguard.timeouts",
		metric.WithDescription("Operations abandoned at their deadline"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating boundguard.timeouts counter: %w", err)
	}

	return &Metrics{
		itemTotal:         itemTotal,
		itemDuration:      itemDuration,
		breakerTransition: breakerTransition,
		rateLimitDecision: rateLimitDecision,
		evictionTotal:     evictionTotal,
		timeoutTotal:      timeoutTotal,
	}, nil
}

// RecordItem records one processed work item.
func (m *Metrics) RecordItem(ctx context.Context, loop, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.itemTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("loop", loop),
		attribute.String("outcome", outcome),
	))
	m.itemDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("loop", loop),
	))
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransition.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordRateLimit records one admission decision.
func (m *Metrics) RecordRateLimit(ctx context.Context, limiter string, allowed bool) {
	if m == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	m.rateLimitDecision.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter", limiter),
		attribute.String("decision", decision),
	))
}

// RecordEviction records n items dropped from a bounded collection.
func (m *Metrics) RecordEviction(ctx context.Context, collection string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictionTotal.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("collection", collection),
	))
}

// RecordTimeout records an operation abandoned at its deadline.
func (m *Metrics) RecordTimeout(ctx context.Context, component string) {
	if m == nil {
		return
	}
	m.timeoutTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
	))
}
