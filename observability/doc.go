// Package observability wires OpenTelemetry tracing and metrics for the
// framework's components.
//
// Providers:
//
//	shutdown, err := observability.Init(ctx, observability.DefaultConfig("boundguard"))
//	defer shutdown(ctx)
//
// Spans:
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanLoopItem)
//	defer span.End()
//
// Metrics:
//
//	metrics, err := observability.NewMetrics(observability.Meter("boundguard"))
//	metrics.RecordItem(ctx, "ingest", observability.OutcomeSuccess, elapsed)
//
// A nil *Metrics records nothing, so components take one optionally.
package observability
