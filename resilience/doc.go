// Package resilience isolates failures and bounds load.
//
// This package includes:
//   - CircuitBreaker: fails fast after repeated failures, probes for recovery
//   - RateLimiter: per-key token buckets held in a bounded registry
//   - Bulkhead: caps concurrent calls
//   - Retry and Backoff: linear and exponential delays between attempts
//
// A typical guarded call admits the request, then runs it through the
// breaker, which applies the call timeout:
//
//	rl := resilience.NewRateLimiter(resilience.DefaultRateLimiterConfig("api"))
//	cb := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("db"))
//
//	err := rl.Execute(clientID, func() error {
//	    return cb.Execute(ctx, func(ctx context.Context) error {
//	        return db.Ping(ctx)
//	    })
//	})
package resilience
