// Package health aggregates component health on a three step ladder:
// healthy, degraded, unhealthy. The worst component decides the overall
// status.
//
//	m := health.NewMonitor(health.DefaultMonitorConfig())
//	m.Register("db", health.Breaker(dbBreaker))
//	m.Register("ingest", health.Loop(ingest))
//	report := m.Check(ctx)
package health
