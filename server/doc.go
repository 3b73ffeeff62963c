// Package server exposes the guards of a process over HTTP using Gin.
//
// # Middleware
//
// Built-in middleware (server/middleware):
//
//   - Recovery: panic recovery with structured logging
//   - RequestID: request ID generation and propagation
//   - RequestLogger: request logging with duration tracking
//   - RateLimit: keyed token bucket admission with bounded key registry
//
// # Endpoints
//
// Built-in endpoints (server/endpoint):
//
//   - GET /health: worst-wins health ladder, 503 when unhealthy
//   - GET /alive, /ready: Kubernetes probes
//   - GET /status: snapshot of every registered guard
//   - GET /metrics: prometheus metrics
//   - GET /version: build version information
//   - POST /shutdown: asks the supervised loops to stop
//   - POST /jobs: pushes the body onto the work queue (RegisterEnqueue)
//
// Error responses use the AppError envelope written by server/respond.
package server
