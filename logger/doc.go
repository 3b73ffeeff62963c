// Package logger provides structured logging for boundguard components
// using zerolog.
//
// Components take an optional *Logger in their config and fall back to a
// component-tagged global logger, so state transitions (breaker open/close,
// loop draining, collection cleanup) always land in the same stream.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("breaker")
//	log.Warn("circuit opened", logger.Fields("breaker", "payments", "failures", 5))
package logger
