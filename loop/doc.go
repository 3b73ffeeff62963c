// Package loop runs a supervised work loop over a queue.
//
// A Loop moves through idle, running, draining and stopped. While running it
// polls with a bounded wait, processes each item through a circuit breaker
// that enforces the item deadline, and backs off linearly after failures.
// MaxConsecutiveErrors failures in a row drain the loop; Shutdown does the
// same from any goroutine.
//
//	l := loop.New(loop.DefaultConfig("ingest"), q, loop.HandlerFunc(handle))
//	go l.Run(ctx)
//	...
//	l.Stop(ctx)
package loop
