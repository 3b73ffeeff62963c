package queue

import (
	"context"
	"sync"
	"time"
)

// Channel is a bounded in-memory queue. Push never blocks.
type Channel struct {
	items chan Item

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewChannel creates a queue holding at most capacity items (100 when unset).
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = 100
	}
	return &Channel{
		items: make(chan Item, capacity),
		done:  make(chan struct{}),
	}
}

// Push enqueues item or fails with ErrQueueFull.
func (c *Channel) Push(_ context.Context, item Item) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Poll implements Queue. Items pushed before Close are still delivered.
func (c *Channel) Poll(ctx context.Context, timeout time.Duration) (Item, bool, error) {
	select {
	case item := <-c.items:
		return item, true, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return Item{}, false, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-c.items:
		return item, true, nil
	case <-timer.C:
		return Item{}, false, nil
	case <-c.done:
		return Item{}, false, ErrClosed
	case <-ctx.Done():
		return Item{}, false, ctx.Err()
	}
}

// Close stops accepting items and wakes pollers once the queue is empty.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// Len returns the number of queued items.
func (c *Channel) Len() int { return len(c.items) }

// Cap returns the queue capacity.
func (c *Channel) Cap() int { return cap(c.items) }
