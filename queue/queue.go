// Package queue defines the work source a supervised loop polls, with an
// in-memory implementation. Package redisqueue provides a Redis-backed one.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned by Push when the queue is at capacity.
	ErrQueueFull = errors.New("queue: full")
	// ErrClosed is returned once a queue has been closed.
	ErrClosed = errors.New("queue: closed")
)

// Item is one unit of work.
type Item struct {
	ID         string    `json:"id"`
	Key        string    `json:"key,omitempty"`
	Payload    []byte    `json:"payload,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewItem creates an item with a fresh ID. key groups items for admission
// control, e.g. the producing client.
func NewItem(key string, payload []byte) Item {
	return Item{
		ID:         uuid.NewString(),
		Key:        key,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue is polled by consumers.
type Queue interface {
	// Poll waits up to timeout for the next item. It returns ok == false when
	// nothing arrived in time, and ctx.Err() when ctx ends first.
	Poll(ctx context.Context, timeout time.Duration) (item Item, ok bool, err error)
}

// Pusher accepts new items.
type Pusher interface {
	Push(ctx context.Context, item Item) error
}
