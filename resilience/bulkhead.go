package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/kbukum/boundguard/logger"
)

// Bulkhead rejection errors.
var (
	ErrBulkheadFull    = errors.New("bulkhead is full")
	ErrBulkheadTimeout = errors.New("bulkhead wait timeout")
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	Name string
	// MaxConcurrent is the slot count.
	MaxConcurrent int
	// MaxWait is how long a call queues for a slot. Zero rejects at once.
	MaxWait time.Duration
	// OnReject is called for every rejected call.
	OnReject func(name string, err error)
	// Logger; nil uses the global logger.
	Logger *logger.Logger
}

// DefaultBulkheadConfig returns a ten slot bulkhead that never queues.
func DefaultBulkheadConfig(name string) BulkheadConfig {
	return BulkheadConfig{Name: name, MaxConcurrent: 10}
}

// BulkheadSnapshot is a point-in-time view of a bulkhead.
type BulkheadSnapshot struct {
	Name          string `json:"name" yaml:"name"`
	InUse         int    `json:"in_use" yaml:"in_use"`
	MaxConcurrent int    `json:"max_concurrent" yaml:"max_concurrent"`
	Admitted      uint64 `json:"admitted" yaml:"admitted"`
	Rejected      uint64 `json:"rejected" yaml:"rejected"`
}

// Bulkhead caps the number of calls running at once.
type Bulkhead struct {
	config   BulkheadConfig
	slots    chan struct{}
	admitted atomic.Uint64
	rejected atomic.Uint64
	log      *logger.Logger
}

// NewBulkhead creates a bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultBulkheadConfig(config.Name).MaxConcurrent
	}
	return &Bulkhead{
		config: config,
		slots:  make(chan struct{}, config.MaxConcurrent),
		log:    logger.OrDefault(config.Logger, "bulkhead"),
	}
}

// Name returns the bulkhead name.
func (b *Bulkhead) Name() string { return b.config.Name }

// Execute runs fn in a slot. Without a free slot within MaxWait it returns
// ErrBulkheadFull, ErrBulkheadTimeout or the context error without calling fn.
func (b *Bulkhead) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.enter(ctx); err != nil {
		b.rejected.Add(1)
		b.log.Debug("bulkhead rejected call", logger.Fields(
			"bulkhead", b.config.Name,
			"in_use", b.InUse(),
			logger.FieldError, err.Error(),
		))
		if b.config.OnReject != nil {
			b.config.OnReject(b.config.Name, err)
		}
		return err
	}
	b.admitted.Add(1)
	defer func() { <-b.slots }()
	return fn(ctx)
}

// ExecuteInBulkhead is Execute for calls returning a value.
func ExecuteInBulkhead[T any](ctx context.Context, b *Bulkhead, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

func (b *Bulkhead) enter(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	default:
	}
	if b.config.MaxWait <= 0 {
		return ErrBulkheadFull
	}

	wait := time.NewTimer(b.config.MaxWait)
	defer wait.Stop()
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-wait.C:
		return ErrBulkheadTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Available returns the free slot count.
func (b *Bulkhead) Available() int { return cap(b.slots) - len(b.slots) }

// InUse returns the taken slot count.
func (b *Bulkhead) InUse() int { return len(b.slots) }

// MaxConcurrent returns the slot count.
func (b *Bulkhead) MaxConcurrent() int { return cap(b.slots) }

// Snapshot returns occupancy and counters.
func (b *Bulkhead) Snapshot() BulkheadSnapshot {
	return BulkheadSnapshot{
		Name:          b.config.Name,
		InUse:         b.InUse(),
		MaxConcurrent: cap(b.slots),
		Admitted:      b.admitted.Load(),
		Rejected:      b.rejected.Load(),
	}
}
