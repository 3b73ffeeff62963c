package memory

import (
	"fmt"
	"math"
	"sync"
)

// CollectionConfig bounds a Collection.
type CollectionConfig struct {
	// Capacity is the hard upper bound on the number of items.
	Capacity int `yaml:"capacity" mapstructure:"capacity"`
	// CleanupThreshold is the utilisation ratio in (0,1] at which an Add
	// evicts before appending.
	CleanupThreshold float64 `yaml:"cleanup_threshold" mapstructure:"cleanup_threshold"`
	// CleanupBatchFraction is the share of Capacity in (0,1] evicted per cleanup.
	CleanupBatchFraction float64 `yaml:"cleanup_batch_fraction" mapstructure:"cleanup_batch_fraction"`
	// OnEvict is called after each cleanup with the number of items dropped.
	OnEvict func(name string, evicted int) `yaml:"-" mapstructure:"-"`
}

// DefaultCollectionConfig returns a 1000 item collection that drops the
// oldest 10% once it is 90% full.
func DefaultCollectionConfig() CollectionConfig {
	return CollectionConfig{
		Capacity:             1000,
		CleanupThreshold:     0.9,
		CleanupBatchFraction: 0.1,
	}
}

// ApplyDefaults fills zero values.
func (c *CollectionConfig) ApplyDefaults() {
	d := DefaultCollectionConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.CleanupThreshold <= 0 {
		c.CleanupThreshold = d.CleanupThreshold
	}
	if c.CleanupBatchFraction <= 0 {
		c.CleanupBatchFraction = d.CleanupBatchFraction
	}
}

// Validate checks the ratios are within (0,1].
func (c *CollectionConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("memory: capacity must be positive, got %d", c.Capacity)
	}
	if c.CleanupThreshold <= 0 || c.CleanupThreshold > 1 {
		return fmt.Errorf("memory: cleanup threshold must be in (0,1], got %v", c.CleanupThreshold)
	}
	if c.CleanupBatchFraction <= 0 || c.CleanupBatchFraction > 1 {
		return fmt.Errorf("memory: cleanup batch fraction must be in (0,1], got %v", c.CleanupBatchFraction)
	}
	return nil
}

// Snapshot describes the current size of a bounded structure.
type Snapshot struct {
	Name             string  `json:"name" yaml:"name"`
	Size             int     `json:"size" yaml:"size"`
	Capacity         int     `json:"capacity" yaml:"capacity"`
	UtilizationRatio float64 `json:"utilization_ratio" yaml:"utilization_ratio"`
	Evicted          uint64  `json:"evicted" yaml:"evicted"`
}

func newSnapshot(name string, size, capacity int, evicted uint64) Snapshot {
	s := Snapshot{Name: name, Size: size, Capacity: capacity, Evicted: evicted}
	if capacity > 0 {
		s.UtilizationRatio = float64(size) / float64(capacity)
	}
	return s
}

// Collection is an ordered, capacity-bounded list. Items are kept in
// insertion order and cleaned up in batches once utilisation crosses the
// threshold. All methods are safe for concurrent use.
type Collection[T any] struct {
	name   string
	config CollectionConfig
	policy EvictionPolicy[T]
	batch  int

	mu      sync.Mutex
	items   []T
	evicted uint64
}

// NewCollection creates a bounded collection. A nil policy evicts oldest
// items first.
func NewCollection[T any](name string, config CollectionConfig, policy EvictionPolicy[T]) *Collection[T] {
	config.ApplyDefaults()
	if config.CleanupThreshold > 1 {
		config.CleanupThreshold = 1
	}
	if config.CleanupBatchFraction > 1 {
		config.CleanupBatchFraction = 1
	}
	if policy == nil {
		policy = FIFO[T]{}
	}
	return &Collection[T]{
		name:   name,
		config: config,
		policy: policy,
		batch:  int(math.Floor(float64(config.Capacity) * config.CleanupBatchFraction)),
		items:  make([]T, 0, config.Capacity),
	}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Capacity returns the configured capacity.
func (c *Collection[T]) Capacity() int { return c.config.Capacity }

// Add appends item, evicting a batch first when the collection is at or
// above its cleanup threshold. It never blocks and never fails; after it
// returns the collection holds at most Capacity items.
func (c *Collection[T]) Add(item T) {
	c.mu.Lock()
	n := c.cleanupLocked()
	c.items = append(c.items, item)
	c.mu.Unlock()

	if n > 0 && c.config.OnEvict != nil {
		c.config.OnEvict(c.name, n)
	}
}

func (c *Collection[T]) cleanupLocked() int {
	size := len(c.items)
	if float64(size)/float64(c.config.Capacity) < c.config.CleanupThreshold {
		return 0
	}
	n := c.batch
	// Leave room for the incoming item even when the batch rounds down.
	if need := size - c.config.Capacity + 1; n < need {
		n = need
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return 0
	}
	c.items = c.policy.Evict(c.items, n)
	c.evicted += uint64(n)
	return n
}

// Len returns the number of items held.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Items returns a copy of the items, oldest first.
func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Evicted returns the total number of items dropped by cleanup.
func (c *Collection[T]) Evicted() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evicted
}

// Clear drops all items without counting them as evicted.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	clear(c.items)
	c.items = c.items[:0]
	c.mu.Unlock()
}

// Snapshot returns the current size figures.
func (c *Collection[T]) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return newSnapshot(c.name, len(c.items), c.config.Capacity, c.evicted)
}

// offer adds item when it has the collection's element type.
func (c *Collection[T]) offer(item any) bool {
	v, ok := item.(T)
	if !ok {
		return false
	}
	c.Add(v)
	return true
}
