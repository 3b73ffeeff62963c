package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kbukum/boundguard/logger"
)

var (
	// ErrRegistryFull is returned when the sentinel already tracks
	// MaxCollections structures.
	ErrRegistryFull = errors.New("memory: sentinel registry full")
	// ErrTypeMismatch is returned by Track when name is already registered
	// with a different element type.
	ErrTypeMismatch = errors.New("memory: collection registered with a different type")
)

// Bounded is any structure the sentinel can report on.
type Bounded interface {
	Name() string
	Snapshot() Snapshot
}

type offerer interface {
	offer(item any) bool
}

// Config configures a Sentinel.
type Config struct {
	// MaxCollections bounds the sentinel's own registry.
	MaxCollections int `yaml:"max_collections" mapstructure:"max_collections"`
	// Default is used for collections created on first Add.
	Default CollectionConfig `yaml:"default" mapstructure:"default"`
	// DegradedUtilization is the ratio at or above which a structure counts
	// as under pressure.
	DegradedUtilization float64 `yaml:"degraded_utilization" mapstructure:"degraded_utilization"`
	// OnEvict observes cleanups of collections created by the sentinel.
	OnEvict func(name string, evicted int) `yaml:"-" mapstructure:"-"`
	// Logger; nil uses the global logger.
	Logger *logger.Logger `yaml:"-" mapstructure:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxCollections:      64,
		Default:             DefaultCollectionConfig(),
		DegradedUtilization: 0.95,
	}
}

// Sentinel is a registry of named bounded structures. It creates collections
// on demand, routes items to them and reports their sizes. It is safe for
// concurrent use.
type Sentinel struct {
	config Config
	log    *logger.Logger

	mu      sync.RWMutex
	entries map[string]Bounded
	dropped uint64
}

// NewSentinel creates a sentinel.
func NewSentinel(config Config) *Sentinel {
	d := DefaultConfig()
	if config.MaxCollections <= 0 {
		config.MaxCollections = d.MaxCollections
	}
	if config.DegradedUtilization <= 0 {
		config.DegradedUtilization = d.DegradedUtilization
	}
	config.Default.ApplyDefaults()
	return &Sentinel{
		config:  config,
		log:     logger.OrDefault(config.Logger, "memory"),
		entries: make(map[string]Bounded),
	}
}

// Register adds b under its name, replacing any previous entry of the same
// name.
func (s *Sentinel) Register(b Bounded) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerLocked(b)
}

func (s *Sentinel) registerLocked(b Bounded) error {
	if _, ok := s.entries[b.Name()]; !ok && len(s.entries) >= s.config.MaxCollections {
		return fmt.Errorf("%w: %d entries", ErrRegistryFull, s.config.MaxCollections)
	}
	s.entries[b.Name()] = b
	return nil
}

// Unregister removes name.
func (s *Sentinel) Unregister(name string) {
	s.mu.Lock()
	delete(s.entries, name)
	s.mu.Unlock()
}

// Get returns the structure registered as name.
func (s *Sentinel) Get(name string) (Bounded, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.entries[name]
	return b, ok
}

// Track returns the collection registered as name, creating and registering
// it when absent. A zero cfg uses the sentinel's default.
func Track[T any](s *Sentinel, name string, cfg CollectionConfig, policy EvictionPolicy[T]) (*Collection[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.entries[name]; ok {
		c, ok := b.(*Collection[T])
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, name)
		}
		return c, nil
	}
	c := NewCollection(name, s.collectionConfig(cfg), policy)
	if err := s.registerLocked(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Sentinel) collectionConfig(cfg CollectionConfig) CollectionConfig {
	if cfg.Capacity == 0 && cfg.CleanupThreshold == 0 && cfg.CleanupBatchFraction == 0 {
		onEvict := cfg.OnEvict
		cfg = s.config.Default
		if onEvict != nil {
			cfg.OnEvict = onEvict
		}
	}
	cfg.ApplyDefaults()
	user := cfg.OnEvict
	cfg.OnEvict = func(name string, n int) {
		s.log.Debug("collection cleanup", logger.Fields(logger.FieldCollection, name, logger.FieldEvicted, n))
		if s.config.OnEvict != nil {
			s.config.OnEvict(name, n)
		}
		if user != nil {
			user(name, n)
		}
	}
	return cfg
}

// Add routes item to the collection called name, creating a default
// collection on first use. Items that cannot be stored, because the registry
// is full or the collection holds another type, are dropped and logged.
func (s *Sentinel) Add(name string, item any) {
	s.mu.RLock()
	b, ok := s.entries[name]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		if b, ok = s.entries[name]; !ok {
			c := NewCollection[any](name, s.collectionConfig(CollectionConfig{}), nil)
			if err := s.registerLocked(c); err != nil {
				s.dropped++
				s.mu.Unlock()
				s.log.Warn("item dropped", logger.Fields(logger.FieldCollection, name, logger.FieldError, err.Error()))
				return
			}
			b = c
		}
		s.mu.Unlock()
	}

	o, ok := b.(offerer)
	if !ok || !o.offer(item) {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.log.Warn("item dropped", logger.Fields(
			logger.FieldCollection, name,
			"item_type", fmt.Sprintf("%T", item),
		))
	}
}

// Dropped returns the number of items Add could not store.
func (s *Sentinel) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

// Status returns a snapshot of every registered structure, sorted by name.
func (s *Sentinel) Status() []Snapshot {
	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.entries))
	for _, b := range s.entries {
		out = append(out, b.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UnderPressure returns the snapshots at or above the degraded utilisation.
func (s *Sentinel) UnderPressure() []Snapshot {
	var out []Snapshot
	for _, snap := range s.Status() {
		if snap.UtilizationRatio >= s.config.DegradedUtilization {
			out = append(out, snap)
		}
	}
	return out
}

// Len returns the number of registered structures.
func (s *Sentinel) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// MaxCollections returns the registry bound.
func (s *Sentinel) MaxCollections() int { return s.config.MaxCollections }
