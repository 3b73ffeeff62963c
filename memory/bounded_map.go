package memory

import (
	"container/list"
	"sync"
)

type mapEntry[K comparable, V any] struct {
	key K
	val V
}

// BoundedMap is a keyed store holding at most MaxKeys entries. When a new key
// would exceed the bound, the oldest inserted key is dropped.
type BoundedMap[K comparable, V any] struct {
	name    string
	maxKeys int
	onEvict func(key K, val V)

	mu      sync.Mutex
	order   *list.List
	entries map[K]*list.Element
	evicted uint64
}

// NewBoundedMap creates a map bounded to maxKeys entries (1000 when unset).
// onEvict, when not nil, is called for every dropped entry.
func NewBoundedMap[K comparable, V any](name string, maxKeys int, onEvict func(key K, val V)) *BoundedMap[K, V] {
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	return &BoundedMap[K, V]{
		name:    name,
		maxKeys: maxKeys,
		onEvict: onEvict,
		order:   list.New(),
		entries: make(map[K]*list.Element),
	}
}

// Name returns the map name.
func (m *BoundedMap[K, V]) Name() string { return m.name }

// Get returns the value for key.
func (m *BoundedMap[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		return el.Value.(*mapEntry[K, V]).val, true
	}
	var zero V
	return zero, false
}

// Put stores val under key. Updating an existing key keeps its age.
func (m *BoundedMap[K, V]) Put(key K, val V) {
	m.mu.Lock()
	if el, ok := m.entries[key]; ok {
		el.Value.(*mapEntry[K, V]).val = val
		m.mu.Unlock()
		return
	}
	dropped := m.insertLocked(key, val)
	m.mu.Unlock()
	m.notify(dropped)
}

// GetOrCreate returns the value for key, creating it with create when absent.
// create runs under the map lock and must not call back into the map.
func (m *BoundedMap[K, V]) GetOrCreate(key K, create func() V) V {
	m.mu.Lock()
	if el, ok := m.entries[key]; ok {
		v := el.Value.(*mapEntry[K, V]).val
		m.mu.Unlock()
		return v
	}
	v := create()
	dropped := m.insertLocked(key, v)
	m.mu.Unlock()
	m.notify(dropped)
	return v
}

func (m *BoundedMap[K, V]) insertLocked(key K, val V) []*mapEntry[K, V] {
	var dropped []*mapEntry[K, V]
	for m.order.Len() >= m.maxKeys {
		front := m.order.Front()
		e := m.order.Remove(front).(*mapEntry[K, V])
		delete(m.entries, e.key)
		m.evicted++
		dropped = append(dropped, e)
	}
	m.entries[key] = m.order.PushBack(&mapEntry[K, V]{key: key, val: val})
	return dropped
}

func (m *BoundedMap[K, V]) notify(dropped []*mapEntry[K, V]) {
	if m.onEvict == nil {
		return
	}
	for _, e := range dropped {
		m.onEvict(e.key, e.val)
	}
}

// Delete removes key.
func (m *BoundedMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		m.order.Remove(el)
		delete(m.entries, key)
	}
}

// Len returns the number of keys.
func (m *BoundedMap[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// MaxKeys returns the key bound.
func (m *BoundedMap[K, V]) MaxKeys() int { return m.maxKeys }

// Range calls fn for each entry, oldest first, until fn returns false.
// fn runs under the map lock.
func (m *BoundedMap[K, V]) Range(fn func(key K, val V) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for el := m.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*mapEntry[K, V])
		if !fn(e.key, e.val) {
			return
		}
	}
}

// Snapshot returns the current size figures.
func (m *BoundedMap[K, V]) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newSnapshot(m.name, len(m.entries), m.maxKeys, m.evicted)
}
