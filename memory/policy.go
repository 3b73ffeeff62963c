package memory

import (
	"slices"
	"sort"
)

// EvictionPolicy removes n items from an ordered slice (oldest first) and
// returns what remains, still in insertion order. n is always in
// [1, len(items)].
type EvictionPolicy[T any] interface {
	Evict(items []T, n int) []T
}

// FIFO evicts the oldest items.
type FIFO[T any] struct{}

// Evict drops the first n items.
func (FIFO[T]) Evict(items []T, n int) []T {
	return slices.Delete(items, 0, n)
}

// Priority evicts the items with the lowest score. Equal scores fall back to
// age, oldest first.
type Priority[T any] struct {
	Score func(item T) float64
}

// Evict drops the n lowest scoring items.
func (p Priority[T]) Evict(items []T, n int) []T {
	if p.Score == nil {
		return FIFO[T]{}.Evict(items, n)
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return p.Score(items[idx[a]]) < p.Score(items[idx[b]])
	})

	drop := make([]bool, len(items))
	for _, i := range idx[:n] {
		drop[i] = true
	}
	kept := items[:0]
	for i, item := range items {
		if !drop[i] {
			kept = append(kept, item)
		}
	}
	clear(items[len(kept):])
	return kept
}
