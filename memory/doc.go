// Package memory keeps accumulated state bounded.
//
// Collection is an ordered list with a hard capacity that drops a batch of
// items (oldest first by default) once it crosses its cleanup threshold.
// BoundedMap is the keyed variant for registries. Sentinel names them all,
// creates collections on demand and reports their utilisation.
//
// Nothing in this package blocks or fails on a full structure: growth is
// traded for eviction, and evictions are counted.
package memory
