// Package registry holds the in-memory lookup tables that map resource
// definitions to methods, methods to dimensions, and dimensions to widget
// kinds, and resolves widget constructors from them.
package registry

import (
	"sort"
	"sync"
)

// Snapshot is a value replaced wholesale on every write. Readers get the
// current value without blocking writers for long; values must be treated
// as immutable once stored.
type Snapshot[T any] struct {
	mu       sync.RWMutex
	value    T
	next     uint64
	watchers map[uint64]func(T)
}

// NewSnapshot returns a snapshot holding initial.
func NewSnapshot[T any](initial T) *Snapshot[T] {
	return &Snapshot[T]{value: initial, watchers: make(map[uint64]func(T))}
}

// Get returns the current value.
func (s *Snapshot[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set stores v and notifies watchers on the calling goroutine.
func (s *Snapshot[T]) Set(v T) {
	s.Update(func(T) T { return v })
}

// Update replaces the value with fn(current). fn must not mutate current.
func (s *Snapshot[T]) Update(fn func(T) T) {
	s.mu.Lock()
	s.value = fn(s.value)
	v := s.value
	watchers := s.watchersLocked()
	s.mu.Unlock()

	for _, w := range watchers {
		w(v)
	}
}

// watchersLocked returns watchers in registration order.
func (s *Snapshot[T]) watchersLocked() []func(T) {
	ids := make([]uint64, 0, len(s.watchers))
	for id := range s.watchers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(T), len(ids))
	for i, id := range ids {
		out[i] = s.watchers[id]
	}
	return out
}

// Watch calls fn with every new value until the returned cancel is called.
func (s *Snapshot[T]) Watch(fn func(T)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// cloneMap copies m so a snapshot value is never mutated in place.
func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
