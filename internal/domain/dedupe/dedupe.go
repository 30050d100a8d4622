// Package dedupe tracks idempotency keys so a retried request replays the
// first result instead of writing twice.
package dedupe

import (
	"container/list"
	"sync"
)

// State is the outcome of Begin.
type State int

// Begin outcomes.
const (
	// Fresh means the caller owns the key and must Complete or Abort it.
	Fresh State = iota
	// Done means the key completed earlier; the stored result is returned.
	Done
	// InFlight means another caller owns the key right now.
	InFlight
	// Conflict means the key was used for a different request.
	Conflict
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Done:
		return "done"
	case InFlight:
		return "in_flight"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}

type entry[T any] struct {
	key         string
	fingerprint string
	done        bool
	result      T
}

// Cache remembers the result of every completed key, up to a bounded
// number of keys. When full, the oldest completed key is evicted first;
// keys in flight are never evicted.
type Cache[T any] struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // oldest at the front
	byKey   map[string]*list.Element
}

// New creates a cache. The default bound is 10000 keys.
func New[T any](opts ...Option) *Cache[T] {
	s := settings{maxSize: 10_000}
	for _, opt := range opts {
		opt(&s)
	}
	return &Cache[T]{
		maxSize: s.maxSize,
		order:   list.New(),
		byKey:   make(map[string]*list.Element),
	}
}

// Begin claims key for a request identified by fingerprint. For Done the
// stored result is returned.
func (c *Cache[T]) Begin(key, fingerprint string) (T, State) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[key]; ok {
		e := el.Value.(*entry[T])
		switch {
		case e.fingerprint != fingerprint:
			return zero, Conflict
		case !e.done:
			return zero, InFlight
		default:
			return e.result, Done
		}
	}

	if c.maxSize > 0 && c.order.Len() >= c.maxSize {
		c.evictLocked()
	}
	c.byKey[key] = c.order.PushBack(&entry[T]{key: key, fingerprint: fingerprint})
	return zero, Fresh
}

// Complete stores the result of a key claimed with Begin.
func (c *Cache[T]) Complete(key string, result T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byKey[key]; ok {
		e := el.Value.(*entry[T])
		e.done, e.result = true, result
	}
}

// Abort releases a key claimed with Begin so the request can be retried.
func (c *Cache[T]) Abort(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byKey[key]; ok && !el.Value.(*entry[T]).done {
		c.order.Remove(el)
		delete(c.byKey, key)
	}
}

// evictLocked drops the oldest completed key. With every key in flight
// nothing is dropped and the cache grows past its bound.
func (c *Cache[T]) evictLocked() {
	for el := c.order.Front(); el != nil; el = el.Next() {
		if e := el.Value.(*entry[T]); e.done {
			c.order.Remove(el)
			delete(c.byKey, e.key)
			return
		}
	}
}

// Len returns the number of tracked keys.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
