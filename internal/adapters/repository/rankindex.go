package repository

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
)

const backendRank = "rank"

// Treap-based, in-memory ordering of resources by one dimension's value.
//
// Ordering: value DESC, then resource hash ASC (deterministic).
// "less" means ranks earlier, so in-order traversal runs from the biggest
// value to the smallest.

// RankEntry is one ranked resource. Rank uses competition ranking: equal
// values share a rank and the next distinct value skips ahead.
type RankEntry struct {
	Rank       int             `json:"rank"`
	ResourceEh model.EntryHash `json:"resource_eh"`
	Value      float64         `json:"value"`
}

type rankNode struct {
	resource model.EntryHash
	key      string
	value    float64
	prio     uint64
	left     *rankNode
	right    *rankNode
	size     int
}

func nsize(n *rankNode) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *rankNode) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aValue, aKey) appears before (bValue, bKey).
func less(aValue float64, aKey string, bValue float64, bKey string) bool {
	if aValue != bValue {
		return aValue > bValue
	}
	return aKey < bKey
}

func rotateRight(y *rankNode) *rankNode {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *rankNode) *rankNode {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n, nn *rankNode) *rankNode {
	if n == nil {
		return nn
	}
	if less(nn.value, nn.key, n.value, n.key) {
		n.left = insert(n.left, nn)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, nn)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *rankNode, key string, value float64) *rankNode {
	if n == nil {
		return nil
	}
	if value == n.value && key == n.key {
		// Rotate the higher priority child up until n is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, key, value)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, key, value)
		}
	} else if less(value, key, n.value, n.key) {
		n.left = deleteNode(n.left, key, value)
	} else {
		n.right = deleteNode(n.right, key, value)
	}
	fix(n)
	return n
}

// countAbove returns how many entries have a value strictly above v.
func countAbove(n *rankNode, v float64) int {
	if n == nil {
		return 0
	}
	if n.value > v {
		return nsize(n.left) + 1 + countAbove(n.right, v)
	}
	return countAbove(n.left, v)
}

// walk visits entries in rank order, or reversed, until fn returns false.
func walk(n *rankNode, reverse bool, fn func(*rankNode) bool) bool {
	if n == nil {
		return true
	}
	first, second := n.left, n.right
	if reverse {
		first, second = second, first
	}
	return walk(first, reverse, fn) && fn(n) && walk(second, reverse, fn)
}

// RankIndex orders resources by their current value along one dimension.
// It holds one value per resource; Set replaces it.
type RankIndex struct {
	mu   sync.RWMutex
	root *rankNode
	byID map[model.EntryHash]*rankNode
}

// NewRankIndex creates an empty index.
func NewRankIndex() *RankIndex {
	return &RankIndex{byID: make(map[model.EntryHash]*rankNode)}
}

// Set records value as the current value of resource in O(log n) expected
// time. It reports whether anything changed.
func (x *RankIndex) Set(resource model.EntryHash, value float64) bool {
	defer observe(backendRank, "set", time.Now())

	x.mu.Lock()
	defer x.mu.Unlock()
	if old, ok := x.byID[resource]; ok {
		if old.value == value {
			return false
		}
		x.root = deleteNode(x.root, old.key, old.value)
	}
	n := &rankNode{resource: resource, key: resource.String(), value: value, prio: rand.Uint64(), size: 1}
	x.byID[resource] = n
	x.root = insert(x.root, n)
	return true
}

// Remove drops resource from the index.
func (x *RankIndex) Remove(resource model.EntryHash) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if old, ok := x.byID[resource]; ok {
		x.root = deleteNode(x.root, old.key, old.value)
		delete(x.byID, resource)
	}
}

// Value returns the current value of resource.
func (x *RankIndex) Value(resource model.EntryHash) (float64, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, ok := x.byID[resource]
	if !ok {
		return 0, false
	}
	return n.value, true
}

// Rank returns the rank and value of resource in O(log n) expected time.
func (x *RankIndex) Rank(_ context.Context, resource model.EntryHash) (RankEntry, error) {
	defer observe(backendRank, "rank", time.Now())

	x.mu.RLock()
	defer x.mu.RUnlock()
	n, ok := x.byID[resource]
	if !ok {
		metrics.RecordStoreError(backendRank, "rank")
		return RankEntry{}, ErrNotFound
	}
	return RankEntry{Rank: countAbove(x.root, n.value) + 1, ResourceEh: resource, Value: n.value}, nil
}

// TopN returns up to n entries from the biggest value down.
func (x *RankIndex) TopN(_ context.Context, n int) ([]RankEntry, error) {
	defer observe(backendRank, "top_n", time.Now())
	if n < 1 {
		metrics.RecordStoreError(backendRank, "top_n")
		return nil, ErrInvalidLimit
	}

	out := make([]RankEntry, 0, min(n, x.Len()))
	x.Walk(false, func(e RankEntry) bool {
		out = append(out, e)
		return len(out) < n
	})
	return out, nil
}

// Walk visits entries from the biggest value down, or from the smallest up
// when reverse is set, until fn returns false. Ranks are always counted
// from the biggest value. fn must not call back into the index.
func (x *RankIndex) Walk(reverse bool, fn func(RankEntry) bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var (
		pos      int
		rank     int
		lastSeen *float64
	)
	walk(x.root, reverse, func(n *rankNode) bool {
		if reverse {
			rank = countAbove(x.root, n.value) + 1
		} else {
			pos++
			if lastSeen == nil || *lastSeen != n.value {
				rank = pos
			}
		}
		v := n.value
		lastSeen = &v
		return fn(RankEntry{Rank: rank, ResourceEh: n.resource, Value: n.value})
	})
}

// Len returns the number of indexed resources.
func (x *RankIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}
