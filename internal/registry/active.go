package registry

import (
	"fmt"
	"sync"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

// ActiveMethods records which method is active for each resource
// definition.
type ActiveMethods struct {
	snap *Snapshot[map[model.EntryHash]model.EntryHash]
}

// NewActiveMethods returns an empty table.
func NewActiveMethods() *ActiveMethods {
	return &ActiveMethods{snap: NewSnapshot(map[model.EntryHash]model.EntryHash{})}
}

// Set makes methodEh active for resourceDefEh. Watchers of resourceDefEh are
// notified synchronously when the method actually changes.
func (a *ActiveMethods) Set(resourceDefEh, methodEh model.EntryHash) {
	a.snap.Update(func(cur map[model.EntryHash]model.EntryHash) map[model.EntryHash]model.EntryHash {
		next := cloneMap(cur)
		next[resourceDefEh] = methodEh
		return next
	})
}

// Get returns the active method for resourceDefEh.
func (a *ActiveMethods) Get(resourceDefEh model.EntryHash) (model.EntryHash, error) {
	m, ok := a.snap.Get()[resourceDefEh]
	if !ok {
		return model.EntryHash{}, fmt.Errorf("%w: %s", ErrNoActiveMethod, resourceDefEh)
	}
	return m, nil
}

// Watch calls fn with the new method each time the active method of
// resourceDefEh changes.
func (a *ActiveMethods) Watch(resourceDefEh model.EntryHash, fn func(methodEh model.EntryHash)) (cancel func()) {
	var mu sync.Mutex
	last := a.snap.Get()[resourceDefEh]
	return a.snap.Watch(func(cur map[model.EntryHash]model.EntryHash) {
		m, ok := cur[resourceDefEh]
		mu.Lock()
		if !ok || m == last {
			mu.Unlock()
			return
		}
		last = m
		mu.Unlock()
		fn(m)
	})
}

// All returns the current table. The map must not be modified.
func (a *ActiveMethods) All() map[model.EntryHash]model.EntryHash {
	return a.snap.Get()
}
