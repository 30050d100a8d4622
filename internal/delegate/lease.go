package delegate

import (
	"sync"
	"sync/atomic"

	"github.com/neighbourhoods/nh-tray/internal/domain/subscriber"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
)

// Lease controls the lifetime of one delegate. The surface that created the
// delegate must call Release when the widget goes away or is rebound.
type Lease struct {
	once     sync.Once
	released atomic.Bool
	subs     *subscriber.Manager
}

func newLease(subs *subscriber.Manager) *Lease {
	metrics.LeaseAcquired()
	return &Lease{subs: subs}
}

// Release synchronously drops every subscriber and disables the delegate.
// Later calls are no-ops. A nil lease is valid.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.released.Store(true)
		l.subs.Clear()
		metrics.LeaseReleased()
	})
}

// Released reports whether Release was called.
func (l *Lease) Released() bool {
	return l != nil && l.released.Load()
}

// Leases releases a group of leases together.
type Leases []*Lease

// Release releases every lease in order.
func (ls Leases) Release() {
	for _, l := range ls {
		l.Release()
	}
}
