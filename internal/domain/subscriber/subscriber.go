// Package subscriber implements the ordered callback list that delegates use
// to notify widgets of new assessments.
package subscriber

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
)

// Callback receives a dispatched assessment. A nil assessment means the
// value was invalidated.
type Callback func(a *model.Assessment)

// Unsubscribe removes the registration it was returned for.
type Unsubscribe func()

// Scheduler defers a task. Schedule must not run the task on the calling
// goroutine unless the implementation is explicitly synchronous.
type Scheduler interface {
	Schedule(task func()) bool
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(task func()) bool

// Schedule calls f(task).
func (f SchedulerFunc) Schedule(task func()) bool { return f(task) }

// Inline runs tasks synchronously, recovering panics. Intended for tests.
var Inline Scheduler = SchedulerFunc(func(task func()) bool {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordCallbackPanic()
		}
	}()
	task()
	return true
})

type registration struct {
	cb     Callback
	active atomic.Bool
}

// Manager holds an ordered list of callbacks. Registering the same function
// twice creates two independent entries.
type Manager struct {
	mu   sync.Mutex
	subs []*registration

	scheduler Scheduler
	logger    logger.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for dropped notifications.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Manager that defers callbacks on s. A nil s means Inline.
func New(s Scheduler, opts ...Option) *Manager {
	if s == nil {
		s = Inline
	}
	m := &Manager{
		scheduler: s,
		logger:    logger.OrGlobal(nil).Named("subscriber"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe appends cb and returns a function removing this registration.
// Calling the returned function more than once is a no-op.
func (m *Manager) Subscribe(cb Callback) Unsubscribe {
	if cb == nil {
		return func() {}
	}
	r := &registration{cb: cb}
	r.active.Store(true)

	m.mu.Lock()
	m.subs = append(m.subs, r)
	m.mu.Unlock()

	return func() { m.remove(r) }
}

func (m *Manager) remove(r *registration) {
	if !r.active.CompareAndSwap(true, false) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s == r {
			m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
			return
		}
	}
}

// Dispatch schedules every current callback with a, in registration order,
// and returns without waiting for them. A callback removed before its task
// runs is skipped.
func (m *Manager) Dispatch(a *model.Assessment) {
	m.mu.Lock()
	snapshot := make([]*registration, len(m.subs))
	copy(snapshot, m.subs)
	m.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	metrics.RecordDispatch()

	for _, r := range snapshot {
		ok := m.scheduler.Schedule(func() {
			if !r.active.Load() {
				metrics.RecordCallbackDropped()
				return
			}
			r.cb(a)
		})
		if !ok {
			m.logger.Warn(context.Background(), "notification dropped: scheduler closed")
		}
	}
}

// Clear synchronously removes every registration. Tasks already scheduled
// for them are skipped when they run.
func (m *Manager) Clear() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	for _, r := range subs {
		r.active.Store(false)
	}
}

// Len returns the number of registrations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
