// Package queue holds deferred tasks until the task loop runs them.
//
// The queue is an unbounded FIFO by default: dispatch must never block the
// code path that schedules a notification.
package queue

import (
	"context"
	"sync"

	"github.com/neighbourhoods/nh-tray/pkg/metrics"
)

// Task is one unit of deferred work, typically a subscriber callback.
type Task func()

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue appends a task. Returns false if the queue is closed, full, or
	// ctx is already done.
	Enqueue(ctx context.Context, t Task) bool

	// Dequeue returns a channel that yields tasks in FIFO order. The channel
	// is closed once the queue is closed and drained, or ctx is done.
	Dequeue(ctx context.Context) <-chan Task

	// Len returns the current number of queued tasks.
	Len(ctx context.Context) int

	// Close stops accepting tasks. Already queued tasks are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue with a mutex-guarded slice.
type InMemoryQueue struct {
	mu       sync.Mutex
	tasks    []Task
	capacity int
	closed   bool
	ready    chan struct{}
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		ready: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	metrics.UpdateLoopQueueDepth(0)
	return q
}

// Enqueue appends a task.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) bool {
	if t == nil || ctx.Err() != nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.capacity > 0 && len(q.tasks) >= q.capacity {
		return false
	}
	q.tasks = append(q.tasks, t)
	metrics.UpdateLoopQueueDepth(len(q.tasks))

	// Signal under the lock so Close cannot close ready between the check
	// above and the send.
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// pop removes the head task. ok is false when the queue is empty.
func (q *InMemoryQueue) pop() (t Task, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false, q.closed
	}
	t = q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	metrics.UpdateLoopQueueDepth(len(q.tasks))
	return t, true, q.closed
}

// unpop puts t back at the head after a consumer gave up on delivering it.
func (q *InMemoryQueue) unpop(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = append([]Task{t}, q.tasks...)
	metrics.UpdateLoopQueueDepth(len(q.tasks))
	if q.closed {
		return
	}
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Dequeue returns a channel that receives tasks as they become available.
// A task taken off the queue but not received before ctx is done goes back
// to the head.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Task {
	out := make(chan Task)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			t, ok, closed := q.pop()
			if !ok {
				if closed {
					return
				}
				select {
				case <-q.ready:
					continue
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- t:
			case <-ctx.Done():
				q.unpop(t)
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued tasks.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops accepting tasks and wakes every consumer.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ready)
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
