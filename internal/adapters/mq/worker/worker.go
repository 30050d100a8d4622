// Package worker runs deferred tasks off the queue in a panic-isolated loop.
//
// A pool with a single worker behaves like an event loop: tasks run one at a
// time in the order they were scheduled, never on the scheduling goroutine.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neighbourhoods/nh-tray/internal/adapters/mq/queue"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
)

// Default pool configuration constants.
const (
	defaultWorkerCount  = 1
	poolShutdownTimeout = 30 * time.Second
)

// Task is what workers read off the queue.
type Task = queue.Task

// Queue defines how workers receive tasks and how the pool submits them.
type Queue interface {
	Enqueue(ctx context.Context, t Task) bool
	Dequeue(ctx context.Context) <-chan Task
	Len(ctx context.Context) int
}

// Worker runs tasks until its queue is drained or ctx is canceled.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown waits for the worker to finish its current task and exit.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for running tasks.
type InMemoryWorker struct {
	queue Queue
	name  string

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:  queue,
		name:   "worker",
		done:   make(chan struct{}),
		logger: logger.OrGlobal(nil).Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop. It returns once the queue is closed and
// drained, or ctx is canceled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for task := range w.queue.Dequeue(ctx) {
		w.runTask(ctx, task)
	}
}

// Shutdown waits for Run to return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// runTask invokes one task. A panic is logged and counted; it never stops
// the loop and the task is not retried.
func (w *InMemoryWorker) runTask(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordCallbackPanic()
			w.logger.Error(ctx, "task panicked",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
		}
	}()
	task()
	metrics.RecordCallback()
}

// Pool manages workers sharing one queue and implements the scheduler used
// by subscriber dispatch.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool

	logger logger.Logger
}

// NewPool creates a new worker pool. With more than one worker, tasks may
// run concurrently and out of order.
func NewPool(workerCount int, q Queue, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.OrGlobal(nil).Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, workerOpts...)
	}

	return pool
}

// Start starts all workers in the pool. Calling it again is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.started.Store(true)
		for _, worker := range p.workers {
			go worker.Run(ctx)
		}
		p.logger.Info(ctx, "task loop started", logger.Int("workers", len(p.workers)))
	})
}

// Schedule enqueues task for later execution. It never runs task inline.
// Returns false when the task was dropped.
func (p *Pool) Schedule(task func()) bool {
	if !p.queue.Enqueue(context.Background(), task) {
		metrics.RecordCallbackDropped()
		return false
	}
	return true
}

// Len returns the number of tasks waiting to run.
func (p *Pool) Len(ctx context.Context) int {
	return p.queue.Len(ctx)
}

// Flush blocks until every task scheduled before the call has run. It only
// gives that guarantee for a single-worker pool.
func (p *Pool) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !p.queue.Enqueue(ctx, func() { close(done) }) {
		return queue.ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes the queue, lets the workers drain it, and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if cerr := closer.Close(); cerr != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(cerr))
			}
		}

		if !p.started.Load() {
			return
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
		defer cancel()

		for i, worker := range p.workers {
			if werr := worker.Shutdown(shutdownCtx); werr != nil {
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				err = werr
			}
		}
	})
	return err
}
