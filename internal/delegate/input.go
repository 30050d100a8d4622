package delegate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/subscriber"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
)

// Input is the InputDelegate backed by a store.
type Input struct {
	backend InputBackend
	binding Binding
	subs    *subscriber.Manager
	lease   *Lease
	logger  logger.Logger

	mu     sync.Mutex
	cached *model.Assessment
}

var _ InputDelegate = (*Input)(nil)

// NewInput creates an input delegate bound to b and the lease that ends it.
func NewInput(backend InputBackend, b Binding, opts ...Option) (*Input, *Lease) {
	o := buildOptions("input-delegate", opts)
	subs := subscriber.New(o.scheduler, subscriber.WithLogger(o.logger))
	d := &Input{
		backend: backend,
		binding: b,
		subs:    subs,
		lease:   newLease(subs),
		logger: o.logger.With(
			logger.String("resource", b.ResourceEh.Short()),
			logger.String("dimension", b.DimensionEh.Short()),
		),
		cached: o.initial,
	}
	return d, d.lease
}

// Binding returns the pair the delegate acts on.
func (d *Input) Binding() Binding { return d.binding }

// GetLatestAssessmentForUser returns the cached assessment this delegate
// created, if any, otherwise the newest one by the agent in the backend.
func (d *Input) GetLatestAssessmentForUser(ctx context.Context) *model.Assessment {
	if d.lease.Released() {
		return nil
	}

	d.mu.Lock()
	if d.cached != nil {
		c := *d.cached
		d.mu.Unlock()
		metrics.RecordRead("cache")
		return &c
	}
	d.mu.Unlock()

	res, err := d.backend.GetMyAssessmentsForResources(ctx, d.binding.query())
	if d.lease.Released() {
		return nil
	}
	if err != nil {
		metrics.RecordReadError("input")
		d.logger.Warn(ctx, "could not retrieve assessments for the bound resource and dimension", logger.Error(err))
		return nil
	}
	metrics.RecordRead("backend")
	return d.binding.latest(res)
}

// Subscribe registers cb. After release it returns a no-op.
func (d *Input) Subscribe(cb subscriber.Callback) subscriber.Unsubscribe {
	if d.lease.Released() {
		return noop
	}
	return d.subs.Subscribe(cb)
}

// CreateAssessment writes value for the binding. On success the entry is
// cached and dispatched before the call returns.
func (d *Input) CreateAssessment(ctx context.Context, value model.RangeValue) (model.Record[model.Assessment], error) {
	if d.lease.Released() {
		return model.Record[model.Assessment]{}, ErrReleased
	}

	rec, err := d.backend.CreateAssessment(ctx, model.CreateAssessmentInput{
		Value:         value,
		DimensionEh:   d.binding.DimensionEh,
		ResourceEh:    d.binding.ResourceEh,
		ResourceDefEh: d.binding.ResourceDefEh,
	})
	if err != nil {
		metrics.RecordCreateError(createErrorReason(err))
		return model.Record[model.Assessment]{}, fmt.Errorf("%w: %w", ErrCreateAssessment, err)
	}
	if d.lease.Released() {
		return rec, nil
	}

	entry := rec.Entry
	d.mu.Lock()
	d.cached = &entry
	d.mu.Unlock()

	d.subs.Dispatch(&entry)
	return rec, nil
}

// InvalidateAssessment clears the cache and dispatches nil.
func (d *Input) InvalidateAssessment() {
	if d.lease.Released() {
		return
	}
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()

	d.subs.Dispatch(nil)
	d.logger.Warn(context.Background(), "invalidate only cleared the local cache; the backend keeps the assessment")
}

func createErrorReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, model.ErrOutOfRange):
		return "out_of_range"
	default:
		return "backend"
	}
}
