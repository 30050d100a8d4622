package delegate

import (
	"context"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/subscriber"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
)

// Output is the OutputDelegate backed by a store.
type Output struct {
	backend OutputBackend
	binding Binding
	subs    *subscriber.Manager
	lease   *Lease
	logger  logger.Logger
}

var _ OutputDelegate = (*Output)(nil)

// NewOutput creates an output delegate bound to b and the lease that ends it.
func NewOutput(backend OutputBackend, b Binding, opts ...Option) (*Output, *Lease) {
	o := buildOptions("output-delegate", opts)
	subs := subscriber.New(o.scheduler, subscriber.WithLogger(o.logger))
	d := &Output{
		backend: backend,
		binding: b,
		subs:    subs,
		lease:   newLease(subs),
		logger: o.logger.With(
			logger.String("resource", b.ResourceEh.Short()),
			logger.String("dimension", b.DimensionEh.Short()),
		),
	}
	return d, d.lease
}

// Binding returns the pair the delegate acts on.
func (d *Output) Binding() Binding { return d.binding }

// GetLatestAssessment returns the newest assessment for the binding by any
// author. There is no local cache.
func (d *Output) GetLatestAssessment(ctx context.Context) *model.Assessment {
	if d.lease.Released() {
		return nil
	}
	res, err := d.backend.GetAssessmentsForResources(ctx, d.binding.query())
	if d.lease.Released() {
		return nil
	}
	if err != nil {
		metrics.RecordReadError("output")
		d.logger.Warn(ctx, "could not retrieve assessments for the bound resource and dimension", logger.Error(err))
		return nil
	}
	metrics.RecordRead("backend")
	return d.binding.latest(res)
}

// Subscribe registers cb. After release it returns a no-op.
func (d *Output) Subscribe(cb subscriber.Callback) subscriber.Unsubscribe {
	if d.lease.Released() {
		return noop
	}
	return d.subs.Subscribe(cb)
}

// Notify dispatches a to subscribers. The owner calls it when a new computed
// value for the binding is known.
func (d *Output) Notify(a *model.Assessment) {
	if d.lease.Released() {
		return
	}
	d.subs.Dispatch(a)
}

// StaticOutput is an OutputDelegate over a fixed value, for surfaces that
// already hold the latest output assessment.
type StaticOutput struct {
	assessment *model.Assessment
}

var _ OutputDelegate = (*StaticOutput)(nil)

// NewStaticOutput returns a delegate that always reports a. a may be nil.
func NewStaticOutput(a *model.Assessment) *StaticOutput {
	if a == nil {
		return &StaticOutput{}
	}
	c := *a
	return &StaticOutput{assessment: &c}
}

// GetLatestAssessment returns a copy of the fixed value.
func (s *StaticOutput) GetLatestAssessment(context.Context) *model.Assessment {
	if s.assessment == nil {
		return nil
	}
	c := *s.assessment
	return &c
}

// Subscribe never calls cb.
func (s *StaticOutput) Subscribe(subscriber.Callback) subscriber.Unsubscribe {
	return noop
}
