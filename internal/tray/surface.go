package tray

import (
	"context"
	"sync"

	"github.com/neighbourhoods/nh-tray/internal/delegate"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/subscriber"
	"github.com/neighbourhoods/nh-tray/internal/registry"
	"github.com/neighbourhoods/nh-tray/internal/widget"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
)

// Backend is the store surface a live surface reads from and writes to.
type Backend interface {
	delegate.InputBackend
	delegate.OutputBackend
}

// View is the widget pair a surface currently shows.
type View struct {
	Resolution registry.Resolution
	Input      widget.Assess
	Output     widget.Display

	leases delegate.Leases
	unsub  subscriber.Unsubscribe
}

func (v *View) close() {
	if v == nil {
		return
	}
	v.unsub()
	v.Input.Close()
	v.Output.Close()
	v.leases.Release()
}

// Surface is the live widget pair for one resource. It follows the active
// method of the resource definition and rebinds when it changes.
type Surface struct {
	resolver      *registry.Resolver
	backend       Backend
	resourceEh    model.EntryHash
	resourceDefEh model.EntryHash
	scheduler     subscriber.Scheduler
	logger        logger.Logger
	ctx           context.Context

	mu          sync.Mutex
	view        *View
	err         error
	closed      bool
	cancelWatch func()
	onRebind    func()
}

// SurfaceOption configures a Surface.
type SurfaceOption func(*Surface)

// WithScheduler sets where delegate callbacks run.
func WithScheduler(s subscriber.Scheduler) SurfaceOption {
	return func(sf *Surface) { sf.scheduler = s }
}

// WithLogger sets the surface logger.
func WithLogger(l logger.Logger) SurfaceOption {
	return func(sf *Surface) {
		if l != nil {
			sf.logger = l
		}
	}
}

// WithOnRebind sets a hook called after every rebind attempt.
func WithOnRebind(fn func()) SurfaceOption {
	return func(sf *Surface) { sf.onRebind = fn }
}

// Open resolves the widgets for resourceDefEh's active method and binds
// them to resourceEh. Resolution errors are returned as is; no fallback
// widget is shown.
func Open(ctx context.Context, resolver *registry.Resolver, active *registry.ActiveMethods, backend Backend, resourceEh, resourceDefEh model.EntryHash, opts ...SurfaceOption) (*Surface, error) {
	s := &Surface{
		resolver:      resolver,
		backend:       backend,
		resourceEh:    resourceEh,
		resourceDefEh: resourceDefEh,
		scheduler:     subscriber.Inline,
		logger:        logger.OrGlobal(nil).Named("surface"),
		ctx:           context.WithoutCancel(ctx),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.String("resource", resourceEh.Short()))

	s.mu.Lock()
	defer s.mu.Unlock()

	// Watch before resolving so a change in between is not missed.
	s.cancelWatch = active.Watch(resourceDefEh, func(model.EntryHash) { s.rebind() })

	res, err := resolver.Resolve(resourceDefEh)
	if err != nil {
		s.cancelWatch()
		return nil, err
	}
	s.view = s.bind(ctx, res)
	return s, nil
}

// bind builds delegates and widgets for res. Callers hold s.mu.
func (s *Surface) bind(ctx context.Context, res registry.Resolution) *View {
	dopts := []delegate.Option{delegate.WithScheduler(s.scheduler), delegate.WithLogger(s.logger)}

	in, inLease := delegate.NewInput(s.backend, delegate.Binding{
		ResourceEh:    s.resourceEh,
		ResourceDefEh: s.resourceDefEh,
		DimensionEh:   res.Input.DimensionEh,
	}, dopts...)
	out, outLease := delegate.NewOutput(s.backend, delegate.Binding{
		ResourceEh:  s.resourceEh,
		DimensionEh: res.Output.DimensionEh,
	}, dopts...)

	// A new input value may change the computed output.
	unsub := in.Subscribe(func(a *model.Assessment) {
		if a == nil {
			return
		}
		out.Notify(out.GetLatestAssessment(s.ctx))
	})

	v := &View{
		Resolution: res,
		Input:      res.Input.New(),
		Output:     res.Output.New(),
		leases:     delegate.Leases{inLease, outLease},
		unsub:      unsub,
	}
	v.Input.Bind(ctx, widget.Context{
		ResourceEh:    s.resourceEh,
		ResourceDefEh: s.resourceDefEh,
		DimensionEh:   res.Input.DimensionEh,
		MethodEh:      res.MethodEh,
	}, in)
	v.Output.Bind(ctx, widget.Context{
		ResourceEh:    s.resourceEh,
		ResourceDefEh: s.resourceDefEh,
		DimensionEh:   res.Output.DimensionEh,
	}, out)
	return v
}

// rebind re-resolves against the current active method. Old leases are
// released before new delegates are created. On failure the surface shows
// nothing and Err reports why.
func (s *Surface) rebind() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	res, err := s.resolver.Resolve(s.resourceDefEh)
	switch {
	case err != nil:
		s.view.close()
		s.view = nil
		s.err = err
		s.logger.Warn(s.ctx, "rebind failed", logger.Error(err))
	case s.view != nil && s.view.Resolution.MethodEh == res.MethodEh:
	default:
		s.view.close()
		s.view = s.bind(s.ctx, res)
		s.err = nil
		metrics.RecordRebind()
		s.logger.Debug(s.ctx, "rebound", logger.String("method", res.MethodEh.Short()))
	}
	hook := s.onRebind
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// View returns the current widget pair, or nil after a failed rebind or
// Close.
func (s *Surface) View() *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Err returns the error of the last failed rebind.
func (s *Surface) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.err
}

// Close stops following the active method and releases every lease.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancelWatch()
	s.view.close()
	s.view = nil
}
