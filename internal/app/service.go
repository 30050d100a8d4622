// Package service wires the store, the task loop, the registries and the
// delegate factories, and implements the dependencies of the HTTP API and
// the terminal tray.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/neighbourhoods/nh-tray/internal/adapters/mq/queue"
	workerpool "github.com/neighbourhoods/nh-tray/internal/adapters/mq/worker"
	"github.com/neighbourhoods/nh-tray/internal/adapters/repository"
	"github.com/neighbourhoods/nh-tray/internal/delegate"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/types"
	"github.com/neighbourhoods/nh-tray/internal/registry"
	"github.com/neighbourhoods/nh-tray/internal/tray"
	"github.com/neighbourhoods/nh-tray/internal/widget"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
)

const stopTimeout = 10 * time.Second

// Service owns every long-lived component.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	backend  *computingBackend
	registry *registry.Registry
	catalog  *widget.Catalog
	queue    *queue.InMemoryQueue
	pool     *workerpool.Pool

	workerCount int
	agentSeed   string
	sqlitePath  string

	dimensions   map[string]model.EntryHash
	methods      map[string]model.EntryHash
	resourceDefs map[string]model.EntryHash
	trays        map[string]tray.Config
	defaultTrays map[model.EntryHash]string
	contexts     map[string]model.CulturalContext

	started bool
	logger  logger.Logger
}

// New constructs a Service. Registries exist right away; the store and the
// task loop are created by Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  1,
		agentSeed:    "local",
		dimensions:   make(map[string]model.EntryHash),
		methods:      make(map[string]model.EntryHash),
		resourceDefs: make(map[string]model.EntryHash),
		trays:        make(map[string]tray.Config),
		defaultTrays: make(map[model.EntryHash]string),
		contexts:     make(map[string]model.CulturalContext),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrGlobal(s.logger).Named("service")
	s.registry = registry.New(s.catalog)
	s.catalog = s.registry.Catalog
	return s
}

// Start opens the store, reloads stored methods into the registry and
// starts the task loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting tray service...")

	agent := model.AgentKeyFromSeed(s.agentSeed)
	if s.store == nil {
		storeOpts := []repository.Option{repository.WithAgent(agent), repository.WithLogger(s.logger)}
		if s.sqlitePath != "" {
			store, err := repository.OpenSQLite(s.sqlitePath, storeOpts...)
			if err != nil {
				return err
			}
			s.store = store
			s.logger.Info(ctx, "using sqlite store", logger.String("path", s.sqlitePath))
		} else {
			s.store = repository.NewMemoryStore(storeOpts...)
			s.logger.Info(ctx, "using memory store")
		}
	}

	s.backend = newComputingBackend(s.store, s.registry.Active, s.logger.Named("compute"))

	stored, err := s.store.Methods(ctx)
	if err != nil {
		return err
	}
	for _, rec := range stored {
		if err := s.registry.Methods.Register(rec.EntryHash, rec.Entry); err != nil {
			s.logger.Warn(ctx, "skipping stored method", logger.String("method", rec.Entry.Name), logger.Error(err))
			continue
		}
		if err := s.backend.track(ctx, rec.Entry.OutputDimension); err != nil {
			return err
		}
	}

	s.queue = queue.NewInMemoryQueue()
	s.pool = workerpool.NewPool(s.workerCount, s.queue, workerpool.WithLogger(s.logger))
	// The loop outlives the start request.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "tray service started",
		logger.Int("workers", s.workerCount),
		logger.String("agent", s.store.Agent().Short()),
		logger.Int("stored_methods", len(stored)),
	)
	return nil
}

// Stop drains the task loop and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping tray service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "task loop did not drain", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "tray service stopped")
}

// deps returns the started components or ErrNotStarted.
func (s *Service) deps() (*computingBackend, *workerpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.backend, s.pool, nil
}

// Registry exposes the registries for seeding and inspection.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Scheduler returns the task loop subscriber callbacks run on.
func (s *Service) Scheduler() (*workerpool.Pool, error) {
	_, pool, err := s.deps()
	return pool, err
}

// InputDelegate creates an input delegate bound to b. The caller owns the
// lease.
func (s *Service) InputDelegate(b delegate.Binding) (*delegate.Input, *delegate.Lease, error) {
	backend, pool, err := s.deps()
	if err != nil {
		return nil, nil, err
	}
	in, lease := delegate.NewInput(backend, b, delegate.WithScheduler(pool), delegate.WithLogger(s.logger))
	return in, lease, nil
}

// OutputDelegate creates an output delegate bound to b. The caller owns
// the lease.
func (s *Service) OutputDelegate(b delegate.Binding) (*delegate.Output, *delegate.Lease, error) {
	backend, pool, err := s.deps()
	if err != nil {
		return nil, nil, err
	}
	out, lease := delegate.NewOutput(backend, b, delegate.WithScheduler(pool), delegate.WithLogger(s.logger))
	return out, lease, nil
}

// CreateAssessment records value for b through a short-lived input
// delegate.
func (s *Service) CreateAssessment(ctx context.Context, b delegate.Binding, value model.RangeValue) (model.Record[model.Assessment], error) {
	in, lease, err := s.InputDelegate(b)
	if err != nil {
		return model.Record[model.Assessment]{}, err
	}
	defer lease.Release()
	return in.CreateAssessment(ctx, value)
}

// LatestAssessment returns the newest assessment for b, by the local agent
// when mine is set, otherwise by anyone. Nil means nothing was found or the
// read failed.
func (s *Service) LatestAssessment(ctx context.Context, b delegate.Binding, mine bool) (*model.Assessment, error) {
	if mine {
		in, lease, err := s.InputDelegate(b)
		if err != nil {
			return nil, err
		}
		defer lease.Release()
		return in.GetLatestAssessmentForUser(ctx), nil
	}
	out, lease, err := s.OutputDelegate(b)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return out.GetLatestAssessment(ctx), nil
}

// SetActiveMethod makes methodEh active for resourceDefEh. Open surfaces of
// that resource definition rebind.
func (s *Service) SetActiveMethod(ctx context.Context, resourceDefEh, methodEh model.EntryHash) error {
	if _, err := s.registry.Methods.Dimensions(methodEh); err != nil {
		return fmt.Errorf("%w: %w", registry.ErrResolution, err)
	}
	s.registry.Active.Set(resourceDefEh, methodEh)
	s.logger.Info(ctx, "active method changed",
		logger.String("resource_def", resourceDefEh.Short()),
		logger.String("method", methodEh.Short()),
	)
	return nil
}

// OpenSurface opens a live widget surface for a resource. Close it when
// done.
func (s *Service) OpenSurface(ctx context.Context, resourceEh, resourceDefEh model.EntryHash, opts ...tray.SurfaceOption) (*tray.Surface, error) {
	backend, pool, err := s.deps()
	if err != nil {
		return nil, err
	}
	opts = append([]tray.SurfaceOption{tray.WithScheduler(pool), tray.WithLogger(s.logger)}, opts...)
	return tray.Open(ctx, s.registry.Resolver(), s.registry.Active, backend, resourceEh, resourceDefEh, opts...)
}

// DefaultTrayName is rendered for resource definitions without a default
// tray of their own.
const DefaultTrayName = "default"

// SetDefaultTray makes name the tray rendered for resourceDefEh when no
// tray is named.
func (s *Service) SetDefaultTray(_ context.Context, resourceDefEh model.EntryHash, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trays[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTray, name)
	}
	s.defaultTrays[resourceDefEh] = name
	return nil
}

// DefaultTray returns the tray rendered for resourceDefEh when no tray is
// named.
func (s *Service) DefaultTray(resourceDefEh model.EntryHash) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultTrayLocked(resourceDefEh)
}

func (s *Service) defaultTrayLocked(resourceDefEh model.EntryHash) string {
	if name, ok := s.defaultTrays[resourceDefEh]; ok {
		return name
	}
	return DefaultTrayName
}

// RenderTray renders the named tray for a resource and returns its view.
// An empty name means the default tray of the resource definition. Output
// widgets show the latest output assessment by any author.
func (s *Service) RenderTray(ctx context.Context, name string, resourceEh, resourceDefEh model.EntryHash) (types.TrayView, error) {
	backend, pool, err := s.deps()
	if err != nil {
		return types.TrayView{}, err
	}
	s.mu.RLock()
	if name == "" {
		name = s.defaultTrayLocked(resourceDefEh)
	}
	cfg, ok := s.trays[name]
	s.mu.RUnlock()
	if !ok {
		return types.TrayView{}, fmt.Errorf("%w: %q", ErrUnknownTray, name)
	}

	byResource, err := backend.GetAssessmentsForResources(ctx, model.Query{
		ResourceEhs:  []model.EntryHash{resourceEh},
		DimensionEhs: cfg.OutputDimensions(),
	})
	if err != nil {
		return types.TrayView{}, err
	}
	outputs := make(map[model.EntryHash]*model.Assessment, len(cfg.Slots))
	for _, dim := range cfg.OutputDimensions() {
		if a := model.Latest(byResource[resourceEh], model.OnDimension(dim)); a != nil {
			outputs[dim] = a
		}
	}

	rendered, err := tray.Render(ctx, cfg, tray.Binding{ResourceEh: resourceEh, ResourceDefEh: resourceDefEh}, outputs, tray.Deps{
		Backend:   backend,
		Catalog:   s.catalog,
		Scheduler: pool,
		Logger:    s.logger,
	})
	if err != nil {
		return types.TrayView{}, err
	}
	defer rendered.Close()

	view := types.TrayView{Name: cfg.Name, ResourceEh: resourceEh, ResourceDefEh: resourceDefEh}
	for i, p := range rendered.Pairs {
		slot := cfg.Slots[i]
		view.Pairs = append(view.Pairs, types.PairView{
			Input: types.WidgetView{
				DimensionEh: p.InputDimension,
				Kind:        slot.InputKind.String(),
				Assessment:  p.Input.Assessment(),
				Text:        p.Input.View(),
			},
			Output: types.WidgetView{
				DimensionEh: p.OutputDimension,
				Kind:        slot.OutputKind.String(),
				Assessment:  p.Output.Assessment(),
				Text:        p.Output.View(),
			},
		})
	}
	return view, nil
}

// Widgets lists the widget registrations of the catalog.
func (s *Service) Widgets() []model.RegisteredControl {
	return s.catalog.Registrations()
}

// Names returns the hashes of everything seeded so far.
func (s *Service) Names() types.Names {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := types.Names{
		Dimensions:   cloneNames(s.dimensions),
		Methods:      cloneNames(s.methods),
		ResourceDefs: cloneNames(s.resourceDefs),
	}
	for name := range s.trays {
		l.Trays = append(l.Trays, name)
	}
	sort.Strings(l.Trays)
	for name := range s.contexts {
		l.Contexts = append(l.Contexts, name)
	}
	sort.Strings(l.Contexts)
	return l
}

// ResourceDef returns the hash of the seeded resource definition name.
func (s *Service) ResourceDef(name string) (model.EntryHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eh, ok := s.resourceDefs[name]
	if !ok {
		return model.EntryHash{}, fmt.Errorf("%w: resource def %q", ErrUnknownName, name)
	}
	return eh, nil
}

// ResourceHash derives the entry hash of a resource from its name.
func ResourceHash(name string) model.EntryHash {
	return model.MustHashEntry(model.KindResource, name)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":       s.started,
		"workerCount":   s.workerCount,
		"activeMethods": len(s.registry.Active.All()),
		"widgetKinds":   len(s.catalog.Kinds()),
		"trays":         len(s.trays),
		"contexts":      len(s.contexts),
	}

	if s.started {
		queueLen := s.pool.Len(ctx)
		stats["queueLength"] = queueLen
		metrics.UpdateLoopQueueDepth(queueLen)

		st, err := s.store.Stats(ctx)
		if err != nil {
			s.logger.Warn(ctx, "could not read store stats", logger.Error(err))
		} else {
			stats["assessments"] = st.Assessments
			stats["resources"] = st.Resources
			stats["dimensions"] = st.Dimensions
			stats["methods"] = st.Methods
		}
	}

	return stats
}

func cloneNames(m map[string]model.EntryHash) map[string]model.EntryHash {
	out := make(map[string]model.EntryHash, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
