package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
)

const backendMemory = "memory"

// MemoryStore is an in-memory Store. Assessments are kept per resource in
// insertion order.
type MemoryStore struct {
	settings

	mu          sync.RWMutex
	byResource  map[model.EntryHash][]model.Assessment
	count       int
	dimensions  map[model.EntryHash]model.Record[model.Dimension]
	methods     map[model.EntryHash]model.Record[model.Method]
	methodOrder []model.EntryHash
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		settings:   defaultSettings(),
		byResource: make(map[model.EntryHash][]model.Assessment),
		dimensions: make(map[model.EntryHash]model.Record[model.Dimension]),
		methods:    make(map[model.EntryHash]model.Record[model.Method]),
	}
	for _, opt := range opts {
		opt(&s.settings)
	}
	return s
}

// Agent returns the store's agent.
func (s *MemoryStore) Agent() model.AgentPubKey { return s.agent }

func observe(backend, op string, start time.Time) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
}

// GetAssessmentsForResources returns assessments matching q.
func (s *MemoryStore) GetAssessmentsForResources(ctx context.Context, q model.Query) (map[model.EntryHash][]model.Assessment, error) {
	defer observe(backendMemory, "get_assessments", time.Now())
	return s.query(q, nil), nil
}

// GetMyAssessmentsForResources returns the agent's assessments matching q.
func (s *MemoryStore) GetMyAssessmentsForResources(ctx context.Context, q model.Query) (map[model.EntryHash][]model.Assessment, error) {
	defer observe(backendMemory, "get_my_assessments", time.Now())
	return s.query(q, &s.agent), nil
}

func (s *MemoryStore) query(q model.Query, author *model.AgentPubKey) map[model.EntryHash][]model.Assessment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.EntryHash][]model.Assessment)
	collect := func(resource model.EntryHash, list []model.Assessment) {
		for i := range list {
			a := &list[i]
			if !q.Matches(a) {
				continue
			}
			if author != nil && a.Author != *author {
				continue
			}
			out[resource] = append(out[resource], *a)
		}
	}
	if len(q.ResourceEhs) == 0 {
		for resource, list := range s.byResource {
			collect(resource, list)
		}
		return out
	}
	for _, resource := range q.ResourceEhs {
		collect(resource, s.byResource[resource])
	}
	return out
}

// CreateAssessment validates and appends an assessment.
func (s *MemoryStore) CreateAssessment(ctx context.Context, in model.CreateAssessmentInput) (model.Record[model.Assessment], error) {
	defer observe(backendMemory, "create_assessment", time.Now())
	if err := ctx.Err(); err != nil {
		return model.Record[model.Assessment]{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var dim *model.Dimension
	if rec, ok := s.dimensions[in.DimensionEh]; ok {
		dim = &rec.Entry
	}
	rec, err := buildAssessment(&s.settings, in, dim)
	if err != nil {
		metrics.RecordStoreError(backendMemory, "create_assessment")
		return rec, err
	}
	s.byResource[in.ResourceEh] = append(s.byResource[in.ResourceEh], rec.Entry)
	s.count++
	metrics.RecordAssessmentCreated(dimensionLabel(dim))

	s.logger.Debug(ctx, "assessment stored",
		logger.String("resource", in.ResourceEh.Short()),
		logger.String("dimension", dimensionLabel(dim)),
		logger.Stringer("value", in.Value),
	)
	return rec, nil
}

// CreateDimension stores d. Creating an identical dimension again returns
// the existing record.
func (s *MemoryStore) CreateDimension(ctx context.Context, d model.Dimension) (model.Record[model.Dimension], error) {
	if err := d.Validate(); err != nil {
		return model.Record[model.Dimension]{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	eh, err := model.HashEntry(model.KindDimension, d)
	if err != nil {
		return model.Record[model.Dimension]{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dimensions[eh]; ok {
		return rec, nil
	}
	rec := model.Record[model.Dimension]{ActionHash: model.NewActionHash(eh), EntryHash: eh, Entry: d}
	s.dimensions[eh] = rec
	return rec, nil
}

// GetDimension returns a dimension by entry hash.
func (s *MemoryStore) GetDimension(ctx context.Context, eh model.EntryHash) (model.Dimension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.dimensions[eh]
	if !ok {
		return model.Dimension{}, fmt.Errorf("%w: dimension %s", ErrNotFound, eh.Short())
	}
	return rec.Entry, nil
}

// CreateMethod stores m. Creating an identical method again returns the
// existing record.
func (s *MemoryStore) CreateMethod(ctx context.Context, m model.Method) (model.Record[model.Method], error) {
	if err := m.Validate(); err != nil {
		return model.Record[model.Method]{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	eh, err := model.HashEntry(model.KindMethod, m)
	if err != nil {
		return model.Record[model.Method]{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.methods[eh]; ok {
		return rec, nil
	}
	rec := model.Record[model.Method]{ActionHash: model.NewActionHash(eh), EntryHash: eh, Entry: m}
	s.methods[eh] = rec
	s.methodOrder = append(s.methodOrder, eh)
	return rec, nil
}

// GetMethod returns a method by entry hash.
func (s *MemoryStore) GetMethod(ctx context.Context, eh model.EntryHash) (model.Method, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.methods[eh]
	if !ok {
		return model.Method{}, fmt.Errorf("%w: method %s", ErrNotFound, eh.Short())
	}
	return rec.Entry, nil
}

// Methods returns every method in creation order.
func (s *MemoryStore) Methods(ctx context.Context) ([]model.Record[model.Method], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Record[model.Method], 0, len(s.methodOrder))
	for _, eh := range s.methodOrder {
		out = append(out, s.methods[eh])
	}
	return out, nil
}

// Stats reports counts.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Assessments: s.count,
		Resources:   len(s.byResource),
		Dimensions:  len(s.dimensions),
		Methods:     len(s.methods),
	}, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
