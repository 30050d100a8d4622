package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/neighbourhoods/nh-tray/internal/adapters/repository"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/registry"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

// Programs a method can run.
const (
	ProgramSum     = "SUM"
	ProgramAverage = "AVERAGE"
)

// normalizeProgram maps a program name to its canonical form.
func normalizeProgram(p string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(p)) {
	case ProgramSum:
		return ProgramSum, nil
	case ProgramAverage, "AVG":
		return ProgramAverage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, p)
	}
}

// computingBackend is the store as seen by delegates. After an input
// assessment is written it recomputes the output of the active method when
// that method can run live, so output delegates see a fresh value.
//
// Every tracked output dimension also keeps a rank index of the latest
// computed value per resource.
//
// Writes to one resource hold a lock from the input write until the output
// and its rank are stored, so the last output always covers every input
// written before it.
type computingBackend struct {
	store  repository.Store
	active *registry.ActiveMethods
	logger logger.Logger

	mu    sync.RWMutex
	ranks map[model.EntryHash]*repository.RankIndex

	writes [64]sync.Mutex
}

func newComputingBackend(store repository.Store, active *registry.ActiveMethods, l logger.Logger) *computingBackend {
	return &computingBackend{
		store:  store,
		active: active,
		logger: l,
		ranks:  make(map[model.EntryHash]*repository.RankIndex),
	}
}

// track starts ranking dimension, filling the index from the latest stored
// value of every resource. Tracking a dimension twice is a no-op.
func (b *computingBackend) track(ctx context.Context, dimension model.EntryHash) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.ranks[dimension]; ok {
		return nil
	}

	res, err := b.store.GetAssessmentsForResources(ctx, model.Query{DimensionEhs: []model.EntryHash{dimension}})
	if err != nil {
		return err
	}
	idx := repository.NewRankIndex()
	for resource, list := range res {
		if a := model.Latest(list, nil); a != nil {
			idx.Set(resource, a.Value.Number())
		}
	}
	b.ranks[dimension] = idx
	return nil
}

// ranking returns the index of a tracked dimension.
func (b *computingBackend) ranking(dimension model.EntryHash) (*repository.RankIndex, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	idx, ok := b.ranks[dimension]
	return idx, ok
}

func (b *computingBackend) GetAssessmentsForResources(ctx context.Context, q model.Query) (map[model.EntryHash][]model.Assessment, error) {
	return b.store.GetAssessmentsForResources(ctx, q)
}

func (b *computingBackend) GetMyAssessmentsForResources(ctx context.Context, q model.Query) (map[model.EntryHash][]model.Assessment, error) {
	return b.store.GetMyAssessmentsForResources(ctx, q)
}

// resourceLock returns the lock serializing writes to resource. Entry
// hashes are uniform, so the first byte spreads resources across stripes.
func (b *computingBackend) resourceLock(resource model.EntryHash) *sync.Mutex {
	return &b.writes[int(resource[0])%len(b.writes)]
}

func (b *computingBackend) CreateAssessment(ctx context.Context, in model.CreateAssessmentInput) (model.Record[model.Assessment], error) {
	lock := b.resourceLock(in.ResourceEh)
	lock.Lock()
	defer lock.Unlock()

	rec, err := b.store.CreateAssessment(ctx, in)
	if err != nil {
		return rec, err
	}
	if err := b.recompute(ctx, in); err != nil {
		b.logger.Warn(ctx, "could not recompute method output",
			logger.String("resource", in.ResourceEh.Short()),
			logger.Error(err),
		)
	}
	return rec, nil
}

func (b *computingBackend) recompute(ctx context.Context, in model.CreateAssessmentInput) error {
	methodEh, err := b.active.Get(in.ResourceDefEh)
	if err != nil {
		return nil
	}
	m, err := b.store.GetMethod(ctx, methodEh)
	if err != nil {
		return err
	}
	if !m.CanComputeLive || !slices.Contains(m.InputDimensions, in.DimensionEh) {
		return nil
	}
	outDim, err := b.store.GetDimension(ctx, m.OutputDimension)
	if err != nil {
		return err
	}

	res, err := b.store.GetAssessmentsForResources(ctx, model.Query{
		ResourceEhs:  []model.EntryHash{in.ResourceEh},
		DimensionEhs: m.InputDimensions,
	})
	if err != nil {
		return err
	}
	v, ok, err := evaluate(m.Program, res[in.ResourceEh])
	if err != nil || !ok {
		return err
	}

	out := fit(outDim.Range, v)
	if _, err = b.store.CreateAssessment(ctx, model.CreateAssessmentInput{
		Value:         out,
		DimensionEh:   m.OutputDimension,
		ResourceEh:    in.ResourceEh,
		ResourceDefEh: in.ResourceDefEh,
	}); err != nil {
		return err
	}
	if idx, ok := b.ranking(m.OutputDimension); ok {
		idx.Set(in.ResourceEh, out.Number())
	}
	return nil
}

// evaluate runs program over the latest assessment of every (author,
// dimension) pair. ok is false when there is nothing to aggregate.
func evaluate(program string, assessments []model.Assessment) (float64, bool, error) {
	p, err := normalizeProgram(program)
	if err != nil {
		return 0, false, err
	}

	type key struct {
		author    model.AgentPubKey
		dimension model.EntryHash
	}
	latest := make(map[key]model.Assessment)
	for _, a := range assessments {
		k := key{a.Author, a.DimensionEh}
		if cur, seen := latest[k]; !seen || a.Timestamp >= cur.Timestamp {
			latest[k] = a
		}
	}
	if len(latest) == 0 {
		return 0, false, nil
	}

	var sum float64
	for _, a := range latest {
		sum += a.Value.Number()
	}
	if p == ProgramAverage {
		return sum / float64(len(latest)), true, nil
	}
	return sum, true, nil
}

// fit converts v to the value shape of r, clamped to its bounds.
func fit(r model.RangeKind, v float64) model.RangeValue {
	if i := r.Integer; i != nil {
		n := int64(math.Round(v))
		return model.IntegerValue(min(max(n, i.Min), i.Max))
	}
	if f := r.Float; f != nil {
		return model.FloatValue(math.Min(math.Max(v, f.Min), f.Max))
	}
	return model.FloatValue(v)
}
