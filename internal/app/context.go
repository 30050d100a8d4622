package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/types"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

// DefaultLimit caps rankings when the caller asks for no limit.
const DefaultLimit = 50

// Context returns the seeded cultural context named name.
func (s *Service) Context(name string) (model.CulturalContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[name]
	if !ok {
		return model.CulturalContext{}, fmt.Errorf("%w: %q", ErrUnknownContext, name)
	}
	return c, nil
}

// contextRow is one candidate resource and its latest value per dimension.
type contextRow struct {
	resource model.EntryHash
	values   map[model.EntryHash]model.RangeValue
}

// ComputeContext evaluates the named context over resources, or over every
// assessed resource when resources is empty, and returns up to limit
// results. A resource belongs to the context's definition when its
// assessments along the context dimensions were made for it; it passes a
// threshold only when it has a value along that dimension. Resources with
// no value along an ordering dimension sort after those that have one.
func (s *Service) ComputeContext(ctx context.Context, name string, resources []model.EntryHash, limit int) (types.ContextView, error) {
	backend, _, err := s.deps()
	if err != nil {
		return types.ContextView{}, err
	}
	c, err := s.Context(name)
	if err != nil {
		return types.ContextView{}, err
	}
	if limit < 1 {
		limit = DefaultLimit
	}

	byResource, err := backend.GetAssessmentsForResources(ctx, model.Query{
		ResourceEhs:  resources,
		DimensionEhs: c.Dimensions(),
	})
	if err != nil {
		return types.ContextView{}, err
	}

	rows := make([]contextRow, 0, len(byResource))
	for resource, list := range byResource {
		row, ok := contextRowFor(c, resource, list)
		if ok {
			rows = append(rows, row)
		}
	}
	// Resource hashes break full ties so results are deterministic.
	slices.SortFunc(rows, func(a, b contextRow) int {
		if d := compareRows(c.OrderBy, a, b); d != 0 {
			return d
		}
		return strings.Compare(a.resource.String(), b.resource.String())
	})

	view := types.ContextView{Name: c.Name, Resources: []types.RankedResource{}}
	primary := c.OrderBy[0].DimensionEh
	for i, row := range rows {
		if i == limit {
			break
		}
		rank := i + 1
		if i > 0 && compareRows(c.OrderBy, rows[i-1], row) == 0 {
			rank = view.Resources[i-1].Rank
		}
		view.Resources = append(view.Resources, types.RankedResource{
			Rank:       rank,
			ResourceEh: row.resource,
			Value:      row.values[primary].Number(),
		})
	}

	s.logger.Debug(ctx, "computed cultural context",
		logger.String("context", c.Name),
		logger.Int("candidates", len(byResource)),
		logger.Int("matched", len(rows)),
	)
	return view, nil
}

func contextRowFor(c model.CulturalContext, resource model.EntryHash, list []model.Assessment) (contextRow, bool) {
	row := contextRow{resource: resource, values: make(map[model.EntryHash]model.RangeValue)}
	ofDef := false
	for _, dim := range c.Dimensions() {
		a := model.Latest(list, model.OnDimension(dim))
		if a == nil {
			continue
		}
		row.values[dim] = a.Value
		ofDef = ofDef || a.ResourceDefEh == c.ResourceDefEh
	}
	if !ofDef {
		return row, false
	}
	for _, t := range c.Thresholds {
		v, ok := row.values[t.DimensionEh]
		if !ok || !t.Passes(v) {
			return row, false
		}
	}
	return row, true
}

// compareRows is negative when a ranks before b and zero when they tie on
// every ordering dimension.
func compareRows(order []model.OrderBy, a, b contextRow) int {
	for _, o := range order {
		av, aok := a.values[o.DimensionEh]
		bv, bok := b.values[o.DimensionEh]
		switch {
		case !aok && !bok:
			continue
		case !aok:
			return 1
		case !bok:
			return -1
		}
		x, y := av.Number(), bv.Number()
		if x == y {
			continue
		}
		if (o.Kind == model.Biggest) == (x > y) {
			return -1
		}
		return 1
	}
	return 0
}

// Ranking returns up to limit resources along a computed dimension, from the
// biggest value down.
func (s *Service) Ranking(ctx context.Context, dimension model.EntryHash, limit int) ([]types.RankedResource, error) {
	backend, _, err := s.deps()
	if err != nil {
		return nil, err
	}
	idx, ok := backend.ranking(dimension)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRanking, dimension.Short())
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	top, err := idx.TopN(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.RankedResource, len(top))
	for i, e := range top {
		out[i] = types.RankedResource{Rank: e.Rank, ResourceEh: e.ResourceEh, Value: e.Value}
	}
	return out, nil
}
