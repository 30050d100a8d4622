// Package delegate builds the narrow capability objects handed to assessment
// widgets. A delegate is bound to one (resource, dimension) pair and exposes
// only the reads, writes and notifications a widget needs for that pair.
package delegate

import (
	"context"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/subscriber"
)

// InputDelegate lets a widget record the current agent's assessment.
type InputDelegate interface {
	// GetLatestAssessmentForUser returns the agent's latest assessment, or nil
	// if there is none or the read failed.
	GetLatestAssessmentForUser(ctx context.Context) *model.Assessment
	// Subscribe registers cb for assessment changes.
	Subscribe(cb subscriber.Callback) subscriber.Unsubscribe
	// CreateAssessment records value and notifies subscribers before
	// returning.
	CreateAssessment(ctx context.Context, value model.RangeValue) (model.Record[model.Assessment], error)
	// InvalidateAssessment clears the locally cached value and notifies
	// subscribers with nil. Nothing is removed from the backend.
	InvalidateAssessment()
}

// OutputDelegate lets a widget display a computed assessment.
type OutputDelegate interface {
	// GetLatestAssessment returns the latest assessment by any author, or nil.
	GetLatestAssessment(ctx context.Context) *model.Assessment
	Subscribe(cb subscriber.Callback) subscriber.Unsubscribe
}

// InputBackend is the part of the store an input delegate may use.
type InputBackend interface {
	GetMyAssessmentsForResources(ctx context.Context, q model.Query) (map[model.EntryHash][]model.Assessment, error)
	CreateAssessment(ctx context.Context, in model.CreateAssessmentInput) (model.Record[model.Assessment], error)
}

// OutputBackend is the part of the store an output delegate may use.
type OutputBackend interface {
	GetAssessmentsForResources(ctx context.Context, q model.Query) (map[model.EntryHash][]model.Assessment, error)
}

// Binding fixes the pair a delegate acts on. ResourceDefEh is only used by
// input delegates.
type Binding struct {
	ResourceEh    model.EntryHash
	ResourceDefEh model.EntryHash
	DimensionEh   model.EntryHash
}

func (b Binding) query() model.Query {
	return model.Query{
		ResourceEhs:  []model.EntryHash{b.ResourceEh},
		DimensionEhs: []model.EntryHash{b.DimensionEh},
	}
}

// latest picks the newest assessment for the binding out of a query result.
func (b Binding) latest(byResource map[model.EntryHash][]model.Assessment) *model.Assessment {
	return model.Latest(byResource[b.ResourceEh], model.OnDimension(b.DimensionEh))
}

func noop() {}
