// Package repository defines the assessment backend contract and its local
// implementations.
package repository

import (
	"context"
	"fmt"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

// AssessmentStore is the backend the delegates read from and write to.
// Result lists are in insertion order.
type AssessmentStore interface {
	// GetAssessmentsForResources returns every assessment matching q, keyed
	// by resource.
	GetAssessmentsForResources(ctx context.Context, q model.Query) (map[model.EntryHash][]model.Assessment, error)
	// GetMyAssessmentsForResources is GetAssessmentsForResources restricted
	// to the store's agent.
	GetMyAssessmentsForResources(ctx context.Context, q model.Query) (map[model.EntryHash][]model.Assessment, error)
	// CreateAssessment records an assessment authored by the store's agent.
	CreateAssessment(ctx context.Context, in model.CreateAssessmentInput) (model.Record[model.Assessment], error)
}

// CatalogStore holds the dimensions and methods assessments refer to.
type CatalogStore interface {
	CreateDimension(ctx context.Context, d model.Dimension) (model.Record[model.Dimension], error)
	// GetDimension returns ErrNotFound if the dimension is unknown.
	GetDimension(ctx context.Context, eh model.EntryHash) (model.Dimension, error)
	CreateMethod(ctx context.Context, m model.Method) (model.Record[model.Method], error)
	// GetMethod returns ErrNotFound if the method is unknown.
	GetMethod(ctx context.Context, eh model.EntryHash) (model.Method, error)
	// Methods returns every method in creation order.
	Methods(ctx context.Context) ([]model.Record[model.Method], error)
}

// Stats summarizes what a store holds.
type Stats struct {
	Assessments int `json:"assessments"`
	Resources   int `json:"resources"`
	Dimensions  int `json:"dimensions"`
	Methods     int `json:"methods"`
}

// Store is the full backend used by the service.
type Store interface {
	AssessmentStore
	CatalogStore

	// Agent returns the agent writes are attributed to.
	Agent() model.AgentPubKey
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// buildAssessment validates in against the dimension (when known) and stamps
// it with the author and clock.
func buildAssessment(s *settings, in model.CreateAssessmentInput, dim *model.Dimension) (model.Record[model.Assessment], error) {
	if err := in.Validate(); err != nil {
		return model.Record[model.Assessment]{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if dim != nil {
		if err := dim.Range.Check(in.Value); err != nil {
			return model.Record[model.Assessment]{}, fmt.Errorf("%w: dimension %s: %w", ErrInvalidInput, dim.Name, err)
		}
	}

	a := model.Assessment{
		Value:             in.Value,
		DimensionEh:       in.DimensionEh,
		ResourceEh:        in.ResourceEh,
		ResourceDefEh:     in.ResourceDefEh,
		MaybeInputDataset: in.MaybeInputDataset,
		Author:            s.agent,
		Timestamp:         s.clock().UnixMicro(),
	}
	eh, err := model.HashEntry(model.KindAssessment, a)
	if err != nil {
		return model.Record[model.Assessment]{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return model.Record[model.Assessment]{
		ActionHash: model.NewActionHash(eh),
		EntryHash:  eh,
		Entry:      a,
	}, nil
}

// dimensionLabel names a dimension for metrics without unbounded cardinality
// from raw hashes.
func dimensionLabel(dim *model.Dimension) string {
	if dim == nil {
		return "unknown"
	}
	return dim.Name
}
