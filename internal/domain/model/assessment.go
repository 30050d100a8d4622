package model

import "time"

// Entry type names used when hashing.
const (
	KindDimension    = "dimension"
	KindMethod       = "method"
	KindResourceDef  = "resource_def"
	KindResource     = "resource"
	KindAssessment   = "assessment"
	KindTrayConfig   = "assessment_tray_config"
	KindContext      = "cultural_context"
	KindRegistration = "assessment_control_registration"
)

// Dimension is a named scalar axis of assessment.
type Dimension struct {
	Name     string    `json:"name" cbor:"name"`
	Range    RangeKind `json:"range" cbor:"range"`
	Computed bool      `json:"computed" cbor:"computed"`
}

// Validate checks the name and range.
func (d Dimension) Validate() error {
	if d.Name == "" {
		return ErrInvalidEntry
	}
	return d.Range.Validate()
}

// Method maps one or more input dimensions to one output dimension.
type Method struct {
	Name               string      `json:"name" cbor:"name"`
	InputDimensions    []EntryHash `json:"input_dimension_ehs" cbor:"input_dimension_ehs"`
	OutputDimension    EntryHash   `json:"output_dimension_eh" cbor:"output_dimension_eh"`
	Program            string      `json:"program" cbor:"program"`
	CanComputeLive     bool        `json:"can_compute_live" cbor:"can_compute_live"`
	RequiresValidation bool        `json:"requires_validation" cbor:"requires_validation"`
}

// Validate checks that the method names at least one input and an output.
func (m Method) Validate() error {
	if m.Name == "" || len(m.InputDimensions) == 0 || m.OutputDimension.IsZero() {
		return ErrInvalidEntry
	}
	return nil
}

// ResourceDef is the schema governing a class of resources.
type ResourceDef struct {
	Name         string      `json:"name" cbor:"name"`
	AppletID     string      `json:"applet_id" cbor:"applet_id"`
	ResourceName string      `json:"resource_name" cbor:"resource_name"`
	Dimensions   []EntryHash `json:"dimension_ehs" cbor:"dimension_ehs"`
}

// Assessment is one immutable recorded or computed value for a
// (resource, dimension) pair. Timestamp is in microseconds since the epoch.
type Assessment struct {
	Value             RangeValue  `json:"value" cbor:"value"`
	DimensionEh       EntryHash   `json:"dimension_eh" cbor:"dimension_eh"`
	ResourceEh        EntryHash   `json:"resource_eh" cbor:"resource_eh"`
	ResourceDefEh     EntryHash   `json:"resource_def_eh" cbor:"resource_def_eh"`
	MaybeInputDataset *EntryHash  `json:"maybe_input_dataset" cbor:"maybe_input_dataset"`
	Author            AgentPubKey `json:"author" cbor:"author"`
	Timestamp         int64       `json:"timestamp" cbor:"timestamp"`
}

// Time returns the timestamp as a time.Time.
func (a Assessment) Time() time.Time {
	return time.UnixMicro(a.Timestamp)
}

// CreateAssessmentInput is what a widget submits to record an assessment.
type CreateAssessmentInput struct {
	Value             RangeValue `json:"value"`
	DimensionEh       EntryHash  `json:"dimension_eh"`
	ResourceEh        EntryHash  `json:"resource_eh"`
	ResourceDefEh     EntryHash  `json:"resource_def_eh"`
	MaybeInputDataset *EntryHash `json:"maybe_input_dataset"`
}

// Validate checks the required hashes and the value shape. Range checks
// against the dimension belong to the store.
func (in CreateAssessmentInput) Validate() error {
	if in.DimensionEh.IsZero() || in.ResourceEh.IsZero() || in.ResourceDefEh.IsZero() {
		return ErrInvalidEntry
	}
	return in.Value.Validate()
}

// Record pairs an entry with the hashes assigned when it was written.
type Record[T any] struct {
	ActionHash ActionHash `json:"action_hash"`
	EntryHash  EntryHash  `json:"entry_hash"`
	Entry      T          `json:"entry"`
}

// Query selects assessments by resource and dimension.
type Query struct {
	ResourceEhs  []EntryHash `json:"resource_ehs"`
	DimensionEhs []EntryHash `json:"dimension_ehs"`
}

// Matches reports whether a falls inside q. Empty lists match everything.
func (q Query) Matches(a *Assessment) bool {
	return containsHash(q.ResourceEhs, a.ResourceEh) && containsHash(q.DimensionEhs, a.DimensionEh)
}

func containsHash(set []EntryHash, h EntryHash) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == h {
			return true
		}
	}
	return false
}
