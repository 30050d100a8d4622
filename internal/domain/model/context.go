package model

// ThresholdKind compares an assessed value with a threshold value.
type ThresholdKind string

// Threshold kinds.
const (
	GreaterThan ThresholdKind = "GreaterThan"
	LessThan    ThresholdKind = "LessThan"
	Equal       ThresholdKind = "Equal"
)

// Threshold keeps resources whose latest value along DimensionEh compares
// to Value as Kind says.
type Threshold struct {
	DimensionEh EntryHash     `json:"dimension_eh" cbor:"dimension_eh"`
	Kind        ThresholdKind `json:"kind" cbor:"kind"`
	Value       RangeValue    `json:"value" cbor:"value"`
}

// Passes reports whether v satisfies the threshold.
func (t Threshold) Passes(v RangeValue) bool {
	a, b := v.Number(), t.Value.Number()
	switch t.Kind {
	case GreaterThan:
		return a > b
	case LessThan:
		return a < b
	case Equal:
		return a == b
	}
	return false
}

// OrderingKind is the direction of an ordering.
type OrderingKind string

// Ordering kinds.
const (
	Biggest  OrderingKind = "Biggest"
	Smallest OrderingKind = "Smallest"
)

// OrderBy orders resources by their latest value along DimensionEh.
type OrderBy struct {
	DimensionEh EntryHash    `json:"dimension_eh" cbor:"dimension_eh"`
	Kind        OrderingKind `json:"kind" cbor:"kind"`
}

// CulturalContext is a named view over the resources of one definition:
// resources passing every threshold, ordered by the first OrderBy entry and
// tie-broken by the following ones.
type CulturalContext struct {
	Name          string      `json:"name" cbor:"name"`
	ResourceDefEh EntryHash   `json:"resource_def_eh" cbor:"resource_def_eh"`
	Thresholds    []Threshold `json:"thresholds" cbor:"thresholds"`
	OrderBy       []OrderBy   `json:"order_by" cbor:"order_by"`
}

// Validate checks the name, the hashes and the enum values.
func (c CulturalContext) Validate() error {
	if c.Name == "" || c.ResourceDefEh.IsZero() || len(c.OrderBy) == 0 {
		return ErrInvalidEntry
	}
	for _, t := range c.Thresholds {
		if t.DimensionEh.IsZero() {
			return ErrInvalidEntry
		}
		switch t.Kind {
		case GreaterThan, LessThan, Equal:
		default:
			return ErrInvalidEntry
		}
		if err := t.Value.Validate(); err != nil {
			return err
		}
	}
	for _, o := range c.OrderBy {
		if o.DimensionEh.IsZero() || (o.Kind != Biggest && o.Kind != Smallest) {
			return ErrInvalidEntry
		}
	}
	return nil
}

// Dimensions returns every dimension the context reads, ordering
// dimensions first.
func (c CulturalContext) Dimensions() []EntryHash {
	var out []EntryHash
	seen := make(map[EntryHash]bool)
	add := func(h EntryHash) {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	for _, o := range c.OrderBy {
		add(o.DimensionEh)
	}
	for _, t := range c.Thresholds {
		add(t.DimensionEh)
	}
	return out
}
