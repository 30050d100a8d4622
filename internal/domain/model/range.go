package model

import (
	"fmt"
	"strconv"
)

// IntegerRange bounds integer assessment values, inclusive.
type IntegerRange struct {
	Min int64 `json:"min" cbor:"min" koanf:"min"`
	Max int64 `json:"max" cbor:"max" koanf:"max"`
}

// FloatRange bounds float assessment values, inclusive.
type FloatRange struct {
	Min float64 `json:"min" cbor:"min" koanf:"min"`
	Max float64 `json:"max" cbor:"max" koanf:"max"`
}

// RangeKind constrains the values a dimension accepts. Exactly one variant
// is set.
type RangeKind struct {
	Integer *IntegerRange `json:"Integer,omitempty" cbor:"Integer,omitempty"`
	Float   *FloatRange   `json:"Float,omitempty" cbor:"Float,omitempty"`
}

// IntegerKind builds an integer RangeKind.
func IntegerKind(min, max int64) RangeKind {
	return RangeKind{Integer: &IntegerRange{Min: min, Max: max}}
}

// FloatKind builds a float RangeKind.
func FloatKind(min, max float64) RangeKind {
	return RangeKind{Float: &FloatRange{Min: min, Max: max}}
}

// Validate checks that exactly one variant is set and min <= max.
func (k RangeKind) Validate() error {
	switch {
	case k.Integer != nil && k.Float != nil:
		return fmt.Errorf("%w: both Integer and Float set", ErrInvalidRange)
	case k.Integer != nil:
		if k.Integer.Min > k.Integer.Max {
			return fmt.Errorf("%w: integer min %d > max %d", ErrInvalidRange, k.Integer.Min, k.Integer.Max)
		}
	case k.Float != nil:
		if k.Float.Min > k.Float.Max {
			return fmt.Errorf("%w: float min %g > max %g", ErrInvalidRange, k.Float.Min, k.Float.Max)
		}
	default:
		return fmt.Errorf("%w: no variant set", ErrInvalidRange)
	}
	return nil
}

// Check returns nil when v is of this kind and within bounds.
func (k RangeKind) Check(v RangeValue) error {
	if err := v.Validate(); err != nil {
		return err
	}
	switch {
	case k.Integer != nil:
		if v.Integer == nil {
			return fmt.Errorf("%w: want Integer, got %s", ErrOutOfRange, v)
		}
		if *v.Integer < k.Integer.Min || *v.Integer > k.Integer.Max {
			return fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, *v.Integer, k.Integer.Min, k.Integer.Max)
		}
	case k.Float != nil:
		if v.Float == nil {
			return fmt.Errorf("%w: want Float, got %s", ErrOutOfRange, v)
		}
		if *v.Float < k.Float.Min || *v.Float > k.Float.Max {
			return fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfRange, *v.Float, k.Float.Min, k.Float.Max)
		}
	default:
		return fmt.Errorf("%w: no variant set", ErrInvalidRange)
	}
	return nil
}

// Contains reports whether v is accepted by k.
func (k RangeKind) Contains(v RangeValue) bool {
	return k.Check(v) == nil
}

// String renders the kind as Integer[min..max] or Float[min..max].
func (k RangeKind) String() string {
	switch {
	case k.Integer != nil:
		return fmt.Sprintf("Integer[%d..%d]", k.Integer.Min, k.Integer.Max)
	case k.Float != nil:
		return fmt.Sprintf("Float[%g..%g]", k.Float.Min, k.Float.Max)
	default:
		return "Range[unset]"
	}
}

// RangeValue is a tagged assessment value. Exactly one variant is set.
type RangeValue struct {
	Integer *int64   `json:"Integer,omitempty" cbor:"Integer,omitempty"`
	Float   *float64 `json:"Float,omitempty" cbor:"Float,omitempty"`
}

// IntegerValue builds an integer RangeValue.
func IntegerValue(v int64) RangeValue {
	return RangeValue{Integer: &v}
}

// FloatValue builds a float RangeValue.
func FloatValue(v float64) RangeValue {
	return RangeValue{Float: &v}
}

// Validate checks that exactly one variant is set.
func (v RangeValue) Validate() error {
	if (v.Integer == nil) == (v.Float == nil) {
		return fmt.Errorf("%w: exactly one of Integer or Float must be set", ErrInvalidValue)
	}
	return nil
}

// Number returns the value as float64 regardless of variant.
func (v RangeValue) Number() float64 {
	switch {
	case v.Integer != nil:
		return float64(*v.Integer)
	case v.Float != nil:
		return *v.Float
	default:
		return 0
	}
}

// Equal compares variant and value.
func (v RangeValue) Equal(o RangeValue) bool {
	switch {
	case v.Integer != nil && o.Integer != nil:
		return *v.Integer == *o.Integer
	case v.Float != nil && o.Float != nil:
		return *v.Float == *o.Float
	default:
		return v.Integer == nil && o.Integer == nil && v.Float == nil && o.Float == nil
	}
}

func (v RangeValue) String() string {
	switch {
	case v.Integer != nil:
		return strconv.FormatInt(*v.Integer, 10)
	case v.Float != nil:
		return strconv.FormatFloat(*v.Float, 'g', -1, 64)
	default:
		return "<unset>"
	}
}
