// Package tray renders assessment widgets for a resource: the tray of
// input/output pairs built from a tray config, and the live surface that
// follows the active method of a resource definition.
package tray

import (
	"fmt"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/widget"
)

// Slot is one input/output control pair.
type Slot struct {
	InputDimension  model.EntryHash `json:"input_dimension"`
	InputKind       widget.Kind     `json:"input_kind"`
	OutputDimension model.EntryHash `json:"output_dimension"`
	OutputKind      widget.Kind     `json:"output_kind"`
}

// Config is an ordered list of slots.
type Config struct {
	Name  string `json:"name"`
	Slots []Slot `json:"slots"`
}

// KindResolver maps a widget config to the kind it addresses.
// *widget.Catalog implements it.
type KindResolver interface {
	KindFor(c model.AssessmentWidgetConfig) (widget.Kind, error)
}

// FromTrayConfig converts a stored tray config, resolving every control
// through kinds. Controls may be addressed by registration hash or by
// applet component.
func FromTrayConfig(tc model.AssessmentTrayConfig, kinds KindResolver) (Config, error) {
	if err := tc.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, tc.Name, err)
	}
	cfg := Config{Name: tc.Name, Slots: make([]Slot, 0, len(tc.Controls))}
	for i, c := range tc.Controls {
		in, err := kinds.KindFor(c.Input)
		if err != nil {
			return Config{}, fmt.Errorf("%w: control %d input: %w", ErrInvalidConfig, i, err)
		}
		out, err := kinds.KindFor(c.Output)
		if err != nil {
			return Config{}, fmt.Errorf("%w: control %d output: %w", ErrInvalidConfig, i, err)
		}
		cfg.Slots = append(cfg.Slots, Slot{
			InputDimension:  c.Input.DimensionEh,
			InputKind:       in,
			OutputDimension: c.Output.DimensionEh,
			OutputKind:      out,
		})
	}
	return cfg, nil
}

// OutputDimensions lists the output dimension of every slot, in order.
func (c Config) OutputDimensions() []model.EntryHash {
	out := make([]model.EntryHash, len(c.Slots))
	for i, s := range c.Slots {
		out[i] = s.OutputDimension
	}
	return out
}
