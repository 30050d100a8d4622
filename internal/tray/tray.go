package tray

import (
	"context"
	"fmt"
	"sync"

	"github.com/neighbourhoods/nh-tray/internal/delegate"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/subscriber"
	"github.com/neighbourhoods/nh-tray/internal/registry"
	"github.com/neighbourhoods/nh-tray/internal/widget"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

// Deps are the collaborators a tray needs.
type Deps struct {
	Backend   delegate.InputBackend
	Catalog   *widget.Catalog
	Scheduler subscriber.Scheduler
	Logger    logger.Logger
}

func (d Deps) delegateOptions() []delegate.Option {
	return []delegate.Option{delegate.WithScheduler(d.Scheduler), delegate.WithLogger(d.Logger)}
}

// Binding identifies the resource a tray renders for.
type Binding struct {
	ResourceEh    model.EntryHash
	ResourceDefEh model.EntryHash
	MethodEh      model.EntryHash
}

// Pair is one rendered input/output widget pair.
type Pair struct {
	InputDimension  model.EntryHash
	OutputDimension model.EntryHash
	Input           widget.Assess
	Output          widget.Display
}

// Tray is a rendered tray. Close it when it is no longer shown.
type Tray struct {
	Name  string
	Pairs []Pair

	once   sync.Once
	leases delegate.Leases
}

// Render builds one input and one output widget per slot. Output widgets
// get a static delegate holding outputs[slot.OutputDimension], which is nil
// when the map has no entry.
func Render(ctx context.Context, cfg Config, b Binding, outputs map[model.EntryHash]*model.Assessment, deps Deps) (*Tray, error) {
	t := &Tray{Name: cfg.Name, Pairs: make([]Pair, 0, len(cfg.Slots))}
	for _, slot := range cfg.Slots {
		newAssess, err := deps.Catalog.Assess(slot.InputKind)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("%w: %w", registry.ErrResolution, err)
		}
		newDisplay, err := deps.Catalog.Display(slot.OutputKind)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("%w: %w", registry.ErrResolution, err)
		}

		in, lease := delegate.NewInput(deps.Backend, delegate.Binding{
			ResourceEh:    b.ResourceEh,
			ResourceDefEh: b.ResourceDefEh,
			DimensionEh:   slot.InputDimension,
		}, deps.delegateOptions()...)
		t.leases = append(t.leases, lease)

		assess := newAssess()
		assess.Bind(ctx, widget.Context{
			ResourceEh:    b.ResourceEh,
			ResourceDefEh: b.ResourceDefEh,
			DimensionEh:   slot.InputDimension,
			MethodEh:      b.MethodEh,
		}, in)

		display := newDisplay()
		display.Bind(ctx, widget.Context{
			ResourceEh:    b.ResourceEh,
			ResourceDefEh: b.ResourceDefEh,
			DimensionEh:   slot.OutputDimension,
		}, delegate.NewStaticOutput(outputs[slot.OutputDimension]))

		t.Pairs = append(t.Pairs, Pair{
			InputDimension:  slot.InputDimension,
			OutputDimension: slot.OutputDimension,
			Input:           assess,
			Output:          display,
		})
	}
	return t, nil
}

// Close closes every widget and releases every lease. It is idempotent.
func (t *Tray) Close() {
	t.once.Do(func() {
		for _, p := range t.Pairs {
			p.Input.Close()
			p.Output.Close()
		}
		t.leases.Release()
	})
}
