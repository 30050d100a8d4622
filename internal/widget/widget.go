package widget

import (
	"context"

	"github.com/neighbourhoods/nh-tray/internal/delegate"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

// Assess is an input widget. It only talks to the backend through the
// InputDelegate it is bound to.
type Assess interface {
	// Bind attaches the widget to a pair, subscribes, and pulls the current
	// value once.
	Bind(ctx context.Context, wc Context, d delegate.InputDelegate)
	// Commit records v through the delegate.
	Commit(ctx context.Context, v model.RangeValue) error
	// Step proposes the value delta steps away from the current one,
	// clamped to the widget's range.
	Step(delta int) model.RangeValue
	// Assessment returns the value last seen, or nil.
	Assessment() *model.Assessment
	// OnChange registers a hook called after the shown value changes.
	OnChange(fn func())
	View() string
	// Close unsubscribes. Updates arriving afterwards are discarded.
	Close()
}

// Display is an output widget bound to an OutputDelegate.
type Display interface {
	Bind(ctx context.Context, wc Context, d delegate.OutputDelegate)
	Assessment() *model.Assessment
	OnChange(fn func())
	View() string
	Close()
}
