package registry

import (
	"fmt"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/widget"
)

// Entry is the pair of widget kinds registered for one dimension. Either
// side may be unset.
type Entry struct {
	Assess  widget.Kind `json:"assess"`
	Display widget.Kind `json:"display"`
}

// Widgets maps dimensions to widget kinds.
type Widgets struct {
	snap    *Snapshot[map[model.EntryHash]Entry]
	catalog *widget.Catalog
}

// WidgetsOption configures a widget registry.
type WidgetsOption func(*Widgets)

// WithCatalog resolves registration-addressed configs through c.
func WithCatalog(c *widget.Catalog) WidgetsOption {
	return func(w *Widgets) {
		w.catalog = c
	}
}

// NewWidgets returns an empty widget registry.
func NewWidgets(opts ...WidgetsOption) *Widgets {
	w := &Widgets{snap: NewSnapshot(map[model.EntryHash]Entry{})}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register sets the entry for dimension, replacing any previous one.
func (w *Widgets) Register(dimension model.EntryHash, e Entry) {
	w.snap.Update(func(cur map[model.EntryHash]Entry) map[model.EntryHash]Entry {
		next := cloneMap(cur)
		next[dimension] = e
		return next
	})
}

// RegisterConfig registers one side of a tray control config. A config
// addressed by registration hash needs a catalog that knows the hash.
func (w *Widgets) RegisterConfig(c model.AssessmentWidgetConfig, role widget.Role) error {
	k, err := w.kindFor(c)
	if err != nil {
		return err
	}
	w.snap.Update(func(cur map[model.EntryHash]Entry) map[model.EntryHash]Entry {
		next := cloneMap(cur)
		e := next[c.DimensionEh]
		if role == widget.RoleAssess {
			e.Assess = k
		} else {
			e.Display = k
		}
		next[c.DimensionEh] = e
		return next
	})
	return nil
}

func (w *Widgets) kindFor(c model.AssessmentWidgetConfig) (widget.Kind, error) {
	if c.RegistrationEh == nil {
		return widget.FromConfig(c)
	}
	if w.catalog == nil {
		return widget.Kind{}, resolutionError(fmt.Errorf("%w: %s", widget.ErrUnknownRegistration, c.RegistrationEh.Short()))
	}
	k, err := w.catalog.KindOf(*c.RegistrationEh)
	if err != nil {
		return widget.Kind{}, resolutionError(err)
	}
	return k, nil
}

// Unregister removes the entry for dimension.
func (w *Widgets) Unregister(dimension model.EntryHash) {
	w.snap.Update(func(cur map[model.EntryHash]Entry) map[model.EntryHash]Entry {
		next := cloneMap(cur)
		delete(next, dimension)
		return next
	})
}

// Entry returns the entry for dimension.
func (w *Widgets) Entry(dimension model.EntryHash) (Entry, bool) {
	e, ok := w.snap.Get()[dimension]
	return e, ok
}

// Assess returns the input widget kind for dimension.
func (w *Widgets) Assess(dimension model.EntryHash) (widget.Kind, error) {
	e, ok := w.Entry(dimension)
	if !ok || e.Assess.IsZero() {
		return widget.Kind{}, fmt.Errorf("%w: input widget for %s", ErrWidgetNotRegistered, dimension)
	}
	return e.Assess, nil
}

// Display returns the output widget kind for dimension.
func (w *Widgets) Display(dimension model.EntryHash) (widget.Kind, error) {
	e, ok := w.Entry(dimension)
	if !ok || e.Display.IsZero() {
		return widget.Kind{}, fmt.Errorf("%w: output widget for %s", ErrWidgetNotRegistered, dimension)
	}
	return e.Display, nil
}

// All returns the current table. The map must not be modified.
func (w *Widgets) All() map[model.EntryHash]Entry {
	return w.snap.Get()
}
