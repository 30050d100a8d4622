package registry

import (
	"errors"
	"fmt"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/widget"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
)

// InputSide is the resolved input half of a control.
type InputSide struct {
	DimensionEh model.EntryHash
	Kind        widget.Kind
	New         func() widget.Assess
}

// OutputSide is the resolved output half of a control.
type OutputSide struct {
	DimensionEh model.EntryHash
	Kind        widget.Kind
	New         func() widget.Display
}

// Resolution is everything needed to build the widget pair for a resource
// definition.
type Resolution struct {
	MethodEh model.EntryHash
	Input    InputSide
	Output   OutputSide
}

// Resolver resolves widget constructors from the registries. It reads
// in-memory state only and never blocks on I/O.
type Resolver struct {
	widgets *Widgets
	methods *Methods
	active  *ActiveMethods
	catalog *widget.Catalog
}

// NewResolver wires a resolver over the given tables.
func NewResolver(w *Widgets, m *Methods, a *ActiveMethods, c *widget.Catalog) *Resolver {
	return &Resolver{widgets: w, methods: m, active: a, catalog: c}
}

// Resolve uses the active method of resourceDefEh.
func (r *Resolver) Resolve(resourceDefEh model.EntryHash) (Resolution, error) {
	methodEh, err := r.active.Get(resourceDefEh)
	if err != nil {
		return Resolution{}, resolutionError(err)
	}
	return r.ResolveMethod(methodEh)
}

// ResolveMethod resolves the widgets for methodEh.
func (r *Resolver) ResolveMethod(methodEh model.EntryHash) (Resolution, error) {
	dims, err := r.methods.Dimensions(methodEh)
	if err != nil {
		return Resolution{}, resolutionError(err)
	}
	in, err := r.ResolveInput(dims.Input)
	if err != nil {
		return Resolution{}, err
	}
	out, err := r.ResolveOutput(dims.Output)
	if err != nil {
		return Resolution{}, err
	}
	metrics.RecordResolution()
	return Resolution{MethodEh: methodEh, Input: in, Output: out}, nil
}

// ResolveInput resolves the input widget registered for dimension.
func (r *Resolver) ResolveInput(dimension model.EntryHash) (InputSide, error) {
	kind, err := r.widgets.Assess(dimension)
	if err != nil {
		return InputSide{}, resolutionError(err)
	}
	ctor, err := r.catalog.Assess(kind)
	if err != nil {
		return InputSide{}, resolutionError(err)
	}
	return InputSide{DimensionEh: dimension, Kind: kind, New: ctor}, nil
}

// ResolveOutput resolves the output widget registered for dimension.
func (r *Resolver) ResolveOutput(dimension model.EntryHash) (OutputSide, error) {
	kind, err := r.widgets.Display(dimension)
	if err != nil {
		return OutputSide{}, resolutionError(err)
	}
	ctor, err := r.catalog.Display(kind)
	if err != nil {
		return OutputSide{}, resolutionError(err)
	}
	return OutputSide{DimensionEh: dimension, Kind: kind, New: ctor}, nil
}

func resolutionError(err error) error {
	metrics.RecordResolutionError(resolutionReason(err))
	return fmt.Errorf("%w: %w", ErrResolution, err)
}

func resolutionReason(err error) string {
	switch {
	case errors.Is(err, ErrNoActiveMethod):
		return "no_active_method"
	case errors.Is(err, ErrMethodNotFound):
		return "method_not_found"
	case errors.Is(err, ErrWidgetNotRegistered):
		return "widget_not_registered"
	case errors.Is(err, widget.ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, widget.ErrUnknownRegistration):
		return "unknown_registration"
	case errors.Is(err, widget.ErrWrongRole):
		return "wrong_role"
	default:
		return "other"
	}
}

// Registry bundles the tables and the catalog.
type Registry struct {
	Widgets  *Widgets
	Methods  *Methods
	Active   *ActiveMethods
	Catalog  *widget.Catalog
	resolver *Resolver
}

// New returns empty tables over catalog. A nil catalog means the built-in
// widgets.
func New(catalog *widget.Catalog) *Registry {
	if catalog == nil {
		catalog = widget.Builtin()
	}
	r := &Registry{
		Widgets: NewWidgets(WithCatalog(catalog)),
		Methods: NewMethods(),
		Active:  NewActiveMethods(),
		Catalog: catalog,
	}
	r.resolver = NewResolver(r.Widgets, r.Methods, r.Active, r.Catalog)
	return r
}

// Resolver returns the resolver over the registry's tables.
func (r *Registry) Resolver() *Resolver { return r.resolver }
