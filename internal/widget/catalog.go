package widget

import (
	"fmt"
	"sort"
	"sync"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

// Factory constructs fresh widget instances of one kind. Exactly one of
// NewAssess and NewDisplay is set.
type Factory struct {
	Name       string
	Range      model.RangeKind
	NewAssess  func() Assess
	NewDisplay func() Display
}

// Role reports which constructor the factory carries.
func (f Factory) Role() Role {
	if f.NewAssess != nil {
		return RoleAssess
	}
	return RoleDisplay
}

func (f Factory) validate() error {
	if (f.NewAssess == nil) == (f.NewDisplay == nil) {
		return fmt.Errorf("%w: %q must have exactly one constructor", ErrInvalidFactory, f.Name)
	}
	return nil
}

// Catalog maps widget kinds to factories. Every registration is also
// addressable by its entry hash. It is safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
	hashes    map[Kind]model.EntryHash
	byHash    map[model.EntryHash]Kind
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[Kind]Factory),
		hashes:    make(map[Kind]model.EntryHash),
		byHash:    make(map[model.EntryHash]Kind),
	}
}

// Register adds or replaces the factory for k. A replaced factory's old
// registration hash stops resolving.
func (c *Catalog) Register(k Kind, f Factory) error {
	if k.AppletID == "" || k.Component == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKind, k.String())
	}
	if err := f.validate(); err != nil {
		return err
	}
	eh, err := model.HashEntry(model.KindRegistration, registration(k, f))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidFactory, k, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.hashes[k]; ok {
		delete(c.byHash, old)
	}
	c.factories[k] = f
	c.hashes[k] = eh
	c.byHash[eh] = k
	return nil
}

func registration(k Kind, f Factory) model.AssessmentControlRegistration {
	return model.AssessmentControlRegistration{
		AppletID:   k.AppletID,
		ControlKey: k.Component,
		Name:       f.Name,
		RangeKind:  f.Range,
		Kind:       string(f.Role()),
	}
}

// RegistrationHash returns the entry hash addressing k.
func (c *Catalog) RegistrationHash(k Kind) (model.EntryHash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	eh, ok := c.hashes[k]
	if !ok {
		return model.EntryHash{}, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	return eh, nil
}

// KindOf returns the kind registered under eh.
func (c *Catalog) KindOf(eh model.EntryHash) (Kind, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.byHash[eh]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %s", ErrUnknownRegistration, eh.Short())
	}
	return k, nil
}

// KindFor returns the kind a widget config addresses, by registration hash
// or by applet component.
func (c *Catalog) KindFor(cfg model.AssessmentWidgetConfig) (Kind, error) {
	if cfg.RegistrationEh != nil {
		return c.KindOf(*cfg.RegistrationEh)
	}
	return FromConfig(cfg)
}

// Lookup returns the factory for k.
func (c *Catalog) Lookup(k Kind) (Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[k]
	if !ok {
		return Factory{}, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	return f, nil
}

// Assess returns the input constructor for k.
func (c *Catalog) Assess(k Kind) (func() Assess, error) {
	f, err := c.Lookup(k)
	if err != nil {
		return nil, err
	}
	if f.NewAssess == nil {
		return nil, fmt.Errorf("%w: %s is a %s widget", ErrWrongRole, k, f.Role())
	}
	return f.NewAssess, nil
}

// Display returns the output constructor for k.
func (c *Catalog) Display(k Kind) (func() Display, error) {
	f, err := c.Lookup(k)
	if err != nil {
		return nil, err
	}
	if f.NewDisplay == nil {
		return nil, fmt.Errorf("%w: %s is a %s widget", ErrWrongRole, k, f.Role())
	}
	return f.NewDisplay, nil
}

// Kinds returns every registered kind, sorted.
func (c *Catalog) Kinds() []Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Kind, 0, len(c.factories))
	for k := range c.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Registrations describes every registered widget the way applets announce
// their controls, with the hash each one is addressed by.
func (c *Catalog) Registrations() []model.RegisteredControl {
	kinds := c.Kinds()
	out := make([]model.RegisteredControl, 0, len(kinds))
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, k := range kinds {
		out = append(out, model.RegisteredControl{
			RegistrationEh:                c.hashes[k],
			AssessmentControlRegistration: registration(k, c.factories[k]),
		})
	}
	return out
}
