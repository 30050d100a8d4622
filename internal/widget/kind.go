// Package widget defines assessment widgets: the tagged kinds that name
// them, the catalog that constructs them, the base behaviour every widget
// shares, and the built-in widgets.
package widget

import (
	"fmt"
	"strings"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

// Kind names a widget implementation exposed by an applet.
type Kind struct {
	AppletID  string `json:"applet_id"`
	Component string `json:"component"`
}

// String returns applet/component.
func (k Kind) String() string {
	return k.AppletID + "/" + k.Component
}

// IsZero reports whether k is unset.
func (k Kind) IsZero() bool {
	return k.AppletID == "" && k.Component == ""
}

// ParseKind parses the String form.
func ParseKind(s string) (Kind, error) {
	applet, component, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || applet == "" || component == "" || strings.Contains(component, "/") {
		return Kind{}, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return Kind{AppletID: applet, Component: component}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// FromConfig returns the kind addressed by an applet/component widget
// config. Configs addressed by registration hash resolve through
// Catalog.KindFor instead.
func FromConfig(c model.AssessmentWidgetConfig) (Kind, error) {
	if c.AppletID == "" || c.ComponentName == "" {
		return Kind{}, fmt.Errorf("%w: config for dimension %s has no applet component", ErrInvalidKind, c.DimensionEh.Short())
	}
	return Kind{AppletID: c.AppletID, Component: c.ComponentName}, nil
}

// Role distinguishes input widgets from display widgets.
type Role string

// Widget roles, matching the registration kind names.
const (
	RoleAssess  Role = "input"
	RoleDisplay Role = "output"
)

// Context is what a widget is told about the pair it renders.
type Context struct {
	ResourceEh    model.EntryHash
	ResourceDefEh model.EntryHash
	DimensionEh   model.EntryHash
	// MethodEh is only set for input widgets.
	MethodEh model.EntryHash
}
