package config

import (
	"errors"
	"fmt"
)

// TrayFile is the seed data for the registries. Entries refer to each other
// by name; hashes are derived when the service seeds its store.
type TrayFile struct {
	Dimensions   []DimensionSpec   `koanf:"dimensions"`
	Methods      []MethodSpec      `koanf:"methods"`
	ResourceDefs []ResourceDefSpec `koanf:"resource_defs"`
	Trays        []TraySpec        `koanf:"trays"`
	Contexts     []ContextSpec     `koanf:"contexts"`
}

// DimensionSpec declares a dimension and the widgets that render it.
type DimensionSpec struct {
	Name     string  `koanf:"name"`
	Range    string  `koanf:"range"` // integer or float
	Min      float64 `koanf:"min"`
	Max      float64 `koanf:"max"`
	Computed bool    `koanf:"computed"`
	// Assess and Display name widgets in applet/component form or by
	// registration hash.
	Assess  string `koanf:"assess"`
	Display string `koanf:"display"`
}

// MethodSpec declares a method over named dimensions.
type MethodSpec struct {
	Name    string   `koanf:"name"`
	Inputs  []string `koanf:"inputs"`
	Output  string   `koanf:"output"`
	Program string   `koanf:"program"`
}

// ResourceDefSpec declares a resource definition and its active method.
type ResourceDefSpec struct {
	Name         string   `koanf:"name"`
	AppletID     string   `koanf:"applet_id"`
	ResourceName string   `koanf:"resource_name"`
	Dimensions   []string `koanf:"dimensions"`
	ActiveMethod string   `koanf:"active_method"`
	// DefaultTray is rendered when a tray request names none.
	DefaultTray string `koanf:"default_tray"`
}

// TraySpec declares a named tray of controls.
type TraySpec struct {
	Name     string        `koanf:"name"`
	Controls []ControlSpec `koanf:"controls"`
}

// ControlSpec pairs an input dimension with an output dimension. Empty kinds
// fall back to the widgets declared on the dimensions.
type ControlSpec struct {
	Input      string `koanf:"input"`
	InputKind  string `koanf:"input_kind"`
	Output     string `koanf:"output"`
	OutputKind string `koanf:"output_kind"`
}

// ContextSpec declares a cultural context: a filtered, ordered view over
// the resources of one resource definition.
type ContextSpec struct {
	Name        string          `koanf:"name"`
	ResourceDef string          `koanf:"resource_def"`
	Thresholds  []ThresholdSpec `koanf:"thresholds"`
	OrderBy     []OrderSpec     `koanf:"order_by"`
}

// ThresholdSpec keeps resources whose value along Dimension compares to
// Value. Kind is GreaterThan, LessThan or Equal.
type ThresholdSpec struct {
	Dimension string  `koanf:"dimension"`
	Kind      string  `koanf:"kind"`
	Value     float64 `koanf:"value"`
}

// OrderSpec sorts by Dimension. Kind is Biggest or Smallest.
type OrderSpec struct {
	Dimension string `koanf:"dimension"`
	Kind      string `koanf:"kind"`
}

var errUnknownName = errors.New("unknown name")

// DefaultTray is a single thumbs-up dimension summed into a total, and a
// context listing liked posts from the most liked down.
func DefaultTray() TrayFile {
	return TrayFile{
		Dimensions: []DimensionSpec{
			{Name: "likeness", Range: "integer", Min: 0, Max: 1, Assess: "nh/thumb"},
			{Name: "total likeness", Range: "integer", Min: 0, Max: 1_000_000, Computed: true, Display: "nh/total"},
		},
		Methods: []MethodSpec{
			{Name: "total likeness", Inputs: []string{"likeness"}, Output: "total likeness", Program: "SUM"},
		},
		ResourceDefs: []ResourceDefSpec{
			{Name: "post", AppletID: "feed", ResourceName: "post", Dimensions: []string{"likeness", "total likeness"}, ActiveMethod: "total likeness"},
		},
		Trays: []TraySpec{
			{Name: "default", Controls: []ControlSpec{{Input: "likeness", Output: "total likeness"}}},
		},
		Contexts: []ContextSpec{{
			Name:        "most liked",
			ResourceDef: "post",
			Thresholds:  []ThresholdSpec{{Dimension: "total likeness", Kind: "GreaterThan", Value: 0}},
			OrderBy:     []OrderSpec{{Dimension: "total likeness", Kind: "Biggest"}},
		}},
	}
}

// Dimension returns the dimension named name.
func (t TrayFile) Dimension(name string) (DimensionSpec, bool) {
	for _, d := range t.Dimensions {
		if d.Name == name {
			return d, true
		}
	}
	return DimensionSpec{}, false
}

// Validate checks that names are unique and every reference resolves.
// Widget kinds are checked against the catalog when seeding.
func (t TrayFile) Validate() error {
	dims := make(map[string]bool, len(t.Dimensions))
	for _, d := range t.Dimensions {
		if d.Name == "" || dims[d.Name] {
			return fmt.Errorf("dimension %q: empty or duplicate name", d.Name)
		}
		if d.Range != "integer" && d.Range != "float" {
			return fmt.Errorf("dimension %q: range must be integer or float", d.Name)
		}
		if d.Min > d.Max {
			return fmt.Errorf("dimension %q: min above max", d.Name)
		}
		dims[d.Name] = true
	}

	methods := make(map[string]bool, len(t.Methods))
	for _, m := range t.Methods {
		if m.Name == "" || methods[m.Name] {
			return fmt.Errorf("method %q: empty or duplicate name", m.Name)
		}
		if len(m.Inputs) == 0 {
			return fmt.Errorf("method %q: no inputs", m.Name)
		}
		for _, in := range append([]string{m.Output}, m.Inputs...) {
			if !dims[in] {
				return fmt.Errorf("method %q: %w: dimension %q", m.Name, errUnknownName, in)
			}
		}
		methods[m.Name] = true
	}

	trays := make(map[string]bool, len(t.Trays))
	for _, tr := range t.Trays {
		trays[tr.Name] = true
	}

	defs := make(map[string]bool, len(t.ResourceDefs))
	for _, rd := range t.ResourceDefs {
		defs[rd.Name] = true
		if rd.Name == "" {
			return errors.New("resource def with empty name")
		}
		for _, d := range rd.Dimensions {
			if !dims[d] {
				return fmt.Errorf("resource def %q: %w: dimension %q", rd.Name, errUnknownName, d)
			}
		}
		if rd.ActiveMethod != "" && !methods[rd.ActiveMethod] {
			return fmt.Errorf("resource def %q: %w: method %q", rd.Name, errUnknownName, rd.ActiveMethod)
		}
		if rd.DefaultTray != "" && !trays[rd.DefaultTray] {
			return fmt.Errorf("resource def %q: %w: tray %q", rd.Name, errUnknownName, rd.DefaultTray)
		}
	}

	for _, tr := range t.Trays {
		if tr.Name == "" {
			return errors.New("tray with empty name")
		}
		for i, c := range tr.Controls {
			if !dims[c.Input] || !dims[c.Output] {
				return fmt.Errorf("tray %q control %d: %w: dimension", tr.Name, i, errUnknownName)
			}
		}
	}

	contexts := make(map[string]bool, len(t.Contexts))
	for _, c := range t.Contexts {
		if c.Name == "" || contexts[c.Name] {
			return fmt.Errorf("context %q: empty or duplicate name", c.Name)
		}
		contexts[c.Name] = true
		if !defs[c.ResourceDef] {
			return fmt.Errorf("context %q: %w: resource def %q", c.Name, errUnknownName, c.ResourceDef)
		}
		if len(c.OrderBy) == 0 {
			return fmt.Errorf("context %q: no ordering", c.Name)
		}
		for _, th := range c.Thresholds {
			if !dims[th.Dimension] {
				return fmt.Errorf("context %q: %w: dimension %q", c.Name, errUnknownName, th.Dimension)
			}
		}
		for _, o := range c.OrderBy {
			if !dims[o.Dimension] {
				return fmt.Errorf("context %q: %w: dimension %q", c.Name, errUnknownName, o.Dimension)
			}
		}
	}
	return nil
}
