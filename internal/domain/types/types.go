// Package types contains the view types shared by the service and its
// outer surfaces.
package types

import "github.com/neighbourhoods/nh-tray/internal/domain/model"

// WidgetView is one rendered widget.
type WidgetView struct {
	DimensionEh model.EntryHash   `json:"dimension_eh"`
	Kind        string            `json:"kind"`
	Assessment  *model.Assessment `json:"assessment"`
	Text        string            `json:"text"`
}

// PairView is one rendered input/output control pair.
type PairView struct {
	Input  WidgetView `json:"input"`
	Output WidgetView `json:"output"`
}

// TrayView is a rendered tray for one resource.
type TrayView struct {
	Name          string          `json:"name"`
	ResourceEh    model.EntryHash `json:"resource_eh"`
	ResourceDefEh model.EntryHash `json:"resource_def_eh"`
	Pairs         []PairView      `json:"pairs"`
}

// Value returns the assessed value as text, or "" when nothing is assessed.
func (w WidgetView) Value() string {
	if w.Assessment == nil {
		return ""
	}
	return w.Assessment.Value.String()
}

// Names maps seeded names to the hashes derived for them.
type Names struct {
	Dimensions   map[string]model.EntryHash `json:"dimensions"`
	Methods      map[string]model.EntryHash `json:"methods"`
	ResourceDefs map[string]model.EntryHash `json:"resource_defs"`
	Trays        []string                   `json:"trays"`
	Contexts     []string                   `json:"contexts"`
}

// RankedResource is one resource in a ranking. Value is the resource's
// value along the first ordering dimension.
type RankedResource struct {
	Rank       int             `json:"rank"`
	ResourceEh model.EntryHash `json:"resource_eh"`
	Value      float64         `json:"value"`
}

// ContextView is the computed result of a cultural context.
type ContextView struct {
	Name      string           `json:"name"`
	Resources []RankedResource `json:"resources"`
}
