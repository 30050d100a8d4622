package widget

import (
	"fmt"
	"math"
	"strings"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

// AppletBuiltin is the applet id of the widgets shipped with the tray.
const AppletBuiltin = "nh"

// Built-in widget kinds.
var (
	KindThumb   = Kind{AppletID: AppletBuiltin, Component: "thumb"}
	KindScale   = Kind{AppletID: AppletBuiltin, Component: "scale"}
	KindTotal   = Kind{AppletID: AppletBuiltin, Component: "total"}
	KindAverage = Kind{AppletID: AppletBuiltin, Component: "average"}
)

const scaleMax = 10

// Builtin returns a catalog holding the built-in widgets.
func Builtin() *Catalog {
	c := NewCatalog()
	unbounded := model.FloatKind(-math.MaxFloat64, math.MaxFloat64)
	must := func(k Kind, f Factory) {
		if err := c.Register(k, f); err != nil {
			panic(err)
		}
	}
	must(KindThumb, Factory{
		Name:      "Thumbs up",
		Range:     model.IntegerKind(0, 1),
		NewAssess: func() Assess { return NewThumb(DefaultTheme) },
	})
	must(KindScale, Factory{
		Name:      "Scale",
		Range:     model.IntegerKind(0, scaleMax),
		NewAssess: func() Assess { return NewScale(DefaultTheme, model.IntegerKind(0, scaleMax)) },
	})
	must(KindTotal, Factory{
		Name:       "Total",
		Range:      unbounded,
		NewDisplay: func() Display { return NewTotal(DefaultTheme) },
	})
	must(KindAverage, Factory{
		Name:       "Average",
		Range:      unbounded,
		NewDisplay: func() Display { return NewAverage(DefaultTheme) },
	})
	return c
}

// Thumb is a single on/off input.
type Thumb struct {
	AssessBase
	theme Theme
}

// NewThumb creates an unbound thumb.
func NewThumb(theme Theme) *Thumb {
	return &Thumb{AssessBase: AssessBase{Range: model.IntegerKind(0, 1)}, theme: theme}
}

// View renders ▲ highlighted when the agent gave a thumbs up.
func (w *Thumb) View() string {
	a := w.Assessment()
	if a != nil && a.Value.Number() > 0 {
		return w.theme.style(w.theme.Active).Bold(true).Render("▲ 1")
	}
	return w.theme.style(w.theme.Inactive).Render("△ 0")
}

// Scale is an integer slider.
type Scale struct {
	AssessBase
	theme Theme
}

// NewScale creates an unbound scale over r. r must be an integer range.
func NewScale(theme Theme, r model.RangeKind) *Scale {
	return &Scale{AssessBase: AssessBase{Range: r}, theme: theme}
}

// View renders a bar of filled and empty cells plus the value.
func (w *Scale) View() string {
	lo, hi := int64(0), int64(scaleMax)
	if r := w.Range.Integer; r != nil {
		lo, hi = r.Min, r.Max
	}
	a := w.Assessment()
	if a == nil {
		return w.theme.style(w.theme.Empty).Render(strings.Repeat("□", int(hi-lo)) + " –")
	}
	v := int64(a.Value.Number())
	filled := min(max(v-lo, 0), hi-lo)
	bar := w.theme.style(w.theme.Active).Render(strings.Repeat("■", int(filled))) +
		w.theme.style(w.theme.Inactive).Render(strings.Repeat("□", int(hi-lo-filled)))
	return bar + " " + w.theme.style(w.theme.Value).Render(fmt.Sprintf("%d/%d", v, hi))
}

// Total displays the raw computed value.
type Total struct {
	DisplayBase
	theme Theme
}

// NewTotal creates an unbound total display.
func NewTotal(theme Theme) *Total { return &Total{theme: theme} }

// View renders Σ and the value.
func (w *Total) View() string {
	a := w.Assessment()
	if a == nil {
		return w.theme.style(w.theme.Empty).Render("Σ –")
	}
	return w.theme.style(w.theme.Value).Render("Σ " + a.Value.String())
}

// Average displays the computed value with one decimal.
type Average struct {
	DisplayBase
	theme Theme
}

// NewAverage creates an unbound average display.
func NewAverage(theme Theme) *Average { return &Average{theme: theme} }

// View renders μ and the value.
func (w *Average) View() string {
	a := w.Assessment()
	if a == nil {
		return w.theme.style(w.theme.Empty).Render("μ –")
	}
	return w.theme.style(w.theme.Value).Render(fmt.Sprintf("μ %.1f", a.Value.Number()))
}
