package tray_test

import (
	"context"
	"errors"
	"testing"

	"github.com/neighbourhoods/nh-tray/internal/adapters/repository"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/registry"
	"github.com/neighbourhoods/nh-tray/internal/tray"
	"github.com/neighbourhoods/nh-tray/internal/widget"
	"github.com/neighbourhoods/nh-tray/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	resource    = model.MustHashEntry(model.KindResource, "post-1")
	resourceDef = model.MustHashEntry(model.KindResourceDef, "posts")
	likeness    = model.MustHashEntry(model.KindDimension, "likeness")
	totalLikes  = model.MustHashEntry(model.KindDimension, "total likeness")
	urgency     = model.MustHashEntry(model.KindDimension, "urgency")
	avgUrgency  = model.MustHashEntry(model.KindDimension, "average urgency")
	sumMethod   = model.MustHashEntry(model.KindMethod, "sum")
	avgMethod   = model.MustHashEntry(model.KindMethod, "avg")
)

func leases() float64 { return testutil.ToFloat64(metrics.Global().LeasesActive()) }

func TestFromTrayConfig(t *testing.T) {
	Convey("Given a stored tray config", t, func() {
		tc := model.AssessmentTrayConfig{Name: "default", Controls: []model.AssessmentControlConfig{{
			Input:  model.AssessmentWidgetConfig{DimensionEh: likeness, AppletID: "nh", ComponentName: "thumb"},
			Output: model.AssessmentWidgetConfig{DimensionEh: totalLikes, AppletID: "nh", ComponentName: "total"},
		}}}

		catalog := widget.Builtin()

		Convey("When it addresses widgets by component", func() {
			cfg, err := tray.FromTrayConfig(tc, catalog)

			Convey("Then each control becomes a slot", func() {
				So(err, ShouldBeNil)
				So(cfg.Name, ShouldEqual, "default")
				So(cfg.Slots, ShouldHaveLength, 1)
				So(cfg.Slots[0].InputKind, ShouldResemble, widget.KindThumb)
				So(cfg.Slots[0].OutputKind, ShouldResemble, widget.KindTotal)
				So(cfg.OutputDimensions(), ShouldResemble, []model.EntryHash{totalLikes})
			})
		})

		Convey("When a control is addressed by registration hash", func() {
			reg, err := catalog.RegistrationHash(widget.KindThumb)
			So(err, ShouldBeNil)
			tc.Controls[0].Input = model.AssessmentWidgetConfig{DimensionEh: likeness, RegistrationEh: &reg}
			cfg, err := tray.FromTrayConfig(tc, catalog)

			Convey("Then the hash resolves to the registered widget", func() {
				So(err, ShouldBeNil)
				So(cfg.Slots[0].InputKind, ShouldResemble, widget.KindThumb)
				So(cfg.Slots[0].InputDimension, ShouldEqual, likeness)
			})
		})

		Convey("When a control names an unknown registration", func() {
			reg := model.MustHashEntry(model.KindRegistration, "gone")
			tc.Controls[0].Output = model.AssessmentWidgetConfig{DimensionEh: totalLikes, RegistrationEh: &reg}
			_, err := tray.FromTrayConfig(tc, catalog)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, tray.ErrInvalidConfig), ShouldBeTrue)
				So(errors.Is(err, widget.ErrUnknownRegistration), ShouldBeTrue)
			})
		})

		Convey("When the config has no name", func() {
			tc.Name = ""
			_, err := tray.FromTrayConfig(tc, catalog)
			So(errors.Is(err, tray.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestRender(t *testing.T) {
	Convey("Given a tray with two slots and an output only for the first", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		cfg := tray.Config{Name: "default", Slots: []tray.Slot{
			{InputDimension: likeness, InputKind: widget.KindThumb, OutputDimension: totalLikes, OutputKind: widget.KindTotal},
			{InputDimension: urgency, InputKind: widget.KindScale, OutputDimension: avgUrgency, OutputKind: widget.KindAverage},
		}}
		outputs := map[model.EntryHash]*model.Assessment{
			totalLikes: {Value: model.IntegerValue(4), DimensionEh: totalLikes, ResourceEh: resource},
		}
		deps := tray.Deps{Backend: store, Catalog: widget.Builtin()}
		before := leases()

		tr, err := tray.Render(ctx, cfg, tray.Binding{ResourceEh: resource, ResourceDefEh: resourceDef}, outputs, deps)
		So(err, ShouldBeNil)

		Convey("Then every slot has one input and one output widget", func() {
			So(tr.Pairs, ShouldHaveLength, 2)
			So(tr.Pairs[0].InputDimension, ShouldEqual, likeness)
			So(tr.Pairs[1].OutputDimension, ShouldEqual, avgUrgency)
			So(leases(), ShouldEqual, before+2)
		})

		Convey("Then outputs come from the map and are nil when absent", func() {
			So(tr.Pairs[0].Output.Assessment().Value.String(), ShouldEqual, "4")
			So(tr.Pairs[1].Output.Assessment(), ShouldBeNil)
			So(tr.Pairs[1].Output.View(), ShouldContainSubstring, "μ –")
		})

		Convey("When the first input commits", func() {
			err := tr.Pairs[0].Input.Commit(ctx, model.IntegerValue(1))

			Convey("Then the widget shows the new value", func() {
				So(err, ShouldBeNil)
				So(tr.Pairs[0].Input.Assessment().Value.String(), ShouldEqual, "1")
				So(tr.Pairs[1].Input.Assessment(), ShouldBeNil)
			})
		})

		Convey("When the tray is closed", func() {
			tr.Close()
			tr.Close()

			Convey("Then leases are released and inputs refuse commits", func() {
				So(leases(), ShouldEqual, before)
				So(errors.Is(tr.Pairs[0].Input.Commit(ctx, model.IntegerValue(1)), widget.ErrClosed), ShouldBeTrue)
			})
		})

		Reset(func() { tr.Close() })
	})

	Convey("Given a slot with an unknown widget kind", t, func() {
		before := leases()
		cfg := tray.Config{Name: "broken", Slots: []tray.Slot{
			{InputDimension: likeness, InputKind: widget.KindThumb, OutputDimension: totalLikes, OutputKind: widget.KindTotal},
			{InputDimension: urgency, InputKind: widget.Kind{AppletID: "x", Component: "y"}, OutputDimension: avgUrgency, OutputKind: widget.KindAverage},
		}}
		_, err := tray.Render(context.Background(), cfg, tray.Binding{ResourceEh: resource, ResourceDefEh: resourceDef}, nil,
			tray.Deps{Backend: repository.NewMemoryStore(), Catalog: widget.Builtin()})

		Convey("Then rendering fails and nothing stays leased", func() {
			So(errors.Is(err, registry.ErrResolution), ShouldBeTrue)
			So(errors.Is(err, widget.ErrUnknownKind), ShouldBeTrue)
			So(leases(), ShouldEqual, before)
		})
	})
}

func newRegistry() *registry.Registry {
	reg := registry.New(nil)
	_ = reg.Methods.Register(sumMethod, model.Method{Name: "sum", InputDimensions: []model.EntryHash{likeness}, OutputDimension: totalLikes})
	_ = reg.Methods.Register(avgMethod, model.Method{Name: "avg", InputDimensions: []model.EntryHash{urgency}, OutputDimension: avgUrgency})
	reg.Widgets.Register(likeness, registry.Entry{Assess: widget.KindThumb})
	reg.Widgets.Register(totalLikes, registry.Entry{Display: widget.KindTotal})
	reg.Widgets.Register(urgency, registry.Entry{Assess: widget.KindScale})
	reg.Widgets.Register(avgUrgency, registry.Entry{Display: widget.KindAverage})
	return reg
}

func storeOutput(ctx context.Context, store *repository.MemoryStore, dim model.EntryHash, v int64) {
	_, err := store.CreateAssessment(ctx, model.CreateAssessmentInput{
		Value: model.IntegerValue(v), DimensionEh: dim, ResourceEh: resource, ResourceDefEh: resourceDef,
	})
	So(err, ShouldBeNil)
}

func TestSurface(t *testing.T) {
	Convey("Given a registry where sum is active for posts", t, func() {
		ctx := context.Background()
		reg := newRegistry()
		reg.Active.Set(resourceDef, sumMethod)
		store := repository.NewMemoryStore()
		storeOutput(ctx, store, totalLikes, 5)
		before := leases()

		rebinds := 0
		s, err := tray.Open(ctx, reg.Resolver(), reg.Active, store, resource, resourceDef,
			tray.WithOnRebind(func() { rebinds++ }))
		So(err, ShouldBeNil)

		Convey("Then the widgets of the active method are bound", func() {
			v := s.View()
			So(v.Resolution.MethodEh, ShouldEqual, sumMethod)
			So(v.Input.Assessment(), ShouldBeNil)
			So(v.Output.Assessment().Value.String(), ShouldEqual, "5")
			So(leases(), ShouldEqual, before+2)
			So(s.Err(), ShouldBeNil)
		})

		Convey("Then only the input widget carries the method", func() {
			type contextual interface{ Context() widget.Context }
			v := s.View()
			in, ok := v.Input.(contextual)
			So(ok, ShouldBeTrue)
			So(in.Context().MethodEh, ShouldEqual, sumMethod)
			out, ok := v.Output.(contextual)
			So(ok, ShouldBeTrue)
			So(out.Context().MethodEh.IsZero(), ShouldBeTrue)
			So(out.Context().DimensionEh, ShouldEqual, totalLikes)
		})

		Convey("When the input commits after the output changed", func() {
			storeOutput(ctx, store, totalLikes, 8)
			So(s.View().Input.Commit(ctx, model.IntegerValue(1)), ShouldBeNil)

			Convey("Then the output is refreshed", func() {
				So(s.View().Input.Assessment().Value.String(), ShouldEqual, "1")
				So(s.View().Output.Assessment().Value.String(), ShouldEqual, "8")
			})
		})

		Convey("When the active method changes", func() {
			old := s.View()
			reg.Active.Set(resourceDef, avgMethod)

			Convey("Then the old pair is released and the new one bound", func() {
				So(rebinds, ShouldEqual, 1)
				So(s.View().Resolution.MethodEh, ShouldEqual, avgMethod)
				So(s.View().Resolution.Input.DimensionEh, ShouldEqual, urgency)
				So(errors.Is(old.Input.Commit(ctx, model.IntegerValue(1)), widget.ErrClosed), ShouldBeTrue)
				So(leases(), ShouldEqual, before+2)
			})
		})

		Convey("When the new method cannot be resolved", func() {
			broken := model.MustHashEntry(model.KindMethod, "broken")
			reg.Active.Set(resourceDef, broken)

			Convey("Then the surface shows nothing and reports the error", func() {
				So(s.View(), ShouldBeNil)
				So(errors.Is(s.Err(), registry.ErrResolution), ShouldBeTrue)
				So(errors.Is(s.Err(), registry.ErrMethodNotFound), ShouldBeTrue)
				So(leases(), ShouldEqual, before)
			})

			Convey("Then it recovers once a resolvable method is active again", func() {
				reg.Active.Set(resourceDef, sumMethod)
				So(s.Err(), ShouldBeNil)
				So(s.View().Resolution.MethodEh, ShouldEqual, sumMethod)
			})
		})

		Convey("When the surface is closed", func() {
			s.Close()
			reg.Active.Set(resourceDef, avgMethod)

			Convey("Then it stops following the active method", func() {
				So(s.View(), ShouldBeNil)
				So(errors.Is(s.Err(), tray.ErrClosed), ShouldBeTrue)
				So(rebinds, ShouldEqual, 0)
				So(leases(), ShouldEqual, before)
			})
		})

		Reset(func() { s.Close() })
	})

	Convey("Given a resource definition without an active method", t, func() {
		reg := newRegistry()
		before := leases()
		_, err := tray.Open(context.Background(), reg.Resolver(), reg.Active, repository.NewMemoryStore(), resource, resourceDef)

		Convey("Then Open fails without leasing anything", func() {
			So(errors.Is(err, registry.ErrNoActiveMethod), ShouldBeTrue)
			So(leases(), ShouldEqual, before)
		})
	})
}
