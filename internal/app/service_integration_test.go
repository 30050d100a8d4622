package service_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/neighbourhoods/nh-tray/internal/app"
	"github.com/neighbourhoods/nh-tray/internal/config"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/tray"
	. "github.com/smartystreets/goconvey/convey"
)

// twoMethods adds an average over a scale dimension next to the default sum.
func twoMethods() config.TrayFile {
	tf := config.DefaultTray()
	tf.Dimensions = append(tf.Dimensions,
		config.DimensionSpec{Name: "urgency", Range: "integer", Min: 0, Max: 10, Assess: "nh/scale"},
		config.DimensionSpec{Name: "average urgency", Range: "float", Min: 0, Max: 10, Computed: true, Display: "nh/average"},
	)
	tf.Methods = append(tf.Methods, config.MethodSpec{
		Name: "average urgency", Inputs: []string{"urgency"}, Output: "average urgency", Program: "AVG",
	})
	tf.ResourceDefs[0].Dimensions = append(tf.ResourceDefs[0].Dimensions, "urgency", "average urgency")
	return tf
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a started service with two methods for posts", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		svc := service.New()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(svc.Seed(ctx, twoMethods()), ShouldBeNil)

		names := svc.Names()
		post, err := svc.ResourceDef("post")
		So(err, ShouldBeNil)
		pool, err := svc.Scheduler()
		So(err, ShouldBeNil)
		resource := service.ResourceHash("post-1")

		var rebinds atomic.Int32
		surface, err := svc.OpenSurface(ctx, resource, post, tray.WithOnRebind(func() { rebinds.Add(1) }))
		So(err, ShouldBeNil)
		defer surface.Close()

		Convey("When the surface input commits", func() {
			So(surface.View().Input.Commit(ctx, model.IntegerValue(1)), ShouldBeNil)
			// The input callback schedules the output refresh, so drain twice.
			So(pool.Flush(ctx), ShouldBeNil)
			So(pool.Flush(ctx), ShouldBeNil)

			Convey("Then both widgets show the new values via the task loop", func() {
				So(surface.View().Input.Assessment().Value.String(), ShouldEqual, "1")
				So(surface.View().Output.Assessment().Value.String(), ShouldEqual, "1")
			})
		})

		Convey("When the active method is switched", func() {
			So(svc.SetActiveMethod(ctx, post, names.Methods["average urgency"]), ShouldBeNil)

			Convey("Then the surface rebinds to the new dimensions", func() {
				So(rebinds.Load(), ShouldEqual, 1)
				So(surface.Err(), ShouldBeNil)
				v := surface.View()
				So(v.Resolution.Input.DimensionEh, ShouldEqual, names.Dimensions["urgency"])
				So(v.Resolution.Output.DimensionEh, ShouldEqual, names.Dimensions["average urgency"])
			})

			Convey("And committing averages into a float output", func() {
				So(surface.View().Input.Commit(ctx, model.IntegerValue(7)), ShouldBeNil)
				So(pool.Flush(ctx), ShouldBeNil)
				So(pool.Flush(ctx), ShouldBeNil)
				So(surface.View().Output.Assessment().Value.String(), ShouldEqual, "7")
			})
		})
	})
}

func TestServiceSQLite(t *testing.T) {
	Convey("Given a service on a SQLite file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "tray.db")

		svc := service.New(service.WithSQLite(path), service.WithAgent("alice"))
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Seed(ctx, config.DefaultTray()), ShouldBeNil)
		methodEh := svc.Names().Methods["total likeness"]
		post, _ := svc.ResourceDef("post")
		resource := service.ResourceHash("post-1")
		view, err := svc.RenderTray(ctx, "default", resource, post)
		So(err, ShouldBeNil)
		So(view.Pairs, ShouldHaveLength, 1)
		svc.Stop()

		Convey("When a new service opens the same file", func() {
			again := service.New(service.WithSQLite(path), service.WithAgent("alice"))
			So(again.Start(ctx), ShouldBeNil)
			defer again.Stop()

			Convey("Then stored methods are back in the registry before seeding", func() {
				dims, err := again.Registry().Methods.Dimensions(methodEh)
				So(err, ShouldBeNil)
				So(dims.Output, ShouldNotEqual, dims.Input)
				So(again.GetStats()["dimensions"], ShouldEqual, 2)
			})
		})
	})
}
