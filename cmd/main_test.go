package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/neighbourhoods/nh-tray/internal/config"
	"github.com/neighbourhoods/nh-tray/internal/tui"
	"github.com/neighbourhoods/nh-tray/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestFlags(t *testing.T) {
	convey.Convey("Given command line flags", t, func() {
		convey.Convey("When none are given", func() {
			o, err := parseFlags(nil)

			convey.Convey("Then TUI defaults apply", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(o.tui, convey.ShouldBeFalse)
				convey.So(o.resourceDef, convey.ShouldEqual, "post")
				convey.So(o.resources, convey.ShouldResemble, []string{"post-1", "post-2", "post-3"})
			})
		})

		convey.Convey("When flags override the config", func() {
			o, err := parseFlags([]string{"--addr", ":7000", "--log-level", "debug", "--resource", "a,b", "--tui"})
			convey.So(err, convey.ShouldBeNil)
			cfg, err := loadConfig(context.Background(), o)

			convey.Convey("Then the flags win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7000")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(o.resources, convey.ShouldResemble, []string{"a", "b"})
				convey.So(o.tui, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a flag value is invalid", func() {
			o, err := parseFlags([]string{"--log-level", "loud"})
			convey.So(err, convey.ShouldBeNil)
			_, err = loadConfig(context.Background(), o)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When an unknown flag is given", func() {
			_, err := parseFlags([]string{"--nope"})
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestWiring(t *testing.T) {
	convey.Convey("Given a started and seeded service", t, func() {
		_ = logger.Init()
		ctx := context.Background()
		cfg := config.New()
		svc := newService(cfg, logger.Nop())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()
		convey.So(svc.Seed(ctx, cfg.Tray), convey.ShouldBeNil)
		mux := newMux(ctx, svc)

		convey.Convey("Then API, docs and viewer routes are served", func() {
			for _, path := range []string{"/healthz", "/names", "/widgets", "/openapi.yaml", "/api-docs", "/"} {
				req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then TUI rows open for every resource", func() {
			o, err := parseFlags([]string{"--resource", "x, y"})
			convey.So(err, convey.ShouldBeNil)
			rows, err := openRows(ctx, svc, o, tui.NewNotifier())
			convey.So(err, convey.ShouldBeNil)
			defer closeRows(rows)
			convey.So(rows, convey.ShouldHaveLength, 2)
			convey.So(rows[1].Name, convey.ShouldEqual, "y")
			convey.So(rows[0].Surface.View(), convey.ShouldNotBeNil)
		})

		convey.Convey("Then an unknown resource definition fails", func() {
			o, err := parseFlags([]string{"--resource-def", "comment"})
			convey.So(err, convey.ShouldBeNil)
			_, err = openRows(ctx, svc, o, tui.NewNotifier())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given the sqlite store", t, func() {
		cfg := config.New()
		cfg.Store = config.StoreSQLite
		cfg.SQLitePath = filepath.Join(t.TempDir(), "tray.db")
		svc := newService(cfg, logger.Nop())
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		svc.Stop()

		_, err := os.Stat(cfg.SQLitePath)
		convey.So(err, convey.ShouldBeNil)
	})
}

func TestSetupLogging(t *testing.T) {
	convey.Convey("Given the TUI with a log file", t, func() {
		path := filepath.Join(t.TempDir(), "tray.log")
		closer, err := setupLogging(options{tui: true, logFile: path})
		convey.So(err, convey.ShouldBeNil)
		convey.So(closer, convey.ShouldNotBeNil)
		logger.Get().Info(context.Background(), "to file")
		convey.So(closer.Close(), convey.ShouldBeNil)

		raw, err := os.ReadFile(path)
		convey.So(err, convey.ShouldBeNil)
		convey.So(string(raw), convey.ShouldContainSubstring, "to file")
		convey.So(logger.Init(), convey.ShouldBeNil)
	})
}
