package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a site handler", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()

		Convey("When registering the site handler", func() {
			Register(ctx, mux)

			Convey("Then it should serve the viewer at /", func() {
				req := httptest.NewRequest("GET", "/", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
				So(w.Body.String(), ShouldContainSubstring, "<h1>nh-tray</h1>")
			})

			Convey("And it should serve the script", func() {
				req := httptest.NewRequest("GET", "/app.js", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "/tray?")
				So(w.Body.String(), ShouldContainSubstring, "/contexts?")
			})

			Convey("And it should not find unknown assets", func() {
				req := httptest.NewRequest("GET", "/some-asset", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestSiteMethods(t *testing.T) {
	Convey("Given a registered site", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		Convey("Then writes are not found", func() {
			req := httptest.NewRequest("POST", "/", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then reads are not cached", func() {
			req := httptest.NewRequest("GET", "/app.js", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Header().Get("Cache-Control"), ShouldEqual, "no-store")
		})
	})
}

func TestSiteHandlerWithNilMux(t *testing.T) {
	Convey("Given a nil mux", t, func() {
		So(func() {
			Register(context.Background(), nil)
		}, ShouldPanic)
	})
}
