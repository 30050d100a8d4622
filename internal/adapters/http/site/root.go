// Package site serves the embedded tray viewer.
package site

import (
	"context"
	"net/http"
)

// Register attaches the viewer to mux as the catch-all route. The viewer
// reads live data, so responses are never cached.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	files := http.FileServer(FS())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		files.ServeHTTP(w, r)
	})
}
