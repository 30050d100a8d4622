package api

import (
	"net/http"
	"strings"

	"github.com/neighbourhoods/nh-tray/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler serves the liveness probe and the metrics exposition.
type HealthHandler struct {
	exposition http.Handler
}

// NewHealthHandler creates a health handler over the process metrics registry.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		exposition: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{EnableOpenMetrics: true}),
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

// HandleHealth handles GET /healthz. Clients asking for JSON get a liveness
// body; everything else gets the Prometheus exposition.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.exposition.ServeHTTP(w, r)
}
