package api

import (
	"net/http"
	"strings"
)

// StatsProvider reports service counters for /stats.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats returns every stat, or only the comma-separated keys named by
// the "keys" parameter. Naming a key the service does not report is a 404.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	stats := h.statsProvider.GetStats()
	raw := strings.TrimSpace(r.URL.Query().Get("keys"))
	if raw == "" {
		writeJSON(w, http.StatusOK, stats)
		return
	}
	picked := make(map[string]interface{})
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		v, ok := stats[k]
		if !ok {
			writeError(w, http.StatusNotFound, "unknown_stat", nil)
			return
		}
		picked[k] = v
	}
	writeJSON(w, http.StatusOK, picked)
}
