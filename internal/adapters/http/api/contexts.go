package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/types"
)

// ContextDependencies defines the interface for cultural contexts and
// rankings.
type ContextDependencies interface {
	ComputeContext(ctx context.Context, name string, resources []model.EntryHash, limit int) (types.ContextView, error)
	Ranking(ctx context.Context, dimension model.EntryHash, limit int) ([]types.RankedResource, error)
}

// ContextHandler handles context and ranking reads.
type ContextHandler struct {
	deps ContextDependencies
}

// NewContextHandler creates a new context handler.
func NewContextHandler(deps ContextDependencies) *ContextHandler {
	return &ContextHandler{deps: deps}
}

type rankingResponse struct {
	DimensionEh model.EntryHash        `json:"dimension_eh"`
	Resources   []types.RankedResource `json:"resources"`
}

// limitParam parses the optional limit. Zero means the service default.
func limitParam(q url.Values) (int, error) {
	raw := strings.TrimSpace(q.Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}

// HandleGetContext handles GET /contexts?name=&limit=&resource_eh= requests.
// resource_eh may repeat; without it every assessed resource is a candidate.
func (h *ContextHandler) HandleGetContext(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_context"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing name")))
		return
	}
	limit, err := limitParam(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	var resources []model.EntryHash
	for _, raw := range q["resource_eh"] {
		h, err := model.ParseHash(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("invalid resource_eh")))
			return
		}
		resources = append(resources, h)
	}

	view, err := h.deps.ComputeContext(r.Context(), name, resources, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleGetRanking handles GET /ranking?dimension_eh=&limit= requests.
func (h *ContextHandler) HandleGetRanking(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_ranking"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	dimension, err := hashParam(q, "dimension_eh")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	limit, err := limitParam(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	ranked, err := h.deps.Ranking(r.Context(), dimension, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rankingResponse{DimensionEh: dimension, Resources: ranked})
}
