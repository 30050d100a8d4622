package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/neighbourhoods/nh-tray/internal/delegate"
	"github.com/neighbourhoods/nh-tray/internal/domain/dedupe"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	kindIdempotentInput  = "idempotent_request"
)

// AssessmentDependencies defines the interface for assessment reads and
// writes.
type AssessmentDependencies interface {
	CreateAssessment(ctx context.Context, b delegate.Binding, value model.RangeValue) (model.Record[model.Assessment], error)
	LatestAssessment(ctx context.Context, b delegate.Binding, mine bool) (*model.Assessment, error)
}

// AssessmentHandler handles assessment requests. Writes carrying an
// Idempotency-Key header are recorded once; a retry with the same key and
// body replays the first record.
type AssessmentHandler struct {
	deps AssessmentDependencies
	keys *dedupe.Cache[model.Record[model.Assessment]]
}

// NewAssessmentHandler creates a new assessment handler.
func NewAssessmentHandler(deps AssessmentDependencies) *AssessmentHandler {
	return &AssessmentHandler{deps: deps, keys: dedupe.New[model.Record[model.Assessment]]()}
}

type latestResponse struct {
	Assessment *model.Assessment `json:"assessment"`
}

// HandlePostAssessment handles POST /assessments requests.
func (h *AssessmentHandler) HandlePostAssessment(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_assessment"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req model.CreateAssessmentInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if key != "" {
		fingerprint, err := model.HashEntry(kindIdempotentInput, req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		prev, state := h.keys.Begin(key, fingerprint.String())
		switch state {
		case dedupe.Done:
			w.Header().Set(replayedHeader, "true")
			writeJSON(w, http.StatusOK, prev)
			return
		case dedupe.InFlight:
			writeError(w, http.StatusConflict, "in_flight", WrapKind(op, ErrConflict, errors.New("request with this key is in progress")))
			return
		case dedupe.Conflict:
			writeError(w, http.StatusUnprocessableEntity, "idempotency_conflict", WrapKind(op, ErrConflict, errors.New("key reused for a different request")))
			return
		}
	}

	rec, err := h.deps.CreateAssessment(r.Context(), delegate.Binding{
		ResourceEh:    req.ResourceEh,
		ResourceDefEh: req.ResourceDefEh,
		DimensionEh:   req.DimensionEh,
	}, req.Value)
	if err != nil {
		if key != "" {
			h.keys.Abort(key)
		}
		writeServiceError(w, err)
		return
	}
	if key != "" {
		h.keys.Complete(key, rec)
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleGetLatest handles GET /assessments/latest requests. With mine=true
// only the local agent's assessments count. A null assessment means nothing
// was assessed or the read failed.
func (h *AssessmentHandler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_latest"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	resource, err := hashParam(q, "resource_eh")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	dimension, err := hashParam(q, "dimension_eh")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	mine := false
	if raw := q.Get("mine"); raw != "" {
		if mine, err = strconv.ParseBool(raw); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("invalid mine")))
			return
		}
	}

	a, err := h.deps.LatestAssessment(r.Context(), delegate.Binding{ResourceEh: resource, DimensionEh: dimension}, mine)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, latestResponse{Assessment: a})
}
