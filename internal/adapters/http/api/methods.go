package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

// MethodDependencies defines the interface for active method selection.
type MethodDependencies interface {
	SetActiveMethod(ctx context.Context, resourceDefEh, methodEh model.EntryHash) error
}

// MethodHandler handles active method requests.
type MethodHandler struct {
	deps MethodDependencies
}

// NewMethodHandler creates a new method handler.
func NewMethodHandler(deps MethodDependencies) *MethodHandler {
	return &MethodHandler{deps: deps}
}

type activeMethodRequest struct {
	ResourceDefEh model.EntryHash `json:"resource_def_eh"`
	MethodEh      model.EntryHash `json:"method_eh"`
}

func (a activeMethodRequest) validate() error {
	switch {
	case a.ResourceDefEh.IsZero():
		return errors.New("missing resource_def_eh")
	case a.MethodEh.IsZero():
		return errors.New("missing method_eh")
	}
	return nil
}

// HandlePutActiveMethod handles PUT /active-method requests.
func (h *MethodHandler) HandlePutActiveMethod(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_active_method"
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	var req activeMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.SetActiveMethod(r.Context(), req.ResourceDefEh, req.MethodEh); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
