package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

// TrayDependencies defines the interface for tray rendering.
type TrayDependencies interface {
	// RenderTray renders the default tray of resourceDefEh when name is empty.
	RenderTray(ctx context.Context, name string, resourceEh, resourceDefEh model.EntryHash) (TrayView, error)
	SetDefaultTray(ctx context.Context, resourceDefEh model.EntryHash, name string) error
}

// TrayHandler handles tray requests.
type TrayHandler struct {
	deps TrayDependencies
}

// NewTrayHandler creates a new tray handler.
func NewTrayHandler(deps TrayDependencies) *TrayHandler {
	return &TrayHandler{deps: deps}
}

// HandleGetTray handles GET /tray?name=&resource_eh=&resource_def_eh=
// requests.
func (h *TrayHandler) HandleGetTray(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_tray"
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
	resourceDef, err := hashParam(q, "resource_def_eh")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	view, err := h.deps.RenderTray(r.Context(), strings.TrimSpace(q.Get("name")), resource, resourceDef)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type defaultTrayRequest struct {
	ResourceDefEh model.EntryHash `json:"resource_def_eh"`
	Name          string          `json:"name"`
}

// HandlePutDefaultTray handles PUT /default-tray requests.
func (h *TrayHandler) HandlePutDefaultTray(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_default_tray"
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	var req defaultTrayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.ResourceDefEh.IsZero():
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing resource_def_eh")))
		return
	case req.Name == "":
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing name")))
		return
	}
	if err := h.deps.SetDefaultTray(r.Context(), req.ResourceDefEh, req.Name); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
