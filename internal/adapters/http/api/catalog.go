package api

import (
	"errors"
	"net/http"
	"strings"

	service "github.com/neighbourhoods/nh-tray/internal/app"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
)

// CatalogDependencies defines the interface for catalog reads.
type CatalogDependencies interface {
	Widgets() []model.RegisteredControl
	Names() Names
}

// CatalogHandler handles widget and name listings.
type CatalogHandler struct {
	deps CatalogDependencies
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(deps CatalogDependencies) *CatalogHandler {
	return &CatalogHandler{deps: deps}
}

// HandleGetWidgets handles GET /widgets requests.
func (h *CatalogHandler) HandleGetWidgets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Widgets())
}

// HandleGetNames handles GET /names requests.
func (h *CatalogHandler) HandleGetNames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Names())
}

type resourceHashResponse struct {
	Name       string          `json:"name"`
	ResourceEh model.EntryHash `json:"resource_eh"`
}

// HandleGetResourceHash handles GET /resources/hash requests. Resources are
// addressed by the hash of their name.
func (h *CatalogHandler) HandleGetResourceHash(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_resource_hash"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing name")))
		return
	}
	writeJSON(w, http.StatusOK, resourceHashResponse{Name: name, ResourceEh: service.ResourceHash(name)})
}
