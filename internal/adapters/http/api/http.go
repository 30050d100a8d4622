// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/neighbourhoods/nh-tray/internal/adapters/repository"
	service "github.com/neighbourhoods/nh-tray/internal/app"
	"github.com/neighbourhoods/nh-tray/internal/delegate"
	"github.com/neighbourhoods/nh-tray/internal/domain/model"
	"github.com/neighbourhoods/nh-tray/internal/domain/types"
	"github.com/neighbourhoods/nh-tray/internal/registry"
	"github.com/neighbourhoods/nh-tray/internal/widget"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	AssessmentDependencies
	TrayDependencies
	MethodDependencies
	CatalogDependencies
	ContextDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	assessmentHandler *AssessmentHandler
	trayHandler       *TrayHandler
	methodHandler     *MethodHandler
	catalogHandler    *CatalogHandler
	contextHandler    *ContextHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		assessmentHandler: NewAssessmentHandler(deps),
		trayHandler:       NewTrayHandler(deps),
		methodHandler:     NewMethodHandler(deps),
		catalogHandler:    NewCatalogHandler(deps),
		contextHandler:    NewContextHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/assessments/latest", MetricsMiddleware(s.assessmentHandler.HandleGetLatest, "assessments_latest"))
	mux.HandleFunc("/assessments", MetricsMiddleware(s.assessmentHandler.HandlePostAssessment, "assessments"))
	mux.HandleFunc("/tray", MetricsMiddleware(s.trayHandler.HandleGetTray, "tray"))
	mux.HandleFunc("/default-tray", MetricsMiddleware(s.trayHandler.HandlePutDefaultTray, "default_tray"))
	mux.HandleFunc("/active-method", MetricsMiddleware(s.methodHandler.HandlePutActiveMethod, "active_method"))
	mux.HandleFunc("/widgets", MetricsMiddleware(s.catalogHandler.HandleGetWidgets, "widgets"))
	mux.HandleFunc("/names", MetricsMiddleware(s.catalogHandler.HandleGetNames, "names"))
	mux.HandleFunc("/resources/hash", MetricsMiddleware(s.catalogHandler.HandleGetResourceHash, "resource_hash"))
	mux.HandleFunc("/contexts", MetricsMiddleware(s.contextHandler.HandleGetContext, "contexts"))
	mux.HandleFunc("/ranking", MetricsMiddleware(s.contextHandler.HandleGetRanking, "ranking"))
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, RequestID: w.Header().Get(requestIDHeader)})
}

// writeServiceError maps a service error to a status and code.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, model.ErrInvalidValue),
		errors.Is(err, model.ErrOutOfRange),
		errors.Is(err, model.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, registry.ErrResolution),
		errors.Is(err, widget.ErrUnknownKind),
		errors.Is(err, widget.ErrUnknownRegistration),
		errors.Is(err, widget.ErrWrongRole):
		writeError(w, http.StatusUnprocessableEntity, "resolution_failed", err)
	case errors.Is(err, service.ErrUnknownTray),
		errors.Is(err, service.ErrUnknownName),
		errors.Is(err, service.ErrUnknownContext),
		errors.Is(err, service.ErrNoRanking),
		errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrNotStarted),
		errors.Is(err, delegate.ErrReleased):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, repository.ErrBackend),
		errors.Is(err, delegate.ErrCreateAssessment):
		writeError(w, http.StatusBadGateway, "store_failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// hashParam parses a required hash query parameter.
func hashParam(q url.Values, name string) (model.EntryHash, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return model.EntryHash{}, errors.New("missing " + name)
	}
	h, err := model.ParseHash(raw)
	if err != nil {
		return model.EntryHash{}, errors.New("invalid " + name)
	}
	return h, nil
}

// TrayView and Names mirror the read shapes returned by the service.
type (
	TrayView = types.TrayView
	Names    = types.Names
)
