// Package handlers wires HTTP routes to the gateway orchestrator. Handlers
// parse and validate parameters, call the service, and render JSON; no
// engine-specific behavior lives here.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/CogappLabs/search-gateway/internal/logging"
	"github.com/CogappLabs/search-gateway/internal/service"
	"github.com/CogappLabs/search-gateway/internal/validator"
)

// Cache-Control values for the cacheable read endpoints.
const (
	searchCacheControl  = "public, max-age=10, stale-while-revalidate=50"
	mappingCacheControl = "public, max-age=300, stale-while-revalidate=3300"
)

// Handler wires HTTP routes to the gateway service.
type Handler struct {
	svc *service.Gateway
	log *logging.Logger
}

// New creates a Handler instance.
func New(svc *service.Gateway, log *logging.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Health handles GET /health for liveness probes. It reports the cache state
// but never fails because of it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"cache":  h.svc.CacheStatus(),
	})
}

// CacheClear handles POST /cache/clear.
func (h *Handler) CacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.FlushCache(r.Context()); err != nil {
		h.log.ErrorContext(r.Context(), "cache flush failed", logging.Error(err))
		h.writeError(w, http.StatusInternalServerError, "cache flush failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Indexes handles GET /indexes: the configured handles and their engine kinds.
func (h *Handler) Indexes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"indexes": h.svc.Handles(),
	})
}

// writeServiceError maps a service or validation error onto the right HTTP
// status. Backend failures surface as a 500 with the error text; the
// request ID in the log line ties the two together.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, handle string, err error) {
	var paramErr *validator.ParamError
	switch {
	case errors.As(err, &paramErr):
		h.writeError(w, http.StatusBadRequest, paramErr.Error())
	case errors.Is(err, service.ErrIndexNotFound):
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("Index %q not found", handle))
	case errors.Is(err, service.ErrDocumentNotFound):
		h.writeError(w, http.StatusNotFound, "Document not found")
	default:
		h.log.ErrorContext(r.Context(), "backend request failed",
			logging.Handle(handle), logging.Error(err))
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
