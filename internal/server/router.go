// Package server assembles the HTTP router and middleware chain.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CogappLabs/search-gateway/internal/handlers"
	"github.com/CogappLabs/search-gateway/internal/middleware"
)

// NewRouter constructs the ServeMux with every gateway route registered and
// wraps it in the middleware chain: request ID, CORS, bearer auth, request
// logging. Auth runs after CORS so preflight requests never need a token.
func NewRouter(h *handlers.Handler, apiKey string, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /cache/clear", h.CacheClear)
	mux.HandleFunc("GET /indexes", h.Indexes)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /{handle}/search", h.Search)
	mux.HandleFunc("GET /{handle}/autocomplete", h.Autocomplete)
	mux.HandleFunc("GET /{handle}/documents/{id}", h.Document)
	mux.HandleFunc("GET /{handle}/mapping", h.Mapping)
	mux.HandleFunc("POST /{handle}/query", h.RawQuery)
	mux.HandleFunc("GET /{handle}/facets/{field}", h.FacetValues)
	mux.HandleFunc("POST /{handle}/instantsearch", h.InstantSearch)

	var handler http.Handler = mux
	handler = middleware.RequestLogging(handler)
	handler = middleware.BearerAuth(apiKey)(handler)
	handler = middleware.CORS(corsOrigins)(handler)
	handler = middleware.RequestID(handler)
	return handler
}
