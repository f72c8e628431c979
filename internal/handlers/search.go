package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/CogappLabs/search-gateway/internal/instantsearch"
	"github.com/CogappLabs/search-gateway/internal/logging"
	"github.com/CogappLabs/search-gateway/internal/validator"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

// maxRawBodyBytes bounds the POST bodies of the query and instantsearch
// endpoints.
const maxRawBodyBytes = 1 << 20

// Search handles GET /{handle}/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	opts, err := parseSearchOptions(r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, handle, err)
		return
	}

	result, err := h.svc.Search(r.Context(), handle, r.URL.Query().Get("q"), opts)
	if err != nil {
		h.writeServiceError(w, r, handle, err)
		return
	}
	w.Header().Set("Cache-Control", searchCacheControl)
	h.writeJSON(w, http.StatusOK, result)
}

// Autocomplete handles GET /{handle}/autocomplete.
func (h *Handler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	query := r.URL.Query().Get("q")

	var facetFields []string
	if raw := r.URL.Query().Get("facets"); raw != "" {
		facetFields = splitCommaList(raw)
	}

	result, err := h.svc.Autocomplete(r.Context(), handle, query, facetFields)
	if err != nil {
		h.writeServiceError(w, r, handle, err)
		return
	}
	w.Header().Set("Cache-Control", searchCacheControl)
	h.writeJSON(w, http.StatusOK, result)
}

// Document handles GET /{handle}/documents/{id}.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	doc, err := h.svc.Document(r.Context(), handle, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, handle, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// Mapping handles GET /{handle}/mapping. The payload keeps the engine's
// native shape.
func (h *Handler) Mapping(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	mapping, err := h.svc.Mapping(r.Context(), handle)
	if err != nil {
		h.writeServiceError(w, r, handle, err)
		return
	}
	w.Header().Set("Cache-Control", mappingCacheControl)
	h.writeRawJSON(w, http.StatusOK, mapping)
}

// RawQuery handles POST /{handle}/query: an engine-native body forwarded
// without normalization.
func (h *Handler) RawQuery(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRawBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if !json.Valid(body) {
		h.writeError(w, http.StatusBadRequest, "body must be valid JSON")
		return
	}

	out, err := h.svc.RawQuery(r.Context(), handle, body)
	if err != nil {
		h.writeServiceError(w, r, handle, err)
		return
	}
	h.writeRawJSON(w, http.StatusOK, out)
}

// FacetValues handles GET /{handle}/facets/{field}: the facet-value
// type-ahead.
func (h *Handler) FacetValues(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	field := r.PathValue("field")
	q := r.URL.Query()

	opts := model.FacetValueOptions{}
	var err error
	if opts.MaxValues, err = parseIntParam(q, "maxValues"); err != nil {
		h.writeServiceError(w, r, handle, err)
		return
	}
	if raw := q.Get("filters"); raw != "" {
		if opts.Filters, err = validator.ParseFacetFilters(raw); err != nil {
			h.writeServiceError(w, r, handle, err)
			return
		}
	}

	values, err := h.svc.FacetValues(r.Context(), handle, field, q.Get("q"), opts)
	if err != nil {
		h.writeServiceError(w, r, handle, err)
		return
	}
	w.Header().Set("Cache-Control", searchCacheControl)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"field":  field,
		"values": values,
	})
}

// InstantSearch handles POST /{handle}/instantsearch: an Algolia-compatible
// multi-query body.
func (h *Handler) InstantSearch(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRawBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var mq instantsearch.MultiQuery
	if err := json.Unmarshal(body, &mq); err != nil {
		h.writeError(w, http.StatusBadRequest, "body must be a {requests: [...]} object")
		return
	}
	if len(mq.Requests) == 0 {
		h.writeError(w, http.StatusBadRequest, "requests must not be empty")
		return
	}

	h.log.DebugContext(r.Context(), "instantsearch multi-query",
		logging.Handle(handle), "requests", len(mq.Requests))

	result, err := h.svc.InstantSearch(r.Context(), handle, mq)
	if err != nil {
		h.writeServiceError(w, r, handle, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
