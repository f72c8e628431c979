// Package meili adapts the normalized search contract to Meilisearch.
package meili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/CogappLabs/search-gateway/internal/config"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

// Engine is the Meilisearch adapter. One adapter serves exactly one index;
// Meilisearch has no cross-index search.
type Engine struct {
	cfg   *config.IndexConfig
	index meilisearch.IndexManager
	uid   string

	// Primary key of the index, fetched once to stringify objectID.
	mu         sync.Mutex
	primaryKey string
}

// New builds the adapter. Multi-index handles are a configuration error.
func New(cfg *config.IndexConfig) (*Engine, error) {
	if cfg.MultiIndex() {
		return nil, fmt.Errorf("meilisearch does not support multiple backing indexes")
	}

	client := meilisearch.New(cfg.Host,
		meilisearch.WithAPIKey(cfg.APIKey),
		meilisearch.WithCustomClient(&http.Client{Timeout: 30 * time.Second}),
	)
	uid := cfg.Indexes[0]
	return &Engine{cfg: cfg, index: client.Index(uid), uid: uid}, nil
}

// Kind reports the engine kind.
func (e *Engine) Kind() string {
	return config.EngineMeilisearch
}

// Search translates the normalized request into a Meilisearch search.
func (e *Engine) Search(ctx context.Context, query string, opts *model.SearchOptions) (*model.SearchResult, error) {
	req := &meilisearch.SearchRequest{
		Page:        int64(opts.Page),
		HitsPerPage: int64(opts.PerPage),
	}

	if expr := buildFilter(opts.Filters); expr != "" {
		req.Filter = expr
	}
	for _, s := range opts.Sort {
		req.Sort = append(req.Sort, s.Field+":"+s.Order)
	}
	if len(opts.Facets) > 0 {
		req.Facets = opts.Facets
	}
	if len(opts.Attributes) > 0 {
		req.AttributesToRetrieve = opts.Attributes
	}
	if h := opts.Highlight; h != nil && h.Enabled {
		attrs := h.Fields
		if len(attrs) == 0 {
			attrs = []string{"*"}
		}
		req.AttributesToHighlight = attrs
		req.HighlightPreTag = "<mark>"
		req.HighlightPostTag = "</mark>"
	}

	resp, err := e.index.SearchWithContext(ctx, query, req)
	if err != nil {
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	primaryKey := e.fetchPrimaryKey(ctx)

	hits := make([]map[string]interface{}, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		hits = append(hits, e.normalizeHit(h, primaryKey))
	}

	total := int(resp.TotalHits)
	result := &model.SearchResult{
		Hits:        hits,
		TotalHits:   total,
		Page:        opts.Page,
		PerPage:     opts.PerPage,
		TotalPages:  model.TotalPagesFor(total, opts.PerPage),
		Facets:      parseFacetDistribution(resp.FacetDistribution, opts.Facets),
		Suggestions: []string{},
	}
	return result, nil
}

// GetDocument returns (nil, nil) when Meilisearch reports the document as
// missing.
func (e *Engine) GetDocument(ctx context.Context, id string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	err := e.index.GetDocumentWithContext(ctx, id, nil, &doc)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("meilisearch get document: %w", err)
	}

	primaryKey := e.fetchPrimaryKey(ctx)
	out := make(map[string]interface{}, len(doc)+4)
	for k, v := range doc {
		out[k] = v
	}
	out[model.HitID] = stringifyID(doc[primaryKey])
	out[model.HitIndex] = e.uid
	out[model.HitScore] = nil
	out[model.HitHighlights] = map[string][]string{}
	return out, nil
}

// SearchFacetValues uses the dedicated facet-search endpoint.
func (e *Engine) SearchFacetValues(ctx context.Context, field, prefix string, opts model.FacetValueOptions) ([]model.FacetValue, error) {
	req := &meilisearch.FacetSearchRequest{
		FacetName:  field,
		FacetQuery: prefix,
	}
	if expr := buildFilter(opts.Filters); expr != "" {
		req.Filter = expr
	}

	raw, err := e.index.FacetSearchWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("meilisearch facet search: %w", err)
	}

	var parsed struct {
		FacetHits []struct {
			Value string `json:"value"`
			Count int    `json:"count"`
		} `json:"facetHits"`
	}
	if raw != nil {
		if err := json.Unmarshal(*raw, &parsed); err != nil {
			return nil, fmt.Errorf("decode facet search response: %w", err)
		}
	}

	maxValues := opts.MaxValues
	values := make([]model.FacetValue, 0, len(parsed.FacetHits))
	for _, h := range parsed.FacetHits {
		if maxValues > 0 && len(values) >= maxValues {
			break
		}
		values = append(values, model.FacetValue{Value: h.Value, Count: h.Count})
	}
	return values, nil
}

// GetMapping returns the index settings; Meilisearch has no mapping concept,
// so the settings document stands in.
func (e *Engine) GetMapping(ctx context.Context) (map[string]interface{}, error) {
	settings, err := e.index.GetSettingsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("meilisearch settings: %w", err)
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

// RawQuery forwards a native search body. The body's q key carries the query
// text; everything else maps onto the native search request.
func (e *Engine) RawQuery(ctx context.Context, body []byte) (json.RawMessage, error) {
	var q struct {
		Q string `json:"q"`
	}
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("decode raw query: %w", err)
	}
	var req meilisearch.SearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode raw query: %w", err)
	}

	raw, err := e.index.SearchRawWithContext(ctx, q.Q, &req)
	if err != nil {
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}
	if raw == nil {
		return json.RawMessage("{}"), nil
	}
	return *raw, nil
}

func (e *Engine) fetchPrimaryKey(ctx context.Context) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.primaryKey != "" {
		return e.primaryKey
	}
	key, err := e.index.FetchPrimaryKeyWithContext(ctx)
	if err != nil || key == nil {
		// Conventional default; a later call retries.
		return "id"
	}
	e.primaryKey = *key
	return e.primaryKey
}

func (e *Engine) normalizeHit(hit interface{}, primaryKey string) map[string]interface{} {
	source, ok := hit.(map[string]interface{})
	if !ok {
		// Defensive round-trip for SDK versions that type hits differently.
		data, err := json.Marshal(hit)
		if err != nil {
			return map[string]interface{}{}
		}
		if err := json.Unmarshal(data, &source); err != nil {
			return map[string]interface{}{}
		}
	}

	out := make(map[string]interface{}, len(source)+4)
	highlights := map[string][]string{}
	for k, v := range source {
		if k == "_formatted" {
			for field, fv := range asMap(v) {
				if s, isString := fv.(string); isString && strings.Contains(s, "<mark>") {
					highlights[field] = []string{s}
				}
			}
			continue
		}
		out[k] = v
	}
	out[model.HitID] = stringifyID(source[primaryKey])
	out[model.HitIndex] = e.uid
	out[model.HitScore] = nil
	out[model.HitHighlights] = highlights
	return out
}

// buildFilter renders the normalized filters as one Meilisearch filter
// expression, field clauses joined with AND.
func buildFilter(filters model.Filters) string {
	if len(filters) == 0 {
		return ""
	}
	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	for _, field := range fields {
		if c := filterClause(field, filters[field]); c != "" {
			clauses = append(clauses, c)
		}
	}
	return strings.Join(clauses, " AND ")
}

func filterClause(field string, value interface{}) string {
	switch v := value.(type) {
	case string:
		return equalsClause(field, v)
	case bool:
		return fmt.Sprintf("%s = %t", field, v)
	case []string:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, equalsClause(field, item))
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, equalsClause(field, fmt.Sprintf("%v", item)))
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	case model.Range:
		return rangeClause(field, v)
	case *model.Range:
		return rangeClause(field, *v)
	default:
		return equalsClause(field, fmt.Sprintf("%v", v))
	}
}

func equalsClause(field, value string) string {
	return field + ` = "` + escapeString(value) + `"`
}

func rangeClause(field string, r model.Range) string {
	var parts []string
	if r.Min != nil {
		parts = append(parts, fmt.Sprintf("%s >= %s", field, formatNumber(*r.Min)))
	}
	if r.Max != nil {
		parts = append(parts, fmt.Sprintf("%s <= %s", field, formatNumber(*r.Max)))
	}
	return strings.Join(parts, " AND ")
}

// escapeString escapes backslashes before quotes so a value containing both
// survives the round-trip.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseFacetDistribution converts the response's facetDistribution into the
// normalized facet shape, counts descending with value as the tie-break.
func parseFacetDistribution(dist interface{}, facets []string) map[string][]model.FacetValue {
	out := map[string][]model.FacetValue{}
	distMap := asMap(dist)
	for _, facet := range facets {
		counts, ok := distMap[facet]
		if !ok {
			continue
		}
		values := make([]model.FacetValue, 0)
		for value, count := range asMap(counts) {
			n, _ := count.(float64)
			values = append(values, model.FacetValue{Value: value, Count: int(n)})
		}
		sort.Slice(values, func(i, j int) bool {
			if values[i].Count != values[j].Count {
				return values[i].Count > values[j].Count
			}
			return values[i].Value < values[j].Value
		})
		out[facet] = values
	}
	return out
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func stringifyID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", id)
	}
}

func isNotFound(err error) bool {
	var mErr *meilisearch.Error
	if errors.As(err, &mErr) && mErr.StatusCode == http.StatusNotFound {
		return true
	}
	return strings.Contains(err.Error(), "document_not_found")
}
