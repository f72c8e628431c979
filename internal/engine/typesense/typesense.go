// Package typesense adapts the normalized search contract to Typesense.
package typesense

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/typesense/typesense-go/v3/typesense"
	"github.com/typesense/typesense-go/v3/typesense/api"
	"github.com/typesense/typesense-go/v3/typesense/api/pointer"

	"github.com/CogappLabs/search-gateway/internal/config"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

// Engine is the Typesense adapter. One adapter serves exactly one collection.
type Engine struct {
	cfg        *config.IndexConfig
	client     *typesense.Client
	collection string

	// Backend fields declared as epoch-second dates in configuration; their
	// values are rewritten to RFC 3339 strings when documents leave the
	// gateway.
	dateFields map[string]bool
}

// New builds the adapter. Multi-index handles are a configuration error.
func New(cfg *config.IndexConfig) (*Engine, error) {
	if cfg.MultiIndex() {
		return nil, fmt.Errorf("typesense does not support multiple backing indexes")
	}

	client := typesense.NewClient(
		typesense.WithServer(cfg.Host),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(30*time.Second),
	)

	dateFields := make(map[string]bool)
	for name, f := range cfg.Fields {
		if f.Type != "date" {
			continue
		}
		backend := name
		if f.Alias != "" {
			backend = f.Alias
		}
		dateFields[backend] = true
	}

	return &Engine{
		cfg:        cfg,
		client:     client,
		collection: cfg.Indexes[0],
		dateFields: dateFields,
	}, nil
}

// Kind reports the engine kind.
func (e *Engine) Kind() string {
	return config.EngineTypesense
}

// Search translates the normalized request into a Typesense search.
func (e *Engine) Search(ctx context.Context, query string, opts *model.SearchOptions) (*model.SearchResult, error) {
	params := e.buildSearchParams(query, opts)

	resp, err := e.client.Collection(e.collection).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("typesense search: %w", err)
	}

	var hits []map[string]interface{}
	if resp.Hits != nil {
		hits = make([]map[string]interface{}, 0, len(*resp.Hits))
		for _, h := range *resp.Hits {
			hits = append(hits, e.normalizeHit(h))
		}
	} else {
		hits = []map[string]interface{}{}
	}

	total := 0
	if resp.Found != nil {
		total = *resp.Found
	}

	return &model.SearchResult{
		Hits:        hits,
		TotalHits:   total,
		Page:        opts.Page,
		PerPage:     opts.PerPage,
		TotalPages:  model.TotalPagesFor(total, opts.PerPage),
		Facets:      parseFacetCounts(resp.FacetCounts, opts.Facets),
		Suggestions: []string{},
	}, nil
}

// buildSearchParams renders the normalized options onto the native search
// parameters. query_by mirrors the multi-match field choice: boosted fields
// first, then explicitly searchable ones, then everything.
func (e *Engine) buildSearchParams(query string, opts *model.SearchOptions) *api.SearchCollectionParams {
	q := strings.TrimSpace(query)
	if q == "" {
		q = "*"
	}

	params := &api.SearchCollectionParams{
		Q:       pointer.String(q),
		Page:    pointer.Int(opts.Page),
		PerPage: pointer.Int(opts.PerPage),
	}

	queryBy := "*"
	if len(opts.Boosts) > 0 {
		fields := make([]string, 0, len(opts.Boosts))
		weights := make([]string, 0, len(opts.Boosts))
		for _, b := range opts.Boosts {
			fields = append(fields, b.Field)
			weights = append(weights, strconv.Itoa(int(math.Round(b.Weight))))
		}
		queryBy = strings.Join(fields, ",")
		params.QueryByWeights = pointer.String(strings.Join(weights, ","))
	} else if len(opts.SearchFields) > 0 {
		queryBy = strings.Join(opts.SearchFields, ",")
	}
	params.QueryBy = pointer.String(queryBy)

	if expr := buildFilterBy(opts.Filters); expr != "" {
		params.FilterBy = pointer.String(expr)
	}

	if len(opts.Sort) > 0 {
		clauses := make([]string, 0, len(opts.Sort))
		for _, s := range opts.Sort {
			clauses = append(clauses, s.Field+":"+s.Order)
		}
		params.SortBy = pointer.String(strings.Join(clauses, ","))
	}

	if len(opts.Facets) > 0 {
		params.FacetBy = pointer.String(strings.Join(opts.Facets, ","))
		params.MaxFacetValues = pointer.Int(100)
	}

	if len(opts.Attributes) > 0 {
		params.IncludeFields = pointer.String(strings.Join(opts.Attributes, ","))
	}

	if h := opts.Highlight; h != nil && h.Enabled {
		params.HighlightStartTag = pointer.String("<mark>")
		params.HighlightEndTag = pointer.String("</mark>")
		if len(h.Fields) > 0 {
			params.HighlightFields = pointer.String(strings.Join(h.Fields, ","))
		}
	}

	return params
}

// normalizeHit flattens the Typesense hit into the gateway shape. The text
// match score stands in for _score; both the native highlight object and the
// legacy highlights array are accepted, and unrecognized shapes simply yield
// empty highlights.
func (e *Engine) normalizeHit(h api.SearchResultHit) map[string]interface{} {
	out := map[string]interface{}{}
	if h.Document != nil {
		for k, v := range *h.Document {
			out[k] = e.rewriteDate(k, v)
		}
	}

	out[model.HitID] = stringifyID(out["id"])
	out[model.HitIndex] = e.collection
	if h.TextMatch != nil {
		out[model.HitScore] = float64(*h.TextMatch)
	} else {
		out[model.HitScore] = nil
	}

	highlights := map[string][]string{}
	if h.Highlight != nil {
		for field, v := range *h.Highlight {
			entry, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			if snippet, ok := entry["snippet"].(string); ok && snippet != "" {
				highlights[field] = []string{snippet}
			}
		}
	}
	if len(highlights) == 0 && h.Highlights != nil {
		for _, hl := range *h.Highlights {
			if hl.Field == nil {
				continue
			}
			switch {
			case hl.Snippet != nil && *hl.Snippet != "":
				highlights[*hl.Field] = []string{*hl.Snippet}
			case hl.Snippets != nil && len(*hl.Snippets) > 0:
				highlights[*hl.Field] = *hl.Snippets
			}
		}
	}
	out[model.HitHighlights] = highlights

	return out
}

func (e *Engine) rewriteDate(field string, v interface{}) interface{} {
	if !e.dateFields[field] {
		return v
	}
	epoch, ok := v.(float64)
	if !ok {
		return v
	}
	return time.Unix(int64(epoch), 0).UTC().Format(time.RFC3339)
}

// GetDocument returns (nil, nil) when the collection has no such document.
func (e *Engine) GetDocument(ctx context.Context, id string) (map[string]interface{}, error) {
	doc, err := e.client.Collection(e.collection).Document(id).Retrieve(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("typesense get document: %w", err)
	}

	out := make(map[string]interface{}, len(doc)+4)
	for k, v := range doc {
		out[k] = e.rewriteDate(k, v)
	}
	out[model.HitID] = stringifyID(doc["id"])
	out[model.HitIndex] = e.collection
	out[model.HitScore] = nil
	out[model.HitHighlights] = map[string][]string{}
	return out, nil
}

// SearchFacetValues runs a facet_query type-ahead over one facet field.
func (e *Engine) SearchFacetValues(ctx context.Context, field, prefix string, opts model.FacetValueOptions) ([]model.FacetValue, error) {
	maxValues := opts.MaxValues
	if maxValues <= 0 {
		maxValues = 10
	}

	params := &api.SearchCollectionParams{
		Q:              pointer.String("*"),
		QueryBy:        pointer.String(field),
		FacetBy:        pointer.String(field),
		FacetQuery:     pointer.String(field + ":" + prefix),
		MaxFacetValues: pointer.Int(maxValues),
		PerPage:        pointer.Int(0),
	}
	if expr := buildFilterBy(opts.Filters); expr != "" {
		params.FilterBy = pointer.String(expr)
	}

	resp, err := e.client.Collection(e.collection).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("typesense facet search: %w", err)
	}

	facets := parseFacetCounts(resp.FacetCounts, []string{field})
	values, ok := facets[field]
	if !ok {
		return []model.FacetValue{}, nil
	}
	return values, nil
}

// GetMapping returns the collection schema; Typesense has no mapping concept,
// so the schema stands in.
func (e *Engine) GetMapping(ctx context.Context) (map[string]interface{}, error) {
	schema, err := e.client.Collection(e.collection).Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("typesense collection: %w", err)
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode collection schema: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode collection schema: %w", err)
	}
	return out, nil
}

// RawQuery forwards a native search body, defaulting query_by to every field
// when the caller omits it.
func (e *Engine) RawQuery(ctx context.Context, body []byte) (json.RawMessage, error) {
	var params api.SearchCollectionParams
	if err := json.Unmarshal(body, &params); err != nil {
		return nil, fmt.Errorf("decode raw query: %w", err)
	}
	if params.Q == nil {
		params.Q = pointer.String("*")
	}
	if params.QueryBy == nil {
		params.QueryBy = pointer.String("*")
	}

	resp, err := e.client.Collection(e.collection).Documents().Search(ctx, &params)
	if err != nil {
		return nil, fmt.Errorf("typesense search: %w", err)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode search response: %w", err)
	}
	return data, nil
}

// buildFilterBy renders the normalized filters as one filter_by expression.
// Scalar values are backtick-quoted so commas and colons survive.
func buildFilterBy(filters model.Filters) string {
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
		if c := filterByClause(field, filters[field]); c != "" {
			clauses = append(clauses, c)
		}
	}
	return strings.Join(clauses, " && ")
}

func filterByClause(field string, value interface{}) string {
	switch v := value.(type) {
	case string:
		return field + ":=" + quoteValue(v)
	case bool:
		return field + ":=" + strconv.FormatBool(v)
	case []string:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, quoteValue(item))
		}
		return field + ":=[" + strings.Join(parts, ",") + "]"
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, quoteValue(fmt.Sprintf("%v", item)))
		}
		return field + ":=[" + strings.Join(parts, ",") + "]"
	case model.Range:
		return rangeClause(field, v)
	case *model.Range:
		return rangeClause(field, *v)
	default:
		return field + ":=" + quoteValue(fmt.Sprintf("%v", v))
	}
}

func rangeClause(field string, r model.Range) string {
	var parts []string
	if r.Min != nil {
		parts = append(parts, field+":>="+formatNumber(*r.Min))
	}
	if r.Max != nil {
		parts = append(parts, field+":<="+formatNumber(*r.Max))
	}
	return strings.Join(parts, " && ")
}

func quoteValue(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "\\`") + "`"
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFacetCounts(counts *[]api.FacetCounts, facets []string) map[string][]model.FacetValue {
	out := map[string][]model.FacetValue{}
	if counts == nil {
		return out
	}
	requested := make(map[string]bool, len(facets))
	for _, f := range facets {
		requested[f] = true
	}
	for _, fc := range *counts {
		if fc.FieldName == nil || !requested[*fc.FieldName] || fc.Counts == nil {
			continue
		}
		values := make([]model.FacetValue, 0, len(*fc.Counts))
		for _, c := range *fc.Counts {
			if c.Value == nil {
				continue
			}
			count := 0
			if c.Count != nil {
				count = *c.Count
			}
			values = append(values, model.FacetValue{Value: *c.Value, Count: count})
		}
		sort.Slice(values, func(i, j int) bool {
			if values[i].Count != values[j].Count {
				return values[i].Count > values[j].Count
			}
			return values[i].Value < values[j].Value
		})
		out[*fc.FieldName] = values
	}
	return out
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
	var httpErr *typesense.HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "ObjectNotFound") || strings.Contains(msg, "Not Found")
}
