// Package elastic implements the shared Elasticsearch/OpenSearch adapter.
// The two engines speak the same query DSL; the adapters differ only in
// client construction, so one algorithm runs over a narrow Transport.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/CogappLabs/search-gateway/internal/config"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

// Engine is the shared adapter. It memoizes the index mapping for the process
// lifetime; sort-field resolution reads it without another round-trip after
// warm-up.
type Engine struct {
	cfg       *config.IndexConfig
	transport Transport
	kind      string

	// Backend field name -> nested path, derived once from configuration.
	nestedPaths map[string]string

	mu      sync.RWMutex
	mapping map[string]interface{}
}

// NewElasticsearch builds the adapter over an Elasticsearch client.
func NewElasticsearch(cfg *config.IndexConfig) (*Engine, error) {
	t, err := newESTransport(cfg)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, t, config.EngineElasticsearch), nil
}

// NewOpenSearch builds the adapter over an OpenSearch client.
func NewOpenSearch(cfg *config.IndexConfig) (*Engine, error) {
	t, err := newOSTransport(cfg)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, t, config.EngineOpenSearch), nil
}

func newEngine(cfg *config.IndexConfig, t Transport, kind string) *Engine {
	nested := make(map[string]string)
	for name, f := range cfg.Fields {
		if f.Nested == "" {
			continue
		}
		backend := name
		if f.Alias != "" {
			backend = f.Alias
		}
		nested[backend] = f.Nested
	}
	return &Engine{cfg: cfg, transport: t, kind: kind, nestedPaths: nested}
}

// Kind reports the engine kind.
func (e *Engine) Kind() string {
	return e.kind
}

// Search translates the normalized request, executes it, and normalizes the
// response.
func (e *Engine) Search(ctx context.Context, query string, opts *model.SearchOptions) (*model.SearchResult, error) {
	body := e.buildSearchBody(ctx, query, opts)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	data, err := e.transport.Search(ctx, &buf)
	if err != nil {
		return nil, err
	}
	return parseSearchResponse(data, opts)
}

// GetDocument fetches one document by id, returning (nil, nil) when absent.
// A comma in the index name means cross-index search, which the backend get
// API does not support, so an ids query stands in.
func (e *Engine) GetDocument(ctx context.Context, id string) (map[string]interface{}, error) {
	if strings.Contains(e.cfg.IndexName(), ",") {
		body := map[string]interface{}{
			"query": map[string]interface{}{
				"ids": map[string]interface{}{"values": []string{id}},
			},
			"size": 1,
		}
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode query: %w", err)
		}
		data, err := e.transport.Search(ctx, &buf)
		if err != nil {
			return nil, err
		}
		var raw rawResponse
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode search response: %w", err)
		}
		if len(raw.Hits.Hits) == 0 {
			return nil, nil
		}
		return normalizeHit(raw.Hits.Hits[0]), nil
	}

	data, found, err := e.transport.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var doc rawHit
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return normalizeHit(doc), nil
}

// SearchFacetValues runs the size-0 type-ahead aggregation over one facet
// field.
func (e *Engine) SearchFacetValues(ctx context.Context, field, prefix string, opts model.FacetValueOptions) ([]model.FacetValue, error) {
	body := e.buildFacetValuesBody(field, prefix, opts)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	data, err := e.transport.Search(ctx, &buf)
	if err != nil {
		return nil, err
	}

	var raw rawResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	agg, ok := raw.Aggregations[facetValuesAggName]
	if !ok {
		return []model.FacetValue{}, nil
	}
	buckets := extractBuckets(facetValuesAggName, agg)
	values := make([]model.FacetValue, 0, len(buckets))
	for _, b := range buckets {
		values = append(values, model.FacetValue{Value: bucketValue(b), Count: b.DocCount})
	}
	return values, nil
}

// GetMapping fetches the raw mapping once and serves it from memory after
// that. Concurrent cold calls may both fetch; the second publish wins and
// both results are equivalent.
func (e *Engine) GetMapping(ctx context.Context) (map[string]interface{}, error) {
	e.mu.RLock()
	cached := e.mapping
	e.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	data, err := e.transport.Mapping(ctx)
	if err != nil {
		return nil, err
	}
	var mapping map[string]interface{}
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}

	e.mu.Lock()
	e.mapping = mapping
	e.mu.Unlock()
	return mapping, nil
}

// RawQuery forwards the body to the backend search API and returns the
// response verbatim.
func (e *Engine) RawQuery(ctx context.Context, body []byte) (json.RawMessage, error) {
	data, err := e.transport.Search(ctx, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// resolveSortField returns "<field>.keyword" when the mapping declares the
// field as text with a keyword sub-field, otherwise the field itself. Only
// the first configured index's mapping is consulted, even for cross-index
// handles.
func (e *Engine) resolveSortField(ctx context.Context, field string) string {
	mapping, err := e.GetMapping(ctx)
	if err != nil {
		return field
	}

	entry, ok := mapping[e.cfg.Indexes[0]].(map[string]interface{})
	if !ok {
		// Wildcard index patterns resolve to concrete names in the
		// mapping response; take whichever comes back first.
		for _, v := range mapping {
			if m, isMap := v.(map[string]interface{}); isMap {
				entry = m
				break
			}
		}
		if entry == nil {
			return field
		}
	}

	mappings, _ := entry["mappings"].(map[string]interface{})
	props, _ := mappings["properties"].(map[string]interface{})

	parts := strings.Split(field, ".")
	var leaf map[string]interface{}
	for i, part := range parts {
		p, ok := props[part].(map[string]interface{})
		if !ok {
			return field
		}
		if i == len(parts)-1 {
			leaf = p
			break
		}
		props, _ = p["properties"].(map[string]interface{})
		if props == nil {
			return field
		}
	}

	if leaf["type"] == "text" {
		if fields, ok := leaf["fields"].(map[string]interface{}); ok {
			if _, hasKeyword := fields["keyword"]; hasKeyword {
				return field + ".keyword"
			}
		}
	}
	return field
}
