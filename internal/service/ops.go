package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/CogappLabs/search-gateway/internal/alias"
	"github.com/CogappLabs/search-gateway/internal/cache"
	"github.com/CogappLabs/search-gateway/internal/metrics"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

// timeEngine records the latency of one backend call.
func timeEngine(engine, operation string) func() {
	start := time.Now()
	return func() {
		metrics.EngineRequestDuration.WithLabelValues(engine, operation).
			Observe(time.Since(start).Seconds())
	}
}

// Document fetches one document by id.
func (g *Gateway) Document(ctx context.Context, handle, id string) (map[string]interface{}, error) {
	idx, err := g.lookup(handle)
	if err != nil {
		return nil, err
	}
	done := timeEngine(idx.Config.Engine, "get_document")
	doc, err := idx.Engine.GetDocument(ctx, id)
	done()
	if err != nil {
		metrics.EngineErrors.WithLabelValues(idx.Config.Engine, "get_document").Inc()
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Mapping returns the engine-native mapping for a handle, cached with a long
// TTL. The payload is backend-shaped by design and leaves unchanged.
func (g *Gateway) Mapping(ctx context.Context, handle string) (json.RawMessage, error) {
	idx, err := g.lookup(handle)
	if err != nil {
		return nil, err
	}

	key := cache.MappingKey(handle)
	if g.cache != nil {
		if data, ok := g.cache.Get(ctx, key); ok {
			metrics.CacheHits.WithLabelValues("mapping").Inc()
			return json.RawMessage(data), nil
		}
		metrics.CacheMisses.WithLabelValues("mapping").Inc()
	}

	done := timeEngine(idx.Config.Engine, "mapping")
	mapping, err := idx.Engine.GetMapping(ctx)
	done()
	if err != nil {
		metrics.EngineErrors.WithLabelValues(idx.Config.Engine, "mapping").Inc()
		return nil, err
	}
	data, err := json.Marshal(mapping)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		storeCtx := context.WithoutCancel(ctx)
		go g.cache.Set(storeCtx, key, data, cache.MappingTTL)
	}
	return json.RawMessage(data), nil
}

// RawQuery forwards an engine-native body without normalization.
func (g *Gateway) RawQuery(ctx context.Context, handle string, body []byte) (json.RawMessage, error) {
	idx, err := g.lookup(handle)
	if err != nil {
		return nil, err
	}
	done := timeEngine(idx.Config.Engine, "raw_query")
	out, err := idx.Engine.RawQuery(ctx, body)
	done()
	if err != nil {
		metrics.EngineErrors.WithLabelValues(idx.Config.Engine, "raw_query").Inc()
		return nil, err
	}
	return out, nil
}

// FacetValues runs the facet-value type-ahead for one field.
func (g *Gateway) FacetValues(ctx context.Context, handle, field, prefix string, opts model.FacetValueOptions) ([]model.FacetValue, error) {
	idx, err := g.lookup(handle)
	if err != nil {
		return nil, err
	}

	backendField := idx.Alias.ToBackend(field)
	opts.Filters = alias.KeysToBackend(idx.Alias, opts.Filters)

	done := timeEngine(idx.Config.Engine, "facet_values")
	values, err := idx.Engine.SearchFacetValues(ctx, backendField, prefix, opts)
	done()
	if err != nil {
		metrics.EngineErrors.WithLabelValues(idx.Config.Engine, "facet_values").Inc()
		return nil, err
	}
	return values, nil
}
