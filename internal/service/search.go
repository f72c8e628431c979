package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/CogappLabs/search-gateway/internal/alias"
	"github.com/CogappLabs/search-gateway/internal/cache"
	"github.com/CogappLabs/search-gateway/internal/logging"
	"github.com/CogappLabs/search-gateway/internal/metrics"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

// Pagination bounds enforced for every request.
const (
	MaxPerPage     = 100
	DefaultPerPage = 10
)

// Search runs one normalized search: defaults, inbound aliasing, cache
// lookup, engine dispatch, outbound aliasing, cache store.
func (g *Gateway) Search(ctx context.Context, handle, query string, opts *model.SearchOptions) (*model.SearchResult, error) {
	idx, err := g.lookup(handle)
	if err != nil {
		return nil, err
	}

	applyDefaults(idx, opts)
	translateIn(idx.Alias, opts)

	key := ""
	if g.cache != nil {
		key, err = cache.SearchKey(handle, query, opts)
		if err == nil {
			if data, ok := g.cache.Get(ctx, key); ok {
				metrics.CacheHits.WithLabelValues("search").Inc()
				var cached model.SearchResult
				if err := json.Unmarshal(data, &cached); err == nil {
					return &cached, nil
				}
			} else {
				metrics.CacheMisses.WithLabelValues("search").Inc()
			}
		}
	}

	start := time.Now()
	result, err := idx.Engine.Search(ctx, query, opts)
	duration := time.Since(start)
	metrics.SearchDuration.WithLabelValues(handle, idx.Config.Engine).Observe(duration.Seconds())
	metrics.EngineRequestDuration.WithLabelValues(idx.Config.Engine, "search").Observe(duration.Seconds())
	if err != nil {
		metrics.SearchesTotal.WithLabelValues(handle, idx.Config.Engine, "error").Inc()
		metrics.EngineErrors.WithLabelValues(idx.Config.Engine, "search").Inc()
		return nil, err
	}
	metrics.SearchesTotal.WithLabelValues(handle, idx.Config.Engine, "ok").Inc()
	g.log.DebugContext(ctx, "search",
		logging.Handle(handle),
		logging.Engine(idx.Config.Engine),
		logging.Query(query),
		logging.Duration(duration.Milliseconds()),
		"hits", result.TotalHits,
	)

	translateOut(idx.Alias, result)

	if g.cache != nil && key != "" {
		if data, err := json.Marshal(result); err == nil {
			// Fire and forget; the response must not wait on Redis.
			storeCtx := context.WithoutCancel(ctx)
			go g.cache.Set(storeCtx, key, data, cache.SearchTTL)
		}
	}

	return result, nil
}

// applyDefaults resolves every unset option with the precedence: request
// value, index defaults, values derived from the field configuration, engine
// default.
func applyDefaults(idx *Index, opts *model.SearchOptions) {
	defaults := idx.Config.Defaults

	if opts.PerPage == 0 && defaults.PerPage > 0 {
		opts.PerPage = defaults.PerPage
	}
	if opts.PerPage < 1 {
		opts.PerPage = DefaultPerPage
	}
	if opts.PerPage > MaxPerPage {
		opts.PerPage = MaxPerPage
	}
	if opts.Page < 1 {
		opts.Page = 1
	}

	if opts.Facets == nil && len(defaults.Facets) > 0 {
		opts.Facets = defaults.Facets
	}
	if opts.Highlight == nil && len(defaults.Highlight) > 0 {
		h := &model.Highlight{Enabled: true}
		if !(len(defaults.Highlight) == 1 && defaults.Highlight[0] == "*") {
			h.Fields = defaults.Highlight
		}
		opts.Highlight = h
	}
	if opts.Boosts == nil && len(idx.Boosts) > 0 {
		// Copied because alias translation rewrites the entries in place.
		opts.Boosts = append(model.Boosts(nil), idx.Boosts...)
	}
	if opts.SearchFields == nil && len(idx.SearchFields) > 0 {
		opts.SearchFields = idx.SearchFields
	}
}

// translateIn rewrites every field reference in the options from public to
// backend names.
func translateIn(m *alias.Map, opts *model.SearchOptions) {
	if m.Empty() {
		return
	}
	for i := range opts.Sort {
		opts.Sort[i].Field = m.ToBackend(opts.Sort[i].Field)
	}
	opts.Facets = m.ArrayToBackend(opts.Facets)
	opts.Filters = alias.KeysToBackend(m, opts.Filters)
	for i := range opts.Boosts {
		opts.Boosts[i].Field = m.ToBackend(opts.Boosts[i].Field)
	}
	opts.SearchFields = m.ArrayToBackend(opts.SearchFields)
	if opts.Highlight != nil {
		opts.Highlight.Fields = m.ArrayToBackend(opts.Highlight.Fields)
	}
	opts.Attributes = m.ArrayToBackend(opts.Attributes)
	opts.Histogram = alias.KeysToBackend(m, opts.Histogram)
	if opts.GeoGrid != nil {
		opts.GeoGrid.Field = m.ToBackend(opts.GeoGrid.Field)
	}
}

// translateOut rewrites backend field names in the result back to public
// names: facet keys, histogram keys, and highlight keys on every hit,
// including the sample hits inside geo clusters.
func translateOut(m *alias.Map, result *model.SearchResult) {
	if m.Empty() {
		return
	}
	result.Facets = alias.KeysFromBackend(m, result.Facets)
	result.Histograms = alias.KeysFromBackend(m, result.Histograms)
	for _, hit := range result.Hits {
		translateHitHighlights(m, hit)
	}
	for _, cluster := range result.GeoClusters {
		if cluster.Hit != nil {
			translateHitHighlights(m, cluster.Hit)
		}
	}
}

func translateHitHighlights(m *alias.Map, hit map[string]interface{}) {
	if highlights, ok := hit[model.HitHighlights].(map[string][]string); ok {
		hit[model.HitHighlights] = alias.KeysFromBackend(m, highlights)
	}
}
