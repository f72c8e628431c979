package elastic

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/CogappLabs/search-gateway/pkg/model"
)

// Aggregation names reserved by the gateway. Facet aggregations use the facet
// field name itself; these prefixes keep histogram and geo buckets apart.
const (
	histogramAggPrefix = "__histogram_"
	geoGridAggName     = "__geo_grid"
	facetValuesAggName = "facet_values"
)

// buildSearchBody translates a normalized request into the query DSL. Facet
// filters are split away from the main query and re-applied as a post_filter
// so that each facet's counts stay disjunctive: selecting a value narrows the
// hit list without hiding that facet's alternatives.
func (e *Engine) buildSearchBody(ctx context.Context, query string, opts *model.SearchOptions) map[string]interface{} {
	facetSet := make(map[string]bool, len(opts.Facets))
	for _, f := range opts.Facets {
		facetSet[f] = true
	}

	facetClauses := make(map[string][]map[string]interface{})
	var baseFilters []map[string]interface{}
	for field, value := range opts.Filters {
		clause := e.filterClause(field, value)
		if facetSet[field] {
			facetClauses[field] = append(facetClauses[field], clause)
		} else {
			baseFilters = append(baseFilters, clause)
		}
	}

	if g := opts.GeoGrid; g != nil {
		baseFilters = append(baseFilters, map[string]interface{}{
			"geo_bounding_box": map[string]interface{}{
				g.Field: boundsSection(g.Bounds),
			},
		})
	}

	boolQuery := map[string]interface{}{
		"must": []interface{}{textClause(query, opts)},
	}
	if len(baseFilters) > 0 {
		boolQuery["filter"] = baseFilters
	}

	body := map[string]interface{}{
		"query":            map[string]interface{}{"bool": boolQuery},
		"from":             (opts.Page - 1) * opts.PerPage,
		"size":             opts.PerPage,
		"track_total_hits": true,
	}

	if len(facetClauses) > 0 {
		var all []map[string]interface{}
		for _, clauses := range facetClauses {
			all = append(all, clauses...)
		}
		body["post_filter"] = map[string]interface{}{
			"bool": map[string]interface{}{"filter": all},
		}
	}

	aggs := map[string]interface{}{}
	for _, facet := range opts.Facets {
		aggs[facet] = e.facetAgg(facet, facetClauses)
	}
	for field, interval := range opts.Histogram {
		aggs[histogramAggPrefix+field] = map[string]interface{}{
			"histogram": map[string]interface{}{
				"field":         field,
				"interval":      interval,
				"min_doc_count": 1,
			},
		}
	}
	if g := opts.GeoGrid; g != nil {
		aggs[geoGridAggName] = map[string]interface{}{
			"geotile_grid": map[string]interface{}{
				"field":     g.Field,
				"precision": g.Precision,
				"bounds":    boundsSection(g.Bounds),
			},
			"aggs": map[string]interface{}{
				"sample": map[string]interface{}{
					"top_hits": map[string]interface{}{"size": 1},
				},
			},
		}
	}
	if len(aggs) > 0 {
		body["aggs"] = aggs
	}

	if len(opts.Sort) > 0 {
		sortClauses := make([]map[string]interface{}, 0, len(opts.Sort))
		for _, s := range opts.Sort {
			sortClauses = append(sortClauses, map[string]interface{}{
				e.resolveSortField(ctx, s.Field): map[string]interface{}{"order": s.Order},
			})
		}
		body["sort"] = sortClauses
	}

	if h := opts.Highlight; h != nil && h.Enabled {
		body["highlight"] = highlightSection(h)
	}
	if len(opts.Attributes) > 0 {
		body["_source"] = opts.Attributes
	}
	if opts.Suggest && strings.TrimSpace(query) != "" && e.cfg.Defaults.SuggestField != "" {
		body["suggest"] = map[string]interface{}{
			"suggestion": map[string]interface{}{
				"text": query,
				"phrase": map[string]interface{}{
					"field":     e.cfg.Defaults.SuggestField,
					"size":      3,
					"gram_size": 3,
				},
			},
		}
	}

	return body
}

// textClause builds the must-clause. Boosted fields win over plain searchable
// fields; with neither, every field is matched. A blank query matches all.
func textClause(query string, opts *model.SearchOptions) map[string]interface{} {
	if strings.TrimSpace(query) == "" {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	fields := []string{"*"}
	if len(opts.Boosts) > 0 {
		fields = make([]string, 0, len(opts.Boosts))
		for _, b := range opts.Boosts {
			fields = append(fields, b.Field+"^"+strconv.FormatFloat(b.Weight, 'g', -1, 64))
		}
	} else if len(opts.SearchFields) > 0 {
		fields = opts.SearchFields
	}

	return map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":  query,
			"type":   "bool_prefix",
			"fields": fields,
		},
	}
}

// filterClause maps one normalized filter value to its DSL clause, wrapping
// in a nested query when the field lives under a nested path.
func (e *Engine) filterClause(field string, value interface{}) map[string]interface{} {
	var clause map[string]interface{}
	switch v := value.(type) {
	case string:
		clause = map[string]interface{}{"term": map[string]interface{}{field: v}}
	case bool:
		clause = map[string]interface{}{"term": map[string]interface{}{field: v}}
	case []string:
		clause = map[string]interface{}{"terms": map[string]interface{}{field: v}}
	case []interface{}:
		clause = map[string]interface{}{"terms": map[string]interface{}{field: v}}
	case model.Range:
		clause = rangeClause(field, v)
	case *model.Range:
		clause = rangeClause(field, *v)
	default:
		clause = map[string]interface{}{"term": map[string]interface{}{field: v}}
	}

	if path, ok := e.nestedPaths[field]; ok {
		clause = map[string]interface{}{
			"nested": map[string]interface{}{
				"path":  path,
				"query": clause,
			},
		}
	}
	return clause
}

func rangeClause(field string, r model.Range) map[string]interface{} {
	bounds := map[string]interface{}{}
	if r.Min != nil {
		bounds["gte"] = *r.Min
	}
	if r.Max != nil {
		bounds["lte"] = *r.Max
	}
	return map[string]interface{}{"range": map[string]interface{}{field: bounds}}
}

// facetAgg builds one facet aggregation. When other facets carry active
// filters, the terms aggregation is wrapped in a filter of those clauses so
// the counts reflect every selection except this facet's own. A nested facet
// keeps the nested wrapper inside the filter wrapper.
func (e *Engine) facetAgg(facet string, facetClauses map[string][]map[string]interface{}) map[string]interface{} {
	inner := map[string]interface{}{
		"terms": map[string]interface{}{"field": facet, "size": 100},
	}
	if path, ok := e.nestedPaths[facet]; ok {
		inner = map[string]interface{}{
			"nested": map[string]interface{}{"path": path},
			"aggs":   map[string]interface{}{facet: inner},
		}
	}

	var other []map[string]interface{}
	for key, clauses := range facetClauses {
		if key == facet {
			continue
		}
		other = append(other, clauses...)
	}
	if len(other) == 0 {
		return inner
	}

	return map[string]interface{}{
		"filter": map[string]interface{}{
			"bool": map[string]interface{}{"filter": other},
		},
		"aggs": map[string]interface{}{facet: inner},
	}
}

func highlightSection(h *model.Highlight) map[string]interface{} {
	fields := map[string]interface{}{}
	if len(h.Fields) > 0 {
		for _, f := range h.Fields {
			fields[f] = map[string]interface{}{}
		}
	} else {
		fields["*"] = map[string]interface{}{}
	}
	return map[string]interface{}{
		"pre_tags":  []string{"<mark>"},
		"post_tags": []string{"</mark>"},
		"fields":    fields,
	}
}

func boundsSection(b model.GeoBounds) map[string]interface{} {
	return map[string]interface{}{
		"top_left": map[string]interface{}{
			"lat": b.TopLeft.Lat,
			"lon": b.TopLeft.Lon,
		},
		"bottom_right": map[string]interface{}{
			"lat": b.BottomRight.Lat,
			"lon": b.BottomRight.Lon,
		},
	}
}

// buildFacetValuesBody builds the size-0 type-ahead query over one facet
// field. The prefix becomes a case-insensitive substring match because the
// terms include parameter has no case flag.
func (e *Engine) buildFacetValuesBody(field, prefix string, opts model.FacetValueOptions) map[string]interface{} {
	maxValues := opts.MaxValues
	if maxValues <= 0 {
		maxValues = 10
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(opts.Filters) > 0 {
		var clauses []map[string]interface{}
		for f, v := range opts.Filters {
			clauses = append(clauses, e.filterClause(f, v))
		}
		query = map[string]interface{}{
			"bool": map[string]interface{}{"filter": clauses},
		}
	}

	agg := map[string]interface{}{
		"terms": map[string]interface{}{
			"field":   field,
			"size":    maxValues,
			"include": caseInsensitivePattern(prefix),
		},
	}
	if path, ok := e.nestedPaths[field]; ok {
		agg = map[string]interface{}{
			"nested": map[string]interface{}{"path": path},
			"aggs":   map[string]interface{}{facetValuesAggName: agg},
		}
	}

	return map[string]interface{}{
		"size":  0,
		"query": query,
		"aggs":  map[string]interface{}{facetValuesAggName: agg},
	}
}

// caseInsensitivePattern escapes the prefix and widens every ASCII letter to
// a two-letter character class.
func caseInsensitivePattern(prefix string) string {
	quoted := regexp.QuoteMeta(prefix)
	var b strings.Builder
	for _, r := range quoted {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteRune(r - 'a' + 'A')
			b.WriteByte(']')
		case r >= 'A' && r <= 'Z':
			b.WriteByte('[')
			b.WriteRune(r - 'A' + 'a')
			b.WriteRune(r)
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	return ".*" + b.String() + ".*"
}
