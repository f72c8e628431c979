package elastic

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/CogappLabs/search-gateway/internal/geo"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

type rawHit struct {
	ID        string                 `json:"_id"`
	Index     string                 `json:"_index"`
	Score     *float64               `json:"_score"`
	Source    map[string]interface{} `json:"_source"`
	Highlight map[string][]string    `json:"highlight"`
}

type suggestEntry struct {
	Options []struct {
		Text string `json:"text"`
	} `json:"options"`
}

type rawResponse struct {
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []rawHit        `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
	Suggest      map[string][]suggestEntry  `json:"suggest"`
}

type rawBucket struct {
	Key         interface{}     `json:"key"`
	KeyAsString string          `json:"key_as_string"`
	DocCount    int             `json:"doc_count"`
	Sample      json.RawMessage `json:"sample"`
}

// parseSearchResponse normalizes a search payload into the gateway's result
// shape.
func parseSearchResponse(data []byte, opts *model.SearchOptions) (*model.SearchResult, error) {
	var raw rawResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]map[string]interface{}, 0, len(raw.Hits.Hits))
	for _, h := range raw.Hits.Hits {
		hits = append(hits, normalizeHit(h))
	}

	total := parseTotal(raw.Hits.Total)

	result := &model.SearchResult{
		Hits:        hits,
		TotalHits:   total,
		Page:        opts.Page,
		PerPage:     opts.PerPage,
		TotalPages:  model.TotalPagesFor(total, opts.PerPage),
		Facets:      map[string][]model.FacetValue{},
		Suggestions: []string{},
	}

	for _, facet := range opts.Facets {
		agg, ok := raw.Aggregations[facet]
		if !ok {
			continue
		}
		buckets := extractBuckets(facet, agg)
		values := make([]model.FacetValue, 0, len(buckets))
		for _, b := range buckets {
			values = append(values, model.FacetValue{Value: bucketValue(b), Count: b.DocCount})
		}
		result.Facets[facet] = values
	}

	for field := range opts.Histogram {
		agg, ok := raw.Aggregations[histogramAggPrefix+field]
		if !ok {
			continue
		}
		if result.Histograms == nil {
			result.Histograms = map[string][]model.HistogramBucket{}
		}
		var hist []model.HistogramBucket
		for _, b := range extractBuckets(field, agg) {
			key, _ := b.Key.(float64)
			hist = append(hist, model.HistogramBucket{Key: key, Count: b.DocCount})
		}
		result.Histograms[field] = hist
	}

	if opts.GeoGrid != nil {
		if agg, ok := raw.Aggregations[geoGridAggName]; ok {
			result.GeoClusters = parseGeoClusters(agg)
		}
	}

	for _, entries := range raw.Suggest {
		for _, entry := range entries {
			for _, opt := range entry.Options {
				result.Suggestions = append(result.Suggestions, opt.Text)
			}
		}
	}

	return result, nil
}

// normalizeHit spreads the source first, then writes the metadata keys so a
// source field named objectID or _index never wins.
func normalizeHit(h rawHit) map[string]interface{} {
	out := make(map[string]interface{}, len(h.Source)+4)
	for k, v := range h.Source {
		out[k] = v
	}
	out[model.HitID] = h.ID
	out[model.HitIndex] = h.Index
	if h.Score != nil {
		out[model.HitScore] = *h.Score
	} else {
		out[model.HitScore] = nil
	}
	highlights := h.Highlight
	if highlights == nil {
		highlights = map[string][]string{}
	}
	out[model.HitHighlights] = highlights
	return out
}

// parseTotal accepts both the bare-integer and the {value} total shapes.
func parseTotal(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var wrapped struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Value
	}
	return 0
}

// extractBuckets walks down through filter and nested wrappers until it finds
// a buckets list. Wrappers repeat the aggregation name at each level, so the
// recursion follows that key.
func extractBuckets(name string, raw json.RawMessage) []rawBucket {
	var node map[string]json.RawMessage
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil
	}
	if bucketsRaw, ok := node["buckets"]; ok {
		var buckets []rawBucket
		if err := json.Unmarshal(bucketsRaw, &buckets); err != nil {
			return nil
		}
		return buckets
	}
	if inner, ok := node[name]; ok {
		return extractBuckets(name, inner)
	}
	return nil
}

func bucketValue(b rawBucket) string {
	if b.KeyAsString != "" {
		return b.KeyAsString
	}
	switch k := b.Key.(type) {
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(k)
	default:
		return fmt.Sprintf("%v", k)
	}
}

func parseGeoClusters(raw json.RawMessage) []model.GeoCluster {
	var clusters []model.GeoCluster
	for _, b := range extractBuckets(geoGridAggName, raw) {
		key, _ := b.Key.(string)
		if b.KeyAsString != "" {
			key = b.KeyAsString
		}
		ll, err := geo.TileToLatLng(key)
		if err != nil {
			continue
		}
		cluster := model.GeoCluster{
			Lat:   ll.Lat,
			Lng:   ll.Lng,
			Count: b.DocCount,
			Key:   key,
		}
		if len(b.Sample) > 0 {
			var sample struct {
				Hits struct {
					Hits []rawHit `json:"hits"`
				} `json:"hits"`
			}
			if err := json.Unmarshal(b.Sample, &sample); err == nil && len(sample.Hits.Hits) > 0 {
				cluster.Hit = normalizeHit(sample.Hits.Hits[0])
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}
