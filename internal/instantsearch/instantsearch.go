// Package instantsearch translates Algolia's multi-query protocol into the
// normalized search contract and renders results back in Algolia's shape, so
// InstantSearch.js front-ends can talk to the gateway unchanged.
package instantsearch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/CogappLabs/search-gateway/internal/validator"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

// Default highlight tags when the client does not ask for its own.
const (
	DefaultPreTag  = "<em>"
	DefaultPostTag = "</em>"
)

// Params is the per-request parameter object of the Algolia protocol.
type Params struct {
	Query                *string     `json:"query,omitempty"`
	Page                 *int        `json:"page,omitempty"`
	HitsPerPage          *int        `json:"hitsPerPage,omitempty"`
	Facets               interface{} `json:"facets,omitempty"`
	FacetFilters         interface{} `json:"facetFilters,omitempty"`
	NumericFilters       interface{} `json:"numericFilters,omitempty"`
	AttributesToRetrieve []string    `json:"attributesToRetrieve,omitempty"`
	HighlightPreTag      string      `json:"highlightPreTag,omitempty"`
	HighlightPostTag     string      `json:"highlightPostTag,omitempty"`
}

// Request is one entry of a multi-query body.
type Request struct {
	IndexName string  `json:"indexName"`
	Query     string  `json:"query"`
	Params    *Params `json:"params,omitempty"`
}

// MultiQuery is the Algolia multi-query body.
type MultiQuery struct {
	Requests []Request `json:"requests"`
}

// Result is one Algolia-shaped search result.
type Result struct {
	Index            string                   `json:"index"`
	Hits             []map[string]interface{} `json:"hits"`
	NbHits           int                      `json:"nbHits"`
	Page             int                      `json:"page"`
	NbPages          int                      `json:"nbPages"`
	HitsPerPage      int                      `json:"hitsPerPage"`
	Facets           map[string]map[string]int `json:"facets"`
	ExhaustiveNbHits bool                     `json:"exhaustiveNbHits"`
	ProcessingTimeMS int64                    `json:"processingTimeMS"`
	Query            string                   `json:"query"`
}

// MultiResult is the multi-query response envelope.
type MultiResult struct {
	Results []Result `json:"results"`
}

// Translated is the normalized form of one Algolia request.
type Translated struct {
	Query   string
	Options model.SearchOptions
	PreTag  string
	PostTag string
}

var numericFilterPattern = regexp.MustCompile(`^(.+?)(>=|<=|>|<)(.+)$`)

// Translate maps an Algolia request onto the normalized contract. The
// params.query wins over the top-level query; the sentinel facets value
// ["*"] selects the handle's default facets.
func Translate(req Request, defaultFacets []string) (Translated, error) {
	out := Translated{
		Query:   req.Query,
		PreTag:  DefaultPreTag,
		PostTag: DefaultPostTag,
	}
	out.Options.Page = 1
	out.Options.Highlight = &model.Highlight{Enabled: true}

	p := req.Params
	if p == nil {
		return out, nil
	}

	if p.Query != nil {
		out.Query = *p.Query
	}
	if p.Page != nil {
		// Algolia pages are 0-indexed.
		out.Options.Page = *p.Page + 1
		if out.Options.Page < 1 {
			out.Options.Page = 1
		}
	}
	if p.HitsPerPage != nil {
		out.Options.PerPage = *p.HitsPerPage
		if out.Options.PerPage < 1 {
			out.Options.PerPage = 1
		}
	}

	facets, err := parseFacetsParam(p.Facets)
	if err != nil {
		return out, err
	}
	if len(facets) == 1 && facets[0] == "*" {
		facets = defaultFacets
	}
	out.Options.Facets = facets

	filters, err := ParseFacetFilters(p.FacetFilters)
	if err != nil {
		return out, err
	}
	if err := ParseNumericFilters(p.NumericFilters, filters); err != nil {
		return out, err
	}
	if len(filters) > 0 {
		out.Options.Filters = filters
	}

	if len(p.AttributesToRetrieve) > 0 {
		out.Options.Attributes = p.AttributesToRetrieve
	}
	if p.HighlightPreTag != "" {
		out.PreTag = p.HighlightPreTag
	}
	if p.HighlightPostTag != "" {
		out.PostTag = p.HighlightPostTag
	}

	return out, nil
}

func parseFacetsParam(v interface{}) ([]string, error) {
	switch facets := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{facets}, nil
	case []string:
		return facets, nil
	case []interface{}:
		out := make([]string, 0, len(facets))
		for _, f := range facets {
			s, ok := f.(string)
			if !ok {
				return nil, &validator.ParamError{Param: "facets", Message: "entries must be strings"}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &validator.ParamError{Param: "facets", Message: "must be a string or a list"}
	}
}

// ParseFacetFilters interprets Algolia facetFilters: the outer list is a
// conjunction, an inner list is a disjunction over one field, each entry is
// "field:value" split on the first colon, and negated entries ("-field:v")
// are skipped. A field with a single value collapses to a bare string.
func ParseFacetFilters(v interface{}) (model.Filters, error) {
	filters := model.Filters{}
	switch outer := v.(type) {
	case nil:
		return filters, nil
	case string:
		addFacetFilterPair(filters, outer)
	case []interface{}:
		for _, entry := range outer {
			switch e := entry.(type) {
			case string:
				addFacetFilterPair(filters, e)
			case []interface{}:
				for _, inner := range e {
					s, ok := inner.(string)
					if !ok {
						return nil, &validator.ParamError{Param: "facetFilters", Message: "entries must be strings"}
					}
					addFacetFilterPair(filters, s)
				}
			default:
				return nil, &validator.ParamError{Param: "facetFilters", Message: "entries must be strings or lists"}
			}
		}
	default:
		return nil, &validator.ParamError{Param: "facetFilters", Message: "must be a string or a list"}
	}
	return filters, nil
}

func addFacetFilterPair(filters model.Filters, entry string) {
	if strings.HasPrefix(entry, "-") {
		return
	}
	idx := strings.Index(entry, ":")
	if idx < 0 {
		return
	}
	field, value := entry[:idx], entry[idx+1:]

	switch existing := filters[field].(type) {
	case nil:
		filters[field] = value
	case string:
		filters[field] = []string{existing, value}
	case []string:
		filters[field] = append(existing, value)
	}
}

// ParseNumericFilters merges Algolia numericFilters entries into per-field
// ranges.
func ParseNumericFilters(v interface{}, filters model.Filters) error {
	var entries []string
	switch nf := v.(type) {
	case nil:
		return nil
	case string:
		entries = []string{nf}
	case []interface{}:
		for _, entry := range nf {
			s, ok := entry.(string)
			if !ok {
				return &validator.ParamError{Param: "numericFilters", Message: "entries must be strings"}
			}
			entries = append(entries, s)
		}
	default:
		return &validator.ParamError{Param: "numericFilters", Message: "must be a string or a list"}
	}

	for _, entry := range entries {
		m := numericFilterPattern.FindStringSubmatch(entry)
		if m == nil {
			return &validator.ParamError{Param: "numericFilters", Message: fmt.Sprintf("invalid entry %q", entry)}
		}
		field, op := m[1], m[2]
		n, err := strconv.ParseFloat(strings.TrimSpace(m[3]), 64)
		if err != nil {
			return &validator.ParamError{Param: "numericFilters", Message: fmt.Sprintf("invalid entry %q", entry)}
		}

		r, _ := filters[field].(*model.Range)
		if r == nil {
			r = &model.Range{}
			filters[field] = r
		}
		switch op {
		case ">=", ">":
			r.Min = &n
		case "<=", "<":
			r.Max = &n
		}
	}
	return nil
}

// FromSearchResult renders a normalized result in Algolia's shape. Hit
// metadata other than objectID is dropped; highlights become the
// _highlightResult object with the caller's tags substituted in.
func FromSearchResult(indexName, query string, result *model.SearchResult, preTag, postTag string, took time.Duration) Result {
	hits := make([]map[string]interface{}, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out := make(map[string]interface{}, len(hit))
		for k, v := range hit {
			if k == model.HitIndex || k == model.HitScore || k == model.HitHighlights {
				continue
			}
			out[k] = v
		}

		highlightResult := map[string]interface{}{}
		for field, fragments := range highlightFragments(hit[model.HitHighlights]) {
			matchLevel := "none"
			if len(fragments) > 0 {
				matchLevel = "full"
			}
			value := strings.Join(fragments, " ... ")
			value = strings.ReplaceAll(value, "<mark>", preTag)
			value = strings.ReplaceAll(value, "</mark>", postTag)
			highlightResult[field] = map[string]interface{}{
				"value":      value,
				"matchLevel": matchLevel,
			}
		}
		if len(highlightResult) > 0 {
			out["_highlightResult"] = highlightResult
		}
		hits = append(hits, out)
	}

	facets := make(map[string]map[string]int, len(result.Facets))
	for field, values := range result.Facets {
		counts := make(map[string]int, len(values))
		for _, v := range values {
			counts[v.Value] = v.Count
		}
		facets[field] = counts
	}

	return Result{
		Index:            indexName,
		Hits:             hits,
		NbHits:           result.TotalHits,
		Page:             result.Page - 1,
		NbPages:          result.TotalPages,
		HitsPerPage:      result.PerPage,
		Facets:           facets,
		ExhaustiveNbHits: true,
		ProcessingTimeMS: took.Milliseconds(),
		Query:            query,
	}
}

// highlightFragments accepts both the in-process highlight shape and the one
// that comes back from a JSON round-trip through the cache.
func highlightFragments(v interface{}) map[string][]string {
	switch hl := v.(type) {
	case map[string][]string:
		return hl
	case map[string]interface{}:
		out := make(map[string][]string, len(hl))
		for field, fragments := range hl {
			list, ok := fragments.([]interface{})
			if !ok {
				continue
			}
			strs := make([]string, 0, len(list))
			for _, f := range list {
				if s, isString := f.(string); isString {
					strs = append(strs, s)
				}
			}
			out[field] = strs
		}
		return out
	default:
		return nil
	}
}
