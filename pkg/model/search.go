// Package model defines the normalized search contract shared by the HTTP
// layer and every engine adapter. A request is expressed as a query string
// plus SearchOptions; every backend response is normalized into SearchResult.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Sort orders accepted by the gateway.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// SortField is a single sort clause.
type SortField struct {
	Field string
	Order string
}

// SortSpec is an ordered list of sort clauses. It round-trips as a JSON
// object whose key order is preserved, which is why it cannot be a plain map.
type SortSpec []SortField

// UnmarshalJSON decodes a JSON object into a SortSpec, keeping the key order
// of the document.
func (s *SortSpec) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("sort must be a JSON object")
	}
	out := SortSpec{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var order string
		if err := dec.Decode(&order); err != nil {
			return fmt.Errorf("sort order for %q must be a string", key)
		}
		out = append(out, SortField{Field: key, Order: order})
	}
	*s = out
	return nil
}

// MarshalJSON encodes the SortSpec as a JSON object in clause order.
func (s SortSpec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(f.Field)
		v, _ := json.Marshal(f.Order)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// BoostField is a field weight used to build multi-match field lists.
type BoostField struct {
	Field  string
	Weight float64
}

// Boosts is an ordered list of field weights; like SortSpec it preserves the
// JSON object key order of the request.
type Boosts []BoostField

// UnmarshalJSON decodes a JSON object into Boosts, keeping key order.
func (b *Boosts) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("boosts must be a JSON object")
	}
	out := Boosts{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var weight float64
		if err := dec.Decode(&weight); err != nil {
			return fmt.Errorf("boost for %q must be a number", key)
		}
		out = append(out, BoostField{Field: key, Weight: weight})
	}
	*b = out
	return nil
}

// MarshalJSON encodes Boosts as a JSON object in field order.
func (b Boosts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(f.Field)
		v, _ := json.Marshal(f.Weight)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Range is a numeric filter bound. Either side may be open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Filters maps a field name to one of: string, []string, bool, or Range.
// The validator package guarantees only those four value shapes appear.
type Filters map[string]interface{}

// Highlight selects highlighting for a search. Enabled with no fields means
// highlight everything.
type Highlight struct {
	Enabled bool
	Fields  []string
}

// MarshalJSON renders the highlight the way it was requested: a field list
// when fields were given, a boolean otherwise.
func (h Highlight) MarshalJSON() ([]byte, error) {
	if len(h.Fields) > 0 {
		return json.Marshal(h.Fields)
	}
	return json.Marshal(h.Enabled)
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeoBounds is a bounding box given by its two corners.
type GeoBounds struct {
	TopLeft     GeoPoint `json:"top_left"`
	BottomRight GeoPoint `json:"bottom_right"`
}

// GeoGrid requests geotile clustering of hits within bounds.
type GeoGrid struct {
	Field     string    `json:"field"`
	Precision int       `json:"precision"`
	Bounds    GeoBounds `json:"bounds"`
}

// SearchOptions is the normalized form of every search request.
type SearchOptions struct {
	Page         int            `json:"page"`
	PerPage      int            `json:"perPage"`
	Sort         SortSpec       `json:"sort,omitempty"`
	Facets       []string       `json:"facets,omitempty"`
	Filters      Filters        `json:"filters,omitempty"`
	Highlight    *Highlight     `json:"highlight,omitempty"`
	Attributes   []string       `json:"attributesToRetrieve,omitempty"`
	Suggest      bool           `json:"suggest,omitempty"`
	Boosts       Boosts         `json:"boosts,omitempty"`
	SearchFields []string       `json:"searchableFields,omitempty"`
	Histogram    map[string]int `json:"histogram,omitempty"`
	GeoGrid      *GeoGrid       `json:"geoGrid,omitempty"`
}

// FacetValueOptions narrows a facet-value type-ahead search.
type FacetValueOptions struct {
	// MaxValues caps the number of returned values. Zero means the adapter
	// default.
	MaxValues int
	// Filters narrow the documents whose facet values are counted. Values are
	// restricted to string and []string.
	Filters Filters
}

// FacetValue is one bucket of a facet.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// HistogramBucket is one bucket of a numeric histogram.
type HistogramBucket struct {
	Key   float64 `json:"key"`
	Count int     `json:"count"`
}

// GeoCluster is one geotile bucket with its centroid and an optional sample
// hit.
type GeoCluster struct {
	Lat   float64                `json:"lat"`
	Lng   float64                `json:"lng"`
	Count int                    `json:"count"`
	Key   string                 `json:"key"`
	Hit   map[string]interface{} `json:"hit,omitempty"`
}

// Hit metadata keys attached to every normalized hit. They are written after
// the source spread so backend fields with the same names never win.
const (
	HitID         = "objectID"
	HitIndex      = "_index"
	HitScore      = "_score"
	HitHighlights = "_highlights"
)

// SearchResult is the normalized response for every engine.
type SearchResult struct {
	Hits        []map[string]interface{}    `json:"hits"`
	TotalHits   int                         `json:"totalHits"`
	Page        int                         `json:"page"`
	PerPage     int                         `json:"perPage"`
	TotalPages  int                         `json:"totalPages"`
	Facets      map[string][]FacetValue     `json:"facets"`
	Histograms  map[string][]HistogramBucket `json:"histograms,omitempty"`
	GeoClusters []GeoCluster                `json:"geoClusters,omitempty"`
	Suggestions []string                    `json:"suggestions"`
}

// TotalPagesFor computes ceil(totalHits / perPage) with a floor of zero.
func TotalPagesFor(totalHits, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (totalHits + perPage - 1) / perPage
}
