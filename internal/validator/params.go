// Package validator parses and schema-checks the JSON-encoded query
// parameters of the search surface. A failed parse or schema check becomes a
// ParamError naming the offending parameter; nothing invalid reaches an
// engine.
package validator

import (
	"encoding/json"
	"fmt"

	"github.com/CogappLabs/search-gateway/pkg/model"
)

// ParamError reports a parameter that failed parsing or validation. The
// HTTP layer renders it as a 400 with "<parameter>: <message>".
type ParamError struct {
	Param   string
	Message string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Message)
}

func paramErr(param, format string, args ...interface{}) error {
	return &ParamError{Param: param, Message: fmt.Sprintf(format, args...)}
}

// ParseSort decodes the sort parameter: an object of field to "asc"|"desc",
// in document order.
func ParseSort(raw string) (model.SortSpec, error) {
	var spec model.SortSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, paramErr("sort", "invalid JSON object")
	}
	for _, f := range spec {
		if f.Order != model.SortAsc && f.Order != model.SortDesc {
			return nil, paramErr("sort", "order for %q must be \"asc\" or \"desc\"", f.Field)
		}
	}
	return spec, nil
}

// ParseFilters decodes the filters parameter. Each value must be a string, a
// list of strings, a boolean, or a {min?, max?} range object.
func ParseFilters(raw string) (model.Filters, error) {
	return parseFilterMap("filters", raw, true)
}

// ParseFacetFilters decodes the narrowing filters of the facet-values
// endpoint. Only strings and string lists are allowed there.
func ParseFacetFilters(raw string) (model.Filters, error) {
	return parseFilterMap("filters", raw, false)
}

func parseFilterMap(param, raw string, allowExtended bool) (model.Filters, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, paramErr(param, "invalid JSON object")
	}
	out := make(model.Filters, len(fields))
	for field, val := range fields {
		parsed, err := parseFilterValue(param, field, val, allowExtended)
		if err != nil {
			return nil, err
		}
		out[field] = parsed
	}
	return out, nil
}

func parseFilterValue(param, field string, raw json.RawMessage, allowExtended bool) (interface{}, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	if allowExtended {
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b, nil
		}
		var bounds map[string]json.RawMessage
		if err := json.Unmarshal(raw, &bounds); err == nil {
			r := model.Range{}
			for k, v := range bounds {
				var n float64
				if err := json.Unmarshal(v, &n); err != nil {
					return nil, paramErr(param, "range bound %q of %q must be a number", k, field)
				}
				switch k {
				case "min":
					min := n
					r.Min = &min
				case "max":
					max := n
					r.Max = &max
				default:
					return nil, paramErr(param, "unknown range key %q for %q", k, field)
				}
			}
			return r, nil
		}
		return nil, paramErr(param, "value for %q must be a string, string list, boolean, or {min, max} range", field)
	}
	return nil, paramErr(param, "value for %q must be a string or string list", field)
}

// ParseBoosts decodes the boosts parameter: an object of field to
// non-negative weight, in document order.
func ParseBoosts(raw string) (model.Boosts, error) {
	var boosts model.Boosts
	if err := json.Unmarshal([]byte(raw), &boosts); err != nil {
		return nil, paramErr("boosts", "invalid JSON object")
	}
	for _, b := range boosts {
		if b.Weight < 0 {
			return nil, paramErr("boosts", "weight for %q must be >= 0", b.Field)
		}
	}
	return boosts, nil
}

// ParseHistogram decodes the histogram parameter: field to integer interval
// of at least 1.
func ParseHistogram(raw string) (map[string]int, error) {
	var intervals map[string]float64
	if err := json.Unmarshal([]byte(raw), &intervals); err != nil {
		return nil, paramErr("histogram", "invalid JSON object")
	}
	out := make(map[string]int, len(intervals))
	for field, interval := range intervals {
		if interval != float64(int(interval)) || interval < 1 {
			return nil, paramErr("histogram", "interval for %q must be an integer >= 1", field)
		}
		out[field] = int(interval)
	}
	return out, nil
}

// ParseGeoGrid decodes the geoGrid parameter.
func ParseGeoGrid(raw string) (*model.GeoGrid, error) {
	var aux struct {
		Field     *string `json:"field"`
		Precision *int    `json:"precision"`
		Bounds    *struct {
			TopLeft     *model.GeoPoint `json:"top_left"`
			BottomRight *model.GeoPoint `json:"bottom_right"`
		} `json:"bounds"`
	}
	if err := json.Unmarshal([]byte(raw), &aux); err != nil {
		return nil, paramErr("geoGrid", "invalid JSON object")
	}
	if aux.Field == nil || *aux.Field == "" {
		return nil, paramErr("geoGrid", "field is required")
	}
	if aux.Precision == nil || *aux.Precision < 1 || *aux.Precision > 29 {
		return nil, paramErr("geoGrid", "precision must be within 1..29")
	}
	if aux.Bounds == nil || aux.Bounds.TopLeft == nil || aux.Bounds.BottomRight == nil {
		return nil, paramErr("geoGrid", "bounds.top_left and bounds.bottom_right are required")
	}
	return &model.GeoGrid{
		Field:     *aux.Field,
		Precision: *aux.Precision,
		Bounds: model.GeoBounds{
			TopLeft:     *aux.Bounds.TopLeft,
			BottomRight: *aux.Bounds.BottomRight,
		},
	}, nil
}
