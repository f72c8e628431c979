package handlers

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/CogappLabs/search-gateway/internal/validator"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

// parseSearchOptions builds SearchOptions from the query string of a search
// request. Absent parameters stay at their zero value so the service layer
// can tell "not given" from "given as zero" and apply index defaults.
func parseSearchOptions(q url.Values) (*model.SearchOptions, error) {
	opts := &model.SearchOptions{}

	var err error
	if opts.Page, err = parseIntParam(q, "page"); err != nil {
		return nil, err
	}
	if opts.PerPage, err = parseIntParam(q, "perPage"); err != nil {
		return nil, err
	}

	if raw := q.Get("sort"); raw != "" {
		if opts.Sort, err = validator.ParseSort(raw); err != nil {
			return nil, err
		}
	}
	if raw := q.Get("facets"); raw != "" {
		opts.Facets = splitCommaList(raw)
	}
	if raw := q.Get("filters"); raw != "" {
		if opts.Filters, err = validator.ParseFilters(raw); err != nil {
			return nil, err
		}
	}
	if raw := q.Get("highlight"); raw != "" {
		opts.Highlight = parseHighlight(raw)
	}
	if raw := q.Get("fields"); raw != "" {
		opts.Attributes = splitCommaList(raw)
	}
	if raw := q.Get("suggest"); raw != "" {
		opts.Suggest = raw == "true" || raw == "1"
	}
	if raw := q.Get("boosts"); raw != "" {
		if opts.Boosts, err = validator.ParseBoosts(raw); err != nil {
			return nil, err
		}
	}
	if raw := q.Get("histogram"); raw != "" {
		if opts.Histogram, err = validator.ParseHistogram(raw); err != nil {
			return nil, err
		}
	}
	if raw := q.Get("geoGrid"); raw != "" {
		if opts.GeoGrid, err = validator.ParseGeoGrid(raw); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// parseIntParam reads an integer parameter, zero when absent.
func parseIntParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &validator.ParamError{Param: name, Message: "must be an integer"}
	}
	return n, nil
}

// parseHighlight accepts "true", "false", or a comma-separated field list.
func parseHighlight(raw string) *model.Highlight {
	switch raw {
	case "true", "1":
		return &model.Highlight{Enabled: true}
	case "false", "0":
		return &model.Highlight{Enabled: false}
	}
	return &model.Highlight{Enabled: true, Fields: splitCommaList(raw)}
}

// splitCommaList splits a comma-separated parameter, trimming whitespace and
// dropping empty entries.
func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
