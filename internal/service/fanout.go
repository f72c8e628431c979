package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CogappLabs/search-gateway/internal/instantsearch"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

// AutocompletePerPage bounds the hit list of an autocomplete response.
const AutocompletePerPage = 5

// AutocompleteResult is the merged response of the hits query and the
// per-facet prefix lookups.
type AutocompleteResult struct {
	Hits   []map[string]interface{}      `json:"hits"`
	Facets map[string][]model.FacetValue `json:"facets,omitempty"`
}

// Autocomplete runs a small hits query concurrently with one facet-value
// prefix lookup per requested facet field and merges the results. A failed
// sibling cancels the rest and fails the request.
func (g *Gateway) Autocomplete(ctx context.Context, handle, query string, facetFields []string) (*AutocompleteResult, error) {
	if _, err := g.lookup(handle); err != nil {
		return nil, err
	}

	eg, ctx := errgroup.WithContext(ctx)

	var hits []map[string]interface{}
	eg.Go(func() error {
		opts := &model.SearchOptions{
			Page:      1,
			PerPage:   AutocompletePerPage,
			Highlight: &model.Highlight{Enabled: false},
		}
		result, err := g.Search(ctx, handle, query, opts)
		if err != nil {
			return err
		}
		hits = result.Hits
		return nil
	})

	facetResults := make([][]model.FacetValue, len(facetFields))
	for i, field := range facetFields {
		eg.Go(func() error {
			values, err := g.FacetValues(ctx, handle, field, query, model.FacetValueOptions{})
			if err != nil {
				return err
			}
			facetResults[i] = values
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := &AutocompleteResult{Hits: hits}
	for i, field := range facetFields {
		if len(facetResults[i]) == 0 {
			continue
		}
		if out.Facets == nil {
			out.Facets = map[string][]model.FacetValue{}
		}
		out.Facets[field] = facetResults[i]
	}
	return out, nil
}

// InstantSearch runs every entry of an Algolia multi-query concurrently
// against the handle's engine and renders the results in Algolia's shape.
// Sibling requests have no ordering dependency; results keep request order.
func (g *Gateway) InstantSearch(ctx context.Context, handle string, mq instantsearch.MultiQuery) (*instantsearch.MultiResult, error) {
	idx, err := g.lookup(handle)
	if err != nil {
		return nil, err
	}

	eg, ctx := errgroup.WithContext(ctx)
	results := make([]instantsearch.Result, len(mq.Requests))

	for i, req := range mq.Requests {
		eg.Go(func() error {
			translated, err := instantsearch.Translate(req, idx.Config.Defaults.Facets)
			if err != nil {
				return err
			}

			start := time.Now()
			result, err := g.Search(ctx, handle, translated.Query, &translated.Options)
			if err != nil {
				return err
			}

			// The path decides the index; the request's indexName is
			// echoed back so InstantSearch.js can match the response.
			indexName := req.IndexName
			if indexName == "" {
				indexName = handle
			}
			results[i] = instantsearch.FromSearchResult(
				indexName, translated.Query, result,
				translated.PreTag, translated.PostTag,
				time.Since(start),
			)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return &instantsearch.MultiResult{Results: results}, nil
}
