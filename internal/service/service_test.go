package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CogappLabs/search-gateway/internal/alias"
	"github.com/CogappLabs/search-gateway/internal/config"
	"github.com/CogappLabs/search-gateway/internal/instantsearch"
	"github.com/CogappLabs/search-gateway/internal/logging"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

type fakeEngine struct {
	mu          sync.Mutex
	lastQuery   string
	lastOpts    *model.SearchOptions
	lastField   string
	lastPrefix  string
	result      *model.SearchResult
	facetValues []model.FacetValue
	document    map[string]interface{}
	err         error
	searchCalls int
}

func (f *fakeEngine) Search(_ context.Context, query string, opts *model.SearchOptions) (*model.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastQuery = query
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &model.SearchResult{
		Hits:        []map[string]interface{}{},
		Page:        opts.Page,
		PerPage:     opts.PerPage,
		Facets:      map[string][]model.FacetValue{},
		Suggestions: []string{},
	}, nil
}

func (f *fakeEngine) GetDocument(_ context.Context, _ string) (map[string]interface{}, error) {
	return f.document, f.err
}

func (f *fakeEngine) SearchFacetValues(_ context.Context, field, prefix string, _ model.FacetValueOptions) ([]model.FacetValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastField = field
	f.lastPrefix = prefix
	return f.facetValues, f.err
}

func (f *fakeEngine) GetMapping(_ context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"catalog": map[string]interface{}{}}, f.err
}

func (f *fakeEngine) RawQuery(_ context.Context, body []byte) (json.RawMessage, error) {
	return json.RawMessage(`{"echo": true}`), f.err
}

func (f *fakeEngine) Kind() string { return config.EngineElasticsearch }

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.sets++
}

func (c *memoryCache) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string][]byte{}
	return nil
}

func (c *memoryCache) Connected() bool { return true }

func testGateway(t *testing.T, eng *fakeEngine, cfg *config.IndexConfig, c *memoryCache) *Gateway {
	t.Helper()
	if cfg == nil {
		cfg = &config.IndexConfig{
			Engine:  config.EngineElasticsearch,
			Host:    "http://localhost:9200",
			Indexes: []string{"catalog"},
		}
	}
	aliasMap, err := alias.New(cfg.Fields)
	require.NoError(t, err)

	g := &Gateway{
		indexes: map[string]*Index{
			"catalog": {
				Handle:       "catalog",
				Config:       cfg,
				Engine:       eng,
				Alias:        aliasMap,
				Boosts:       deriveBoosts(cfg.Fields),
				SearchFields: deriveSearchFields(cfg.Fields),
			},
		},
		log: logging.Default(),
	}
	if c != nil {
		g.cache = c
	}
	return g
}

func TestSearchUnknownHandle(t *testing.T) {
	g := testGateway(t, &fakeEngine{}, nil, nil)
	_, err := g.Search(context.Background(), "nope", "", &model.SearchOptions{})
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestSearchAppliesDefaultsAndClamps(t *testing.T) {
	eng := &fakeEngine{}
	cfg := &config.IndexConfig{
		Engine:   config.EngineElasticsearch,
		Host:     "http://localhost:9200",
		Indexes:  []string{"catalog"},
		Defaults: config.Defaults{PerPage: 25, Facets: []string{"category"}},
	}
	g := testGateway(t, eng, cfg, nil)

	_, err := g.Search(context.Background(), "catalog", "x", &model.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, eng.lastOpts.Page)
	assert.Equal(t, 25, eng.lastOpts.PerPage)
	assert.Equal(t, []string{"category"}, eng.lastOpts.Facets)

	// Request values win and are clamped.
	_, err = g.Search(context.Background(), "catalog", "x", &model.SearchOptions{Page: -2, PerPage: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, eng.lastOpts.Page)
	assert.Equal(t, 100, eng.lastOpts.PerPage)
}

func TestSearchDerivedBoostsAndSearchFields(t *testing.T) {
	eng := &fakeEngine{}
	cfg := &config.IndexConfig{
		Engine:  config.EngineElasticsearch,
		Host:    "http://localhost:9200",
		Indexes: []string{"catalog"},
		Fields: map[string]config.FieldConfig{
			"title":       {Weight: 10, Searchable: true},
			"description": {Weight: 2},
			"notes":       {Searchable: true},
		},
	}
	g := testGateway(t, eng, cfg, nil)

	_, err := g.Search(context.Background(), "catalog", "x", &model.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.Boosts{
		{Field: "title", Weight: 10},
		{Field: "description", Weight: 2},
	}, eng.lastOpts.Boosts)
	assert.Equal(t, []string{"notes", "title"}, eng.lastOpts.SearchFields)

	// Explicit request boosts win over derived ones.
	_, err = g.Search(context.Background(), "catalog", "x", &model.SearchOptions{
		Boosts: model.Boosts{{Field: "notes", Weight: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.Boosts{{Field: "notes", Weight: 3}}, eng.lastOpts.Boosts)
}

func TestSearchDerivedSearchFieldsReachEngineInBackendNames(t *testing.T) {
	eng := &fakeEngine{}
	cfg := &config.IndexConfig{
		Engine:  config.EngineElasticsearch,
		Host:    "http://localhost:9200",
		Indexes: []string{"catalog"},
		Fields: map[string]config.FieldConfig{
			"title": {Searchable: true, Alias: "title_en"},
			"notes": {Searchable: true},
		},
	}
	g := testGateway(t, eng, cfg, nil)

	_, err := g.Search(context.Background(), "catalog", "x", &model.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes", "title_en"}, eng.lastOpts.SearchFields)

	// The registry's derived list keeps its public names.
	assert.Equal(t, []string{"notes", "title"}, g.indexes["catalog"].SearchFields)
}

func TestSearchAliasTranslation(t *testing.T) {
	eng := &fakeEngine{
		result: &model.SearchResult{
			Hits: []map[string]interface{}{
				{
					"objectID":    "1",
					"_highlights": map[string][]string{"titulo": {"<mark>x</mark>"}},
				},
			},
			Facets: map[string][]model.FacetValue{
				"categoria": {{Value: "painting", Count: 3}},
			},
			Suggestions: []string{},
		},
	}
	cfg := &config.IndexConfig{
		Engine:  config.EngineElasticsearch,
		Host:    "http://localhost:9200",
		Indexes: []string{"catalog"},
		Fields: map[string]config.FieldConfig{
			"title":    {Alias: "titulo"},
			"category": {Alias: "categoria"},
		},
	}
	g := testGateway(t, eng, cfg, nil)

	result, err := g.Search(context.Background(), "catalog", "x", &model.SearchOptions{
		Facets:  []string{"category"},
		Filters: model.Filters{"category": "painting"},
		Sort:    model.SortSpec{{Field: "title", Order: "asc"}},
	})
	require.NoError(t, err)

	// Inbound: backend names reach the engine.
	assert.Equal(t, []string{"categoria"}, eng.lastOpts.Facets)
	assert.Equal(t, model.Filters{"categoria": "painting"}, eng.lastOpts.Filters)
	assert.Equal(t, "titulo", eng.lastOpts.Sort[0].Field)

	// Outbound: public names reach the client.
	assert.Contains(t, result.Facets, "category")
	highlights := result.Hits[0]["_highlights"].(map[string][]string)
	assert.Contains(t, highlights, "title")
}

func TestSearchCacheRoundTrip(t *testing.T) {
	eng := &fakeEngine{
		result: &model.SearchResult{
			Hits:        []map[string]interface{}{{"objectID": "1"}},
			TotalHits:   1,
			Facets:      map[string][]model.FacetValue{},
			Suggestions: []string{},
		},
	}
	c := newMemoryCache()
	g := testGateway(t, eng, nil, c)

	_, err := g.Search(context.Background(), "catalog", "x", &model.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, eng.searchCalls)

	// The store is fire-and-forget; wait for it.
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.sets == 1
	}, time.Second, 5*time.Millisecond)

	result, err := g.Search(context.Background(), "catalog", "x", &model.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, eng.searchCalls, "second request must be served from cache")
	assert.Equal(t, 1, result.TotalHits)
}

func TestDocumentNotFound(t *testing.T) {
	g := testGateway(t, &fakeEngine{}, nil, nil)
	_, err := g.Document(context.Background(), "catalog", "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	g = testGateway(t, &fakeEngine{document: map[string]interface{}{"objectID": "1"}}, nil, nil)
	doc, err := g.Document(context.Background(), "catalog", "1")
	require.NoError(t, err)
	assert.Equal(t, "1", doc["objectID"])
}

func TestAutocompleteMergesHitsAndFacets(t *testing.T) {
	eng := &fakeEngine{
		result: &model.SearchResult{
			Hits:        []map[string]interface{}{{"objectID": "1"}},
			Facets:      map[string][]model.FacetValue{},
			Suggestions: []string{},
		},
		facetValues: []model.FacetValue{{Value: "painting", Count: 2}},
	}
	g := testGateway(t, eng, nil, nil)

	out, err := g.Autocomplete(context.Background(), "catalog", "pa", []string{"category"})
	require.NoError(t, err)
	assert.Len(t, out.Hits, 1)
	assert.Equal(t, []model.FacetValue{{Value: "painting", Count: 2}}, out.Facets["category"])
	assert.Equal(t, "pa", eng.lastPrefix)

	// Highlighting is suppressed and the page bounded.
	assert.False(t, eng.lastOpts.Highlight.Enabled)
	assert.Equal(t, AutocompletePerPage, eng.lastOpts.PerPage)
}

func TestAutocompleteOmitsEmptyFacets(t *testing.T) {
	g := testGateway(t, &fakeEngine{}, nil, nil)
	out, err := g.Autocomplete(context.Background(), "catalog", "pa", []string{"category"})
	require.NoError(t, err)
	assert.Nil(t, out.Facets)
}

func TestInstantSearchMultiQuery(t *testing.T) {
	eng := &fakeEngine{
		result: &model.SearchResult{
			Hits:        []map[string]interface{}{},
			TotalHits:   3,
			Page:        1,
			PerPage:     5,
			TotalPages:  1,
			Facets:      map[string][]model.FacetValue{},
			Suggestions: []string{},
		},
	}
	g := testGateway(t, eng, nil, nil)

	page := 0
	perPage := 5
	out, err := g.InstantSearch(context.Background(), "catalog", instantsearch.MultiQuery{
		Requests: []instantsearch.Request{
			{
				IndexName: "catalog",
				Params: &instantsearch.Params{
					Page:        &page,
					HitsPerPage: &perPage,
					FacetFilters: []interface{}{
						[]interface{}{"category:A", "category:B"},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)

	res := out.Results[0]
	assert.Equal(t, 0, res.Page)
	assert.Equal(t, 5, res.HitsPerPage)
	assert.Equal(t, 3, res.NbHits)
	assert.True(t, res.ExhaustiveNbHits)

	assert.Equal(t, model.Filters{"category": []string{"A", "B"}}, eng.lastOpts.Filters)
}

func TestHandlesSorted(t *testing.T) {
	g := testGateway(t, &fakeEngine{}, nil, nil)
	handles := g.Handles()
	require.Len(t, handles, 1)
	assert.Equal(t, "catalog", handles[0].Handle)
	assert.Equal(t, config.EngineElasticsearch, handles[0].Engine)
}

func TestCacheStatus(t *testing.T) {
	g := testGateway(t, &fakeEngine{}, nil, nil)
	assert.Equal(t, "disabled", g.CacheStatus())

	g = testGateway(t, &fakeEngine{}, nil, newMemoryCache())
	assert.Equal(t, "connected", g.CacheStatus())
}
