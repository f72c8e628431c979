package elastic

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CogappLabs/search-gateway/internal/config"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

type fakeTransport struct {
	lastBody        []byte
	searchCalls     int
	mappingCalls    int
	searchResponse  []byte
	mappingResponse []byte
	getResponse     []byte
	getFound        bool
	err             error
}

func (f *fakeTransport) Search(_ context.Context, body io.Reader) ([]byte, error) {
	f.searchCalls++
	f.lastBody, _ = io.ReadAll(body)
	if f.err != nil {
		return nil, f.err
	}
	return f.searchResponse, nil
}

func (f *fakeTransport) GetByID(_ context.Context, _ string) ([]byte, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	return f.getResponse, f.getFound, nil
}

func (f *fakeTransport) Mapping(_ context.Context) ([]byte, error) {
	f.mappingCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.mappingResponse, nil
}

func testEngine(cfg *config.IndexConfig, t *fakeTransport) *Engine {
	if cfg == nil {
		cfg = &config.IndexConfig{
			Engine:  config.EngineElasticsearch,
			Host:    "http://localhost:9200",
			Indexes: []string{"catalog"},
		}
	}
	if t == nil {
		t = &fakeTransport{}
	}
	return newEngine(cfg, t, cfg.Engine)
}

func baseOptions() *model.SearchOptions {
	return &model.SearchOptions{Page: 1, PerPage: 10}
}

func TestTextClauseWithBoosts(t *testing.T) {
	opts := baseOptions()
	opts.Boosts = model.Boosts{
		{Field: "title", Weight: 10},
		{Field: "description", Weight: 2},
	}

	body := testEngine(nil, nil).buildSearchBody(context.Background(), "castle", opts)

	must := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["must"].([]interface{})
	require.Len(t, must, 1)
	mm := must[0].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, "castle", mm["query"])
	assert.Equal(t, "bool_prefix", mm["type"])
	assert.Equal(t, []string{"title^10", "description^2"}, mm["fields"])
}

func TestTextClauseBlankQueryMatchesAll(t *testing.T) {
	opts := baseOptions()
	opts.Boosts = model.Boosts{{Field: "title", Weight: 5}}

	body := testEngine(nil, nil).buildSearchBody(context.Background(), "  ", opts)

	must := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["must"].([]interface{})
	require.Len(t, must, 1)
	_, ok := must[0].(map[string]interface{})["match_all"]
	assert.True(t, ok, "blank query should emit match_all, boosts notwithstanding")
}

func TestTextClauseSearchableFields(t *testing.T) {
	opts := baseOptions()
	opts.SearchFields = []string{"title", "body"}

	body := testEngine(nil, nil).buildSearchBody(context.Background(), "x", opts)

	must := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["must"].([]interface{})
	mm := must[0].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, []string{"title", "body"}, mm["fields"])
}

func TestTextClauseDefaultsToAllFields(t *testing.T) {
	body := testEngine(nil, nil).buildSearchBody(context.Background(), "x", baseOptions())

	must := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["must"].([]interface{})
	mm := must[0].(map[string]interface{})["multi_match"].(map[string]interface{})
	assert.Equal(t, []string{"*"}, mm["fields"])
}

func TestDisjunctiveFacetSplit(t *testing.T) {
	opts := baseOptions()
	opts.Facets = []string{"category", "period"}
	opts.Filters = model.Filters{"category": "painting"}

	body := testEngine(nil, nil).buildSearchBody(context.Background(), "", opts)

	// The facet filter must not narrow the main query.
	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Nil(t, boolQuery["filter"])

	// It narrows hits through the post_filter instead.
	post := body["post_filter"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	require.Len(t, post, 1)
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"category": "painting"}}, post[0])

	aggs := body["aggs"].(map[string]interface{})

	// The filtered facet's own aggregation stays unwrapped so its
	// alternatives keep their counts.
	category := aggs["category"].(map[string]interface{})
	_, wrapped := category["filter"]
	assert.False(t, wrapped)
	assert.Equal(t, map[string]interface{}{"field": "category", "size": 100}, category["terms"])

	// Every other facet is wrapped in the category clause.
	period := aggs["period"].(map[string]interface{})
	clauses := period["filter"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	require.Len(t, clauses, 1)
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"category": "painting"}}, clauses[0])
	inner := period["aggs"].(map[string]interface{})["period"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"field": "period", "size": 100}, inner["terms"])
}

func TestNonFacetFiltersStayInMainQuery(t *testing.T) {
	opts := baseOptions()
	opts.Facets = []string{"category"}
	opts.Filters = model.Filters{
		"published": true,
		"tags":      []string{"a", "b"},
		"price":     model.Range{Min: ptr(10.0), Max: ptr(20.0)},
	}

	body := testEngine(nil, nil).buildSearchBody(context.Background(), "", opts)

	assert.Nil(t, body["post_filter"])
	filters := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	require.Len(t, filters, 3)

	byKind := map[string]map[string]interface{}{}
	for _, f := range filters {
		for k := range f {
			byKind[k] = f
		}
	}
	assert.Equal(t, map[string]interface{}{"tags": []string{"a", "b"}}, byKind["terms"]["terms"])
	assert.Equal(t, map[string]interface{}{"price": map[string]interface{}{"gte": 10.0, "lte": 20.0}}, byKind["range"]["range"])
}

func TestNestedFilterAndFacetWrapping(t *testing.T) {
	cfg := &config.IndexConfig{
		Engine:  config.EngineElasticsearch,
		Host:    "http://localhost:9200",
		Indexes: []string{"catalog"},
		Fields: map[string]config.FieldConfig{
			"artists.name": {Nested: "artists"},
		},
	}
	opts := baseOptions()
	opts.Facets = []string{"artists.name", "period"}
	opts.Filters = model.Filters{
		"artists.name": "Rembrandt",
		"period":       "modern",
	}

	body := testEngine(cfg, nil).buildSearchBody(context.Background(), "", opts)

	aggs := body["aggs"].(map[string]interface{})

	// Filter wrapper outside, nested wrapper inside.
	artists := aggs["artists.name"].(map[string]interface{})
	require.Contains(t, artists, "filter")
	nested := artists["aggs"].(map[string]interface{})["artists.name"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"path": "artists"}, nested["nested"])
	terms := nested["aggs"].(map[string]interface{})["artists.name"].(map[string]interface{})["terms"]
	assert.Equal(t, map[string]interface{}{"field": "artists.name", "size": 100}, terms)

	// The nested filter clause wraps in a nested query.
	post := body["post_filter"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	var foundNested bool
	for _, clause := range post {
		if n, ok := clause["nested"].(map[string]interface{}); ok {
			foundNested = true
			assert.Equal(t, "artists", n["path"])
			assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"artists.name": "Rembrandt"}}, n["query"])
		}
	}
	assert.True(t, foundNested)
}

func TestHistogramAggregation(t *testing.T) {
	opts := baseOptions()
	opts.Histogram = map[string]int{"year": 10}

	body := testEngine(nil, nil).buildSearchBody(context.Background(), "", opts)

	agg := body["aggs"].(map[string]interface{})["__histogram_year"].(map[string]interface{})["histogram"].(map[string]interface{})
	assert.Equal(t, "year", agg["field"])
	assert.Equal(t, 10, agg["interval"])
	assert.Equal(t, 1, agg["min_doc_count"])
}

func TestGeoGridQuery(t *testing.T) {
	opts := baseOptions()
	opts.GeoGrid = &model.GeoGrid{
		Field:     "location",
		Precision: 6,
		Bounds: model.GeoBounds{
			TopLeft:     model.GeoPoint{Lat: 55.0, Lon: -6.0},
			BottomRight: model.GeoPoint{Lat: 50.0, Lon: 2.0},
		},
	}

	body := testEngine(nil, nil).buildSearchBody(context.Background(), "", opts)

	filters := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	require.Len(t, filters, 1)
	box := filters[0]["geo_bounding_box"].(map[string]interface{})["location"].(map[string]interface{})
	assert.Equal(t, 55.0, box["top_left"].(map[string]interface{})["lat"])

	grid := body["aggs"].(map[string]interface{})["__geo_grid"].(map[string]interface{})
	tile := grid["geotile_grid"].(map[string]interface{})
	assert.Equal(t, "location", tile["field"])
	assert.Equal(t, 6, tile["precision"])
	sample := grid["aggs"].(map[string]interface{})["sample"].(map[string]interface{})["top_hits"].(map[string]interface{})
	assert.Equal(t, 1, sample["size"])
}

func TestSortResolvesKeywordSubField(t *testing.T) {
	ft := &fakeTransport{
		mappingResponse: []byte(`{
			"catalog": {"mappings": {"properties": {
				"title": {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
				"year": {"type": "integer"}
			}}}
		}`),
	}
	e := testEngine(nil, ft)

	opts := baseOptions()
	opts.Sort = model.SortSpec{{Field: "title", Order: "asc"}, {Field: "year", Order: "desc"}}

	body := e.buildSearchBody(context.Background(), "test", opts)

	sort := body["sort"].([]map[string]interface{})
	require.Len(t, sort, 2)
	assert.Equal(t, map[string]interface{}{"order": "asc"}, sort[0]["title.keyword"])
	assert.Equal(t, map[string]interface{}{"order": "desc"}, sort[1]["year"])

	// Second build must reuse the memoized mapping.
	e.buildSearchBody(context.Background(), "test", opts)
	assert.Equal(t, 1, ft.mappingCalls)
}

func TestSortFallsBackWhenMappingUnavailable(t *testing.T) {
	e := testEngine(nil, &fakeTransport{err: assert.AnError})

	opts := baseOptions()
	opts.Sort = model.SortSpec{{Field: "title", Order: "asc"}}

	body := e.buildSearchBody(context.Background(), "test", opts)
	sort := body["sort"].([]map[string]interface{})
	assert.Contains(t, sort[0], "title")
}

func TestHighlightSection(t *testing.T) {
	opts := baseOptions()
	opts.Highlight = &model.Highlight{Enabled: true}

	body := testEngine(nil, nil).buildSearchBody(context.Background(), "x", opts)
	hl := body["highlight"].(map[string]interface{})
	assert.Equal(t, []string{"<mark>"}, hl["pre_tags"])
	assert.Contains(t, hl["fields"].(map[string]interface{}), "*")

	opts.Highlight = &model.Highlight{Enabled: true, Fields: []string{"title"}}
	body = testEngine(nil, nil).buildSearchBody(context.Background(), "x", opts)
	fields := body["highlight"].(map[string]interface{})["fields"].(map[string]interface{})
	assert.Contains(t, fields, "title")
	assert.NotContains(t, fields, "*")
}

func TestSuggestRequiresQueryAndField(t *testing.T) {
	cfg := &config.IndexConfig{
		Engine:   config.EngineElasticsearch,
		Host:     "http://localhost:9200",
		Indexes:  []string{"catalog"},
		Defaults: config.Defaults{SuggestField: "title"},
	}
	opts := baseOptions()
	opts.Suggest = true

	body := testEngine(cfg, nil).buildSearchBody(context.Background(), "castel", opts)
	suggest := body["suggest"].(map[string]interface{})["suggestion"].(map[string]interface{})
	assert.Equal(t, "castel", suggest["text"])
	phrase := suggest["phrase"].(map[string]interface{})
	assert.Equal(t, "title", phrase["field"])
	assert.Equal(t, 3, phrase["size"])
	assert.Equal(t, 3, phrase["gram_size"])

	// Blank query suppresses the suggester.
	body = testEngine(cfg, nil).buildSearchBody(context.Background(), "", opts)
	assert.Nil(t, body["suggest"])

	// So does a handle without a suggest field.
	body = testEngine(nil, nil).buildSearchBody(context.Background(), "castel", opts)
	assert.Nil(t, body["suggest"])
}

func TestPagination(t *testing.T) {
	opts := &model.SearchOptions{Page: 3, PerPage: 20}
	body := testEngine(nil, nil).buildSearchBody(context.Background(), "", opts)
	assert.Equal(t, 40, body["from"])
	assert.Equal(t, 20, body["size"])
}

func TestCaseInsensitivePattern(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"ab", ".*[aA][bB].*"},
		{"Ab1", ".*[aA][bB]1.*"},
		{"a.b", `.*[aA]\.[bB].*`},
		{"", ".*.*"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, caseInsensitivePattern(tt.prefix), tt.prefix)
	}
}

func TestBuildFacetValuesBody(t *testing.T) {
	e := testEngine(nil, nil)

	body := e.buildFacetValuesBody("category", "pa", model.FacetValueOptions{
		MaxValues: 5,
		Filters:   model.Filters{"period": "modern"},
	})

	assert.Equal(t, 0, body["size"])
	clauses := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	require.Len(t, clauses, 1)

	terms := body["aggs"].(map[string]interface{})["facet_values"].(map[string]interface{})["terms"].(map[string]interface{})
	assert.Equal(t, "category", terms["field"])
	assert.Equal(t, 5, terms["size"])
	assert.Equal(t, ".*[pP][aA].*", terms["include"])
}

func ptr(f float64) *float64 { return &f }
