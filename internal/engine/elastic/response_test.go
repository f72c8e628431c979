package elastic

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CogappLabs/search-gateway/internal/config"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

const searchResponseFixture = `{
	"hits": {
		"total": {"value": 42},
		"hits": [
			{
				"_id": "doc-1",
				"_index": "catalog",
				"_score": 1.5,
				"_source": {"title": "Castle", "objectID": "spoofed", "_index": "spoofed"},
				"highlight": {"title": ["<mark>Castle</mark>"]}
			},
			{
				"_id": "doc-2",
				"_index": "catalog",
				"_score": null,
				"_source": {"title": "Abbey"}
			}
		]
	},
	"aggregations": {
		"category": {
			"buckets": [
				{"key": "painting", "doc_count": 30},
				{"key": "sculpture", "doc_count": 12}
			]
		},
		"period": {
			"doc_count": 30,
			"period": {
				"buckets": [{"key": "modern", "doc_count": 18}]
			}
		},
		"__histogram_year": {
			"buckets": [
				{"key": 1900, "doc_count": 7},
				{"key": 1910, "doc_count": 3}
			]
		}
	},
	"suggest": {
		"suggestion": [
			{"options": [{"text": "castle"}, {"text": "casting"}]}
		]
	}
}`

func TestParseSearchResponse(t *testing.T) {
	opts := &model.SearchOptions{
		Page:      2,
		PerPage:   10,
		Facets:    []string{"category", "period"},
		Histogram: map[string]int{"year": 10},
	}

	result, err := parseSearchResponse([]byte(searchResponseFixture), opts)
	require.NoError(t, err)

	assert.Equal(t, 42, result.TotalHits)
	assert.Equal(t, 2, result.Page)
	assert.Equal(t, 10, result.PerPage)
	assert.Equal(t, 5, result.TotalPages)

	require.Len(t, result.Hits, 2)
	first := result.Hits[0]
	assert.Equal(t, "doc-1", first["objectID"], "backend id wins over a spoofed source field")
	assert.Equal(t, "catalog", first["_index"])
	assert.Equal(t, 1.5, first["_score"])
	assert.Equal(t, "Castle", first["title"])
	assert.Equal(t, map[string][]string{"title": {"<mark>Castle</mark>"}}, first["_highlights"])

	second := result.Hits[1]
	assert.Nil(t, second["_score"])
	assert.Equal(t, map[string][]string{}, second["_highlights"])

	assert.Equal(t, []model.FacetValue{
		{Value: "painting", Count: 30},
		{Value: "sculpture", Count: 12},
	}, result.Facets["category"])
	assert.Equal(t, []model.FacetValue{{Value: "modern", Count: 18}}, result.Facets["period"],
		"filter-wrapped aggregation unwraps by name")

	assert.Equal(t, []model.HistogramBucket{
		{Key: 1900, Count: 7},
		{Key: 1910, Count: 3},
	}, result.Histograms["year"])

	assert.Equal(t, []string{"castle", "casting"}, result.Suggestions)
}

func TestParseTotalShapes(t *testing.T) {
	assert.Equal(t, 7, parseTotal(json.RawMessage(`7`)))
	assert.Equal(t, 7, parseTotal(json.RawMessage(`{"value": 7, "relation": "eq"}`)))
	assert.Equal(t, 0, parseTotal(nil))
}

func TestExtractBucketsNestedThenFilterWrapped(t *testing.T) {
	raw := json.RawMessage(`{
		"doc_count": 10,
		"artists": {
			"doc_count": 25,
			"artists": {
				"buckets": [{"key": "Rembrandt", "doc_count": 5}]
			}
		}
	}`)
	buckets := extractBuckets("artists", raw)
	require.Len(t, buckets, 1)
	assert.Equal(t, "Rembrandt", buckets[0].Key)
	assert.Equal(t, 5, buckets[0].DocCount)
}

func TestBucketValueFormatting(t *testing.T) {
	assert.Equal(t, "painting", bucketValue(rawBucket{Key: "painting"}))
	assert.Equal(t, "1900", bucketValue(rawBucket{Key: float64(1900)}))
	assert.Equal(t, "1900.5", bucketValue(rawBucket{Key: float64(1900.5)}))
	assert.Equal(t, "true", bucketValue(rawBucket{Key: true}))
	assert.Equal(t, "1", bucketValue(rawBucket{Key: float64(1), KeyAsString: "1"}))
}

func TestParseGeoClusters(t *testing.T) {
	opts := &model.SearchOptions{
		Page:    1,
		PerPage: 10,
		GeoGrid: &model.GeoGrid{Field: "location", Precision: 6, Bounds: model.GeoBounds{}},
	}
	response := `{
		"hits": {"total": {"value": 3}, "hits": []},
		"aggregations": {
			"__geo_grid": {
				"buckets": [
					{
						"key": "6/31/21",
						"doc_count": 3,
						"sample": {"hits": {"hits": [
							{"_id": "d1", "_index": "catalog", "_score": null, "_source": {"title": "Keep"}}
						]}}
					}
				]
			}
		}
	}`

	result, err := parseSearchResponse([]byte(response), opts)
	require.NoError(t, err)
	require.Len(t, result.GeoClusters, 1)

	cluster := result.GeoClusters[0]
	assert.Equal(t, "6/31/21", cluster.Key)
	assert.Equal(t, 3, cluster.Count)
	assert.Greater(t, cluster.Lat, 50.0)
	assert.Less(t, cluster.Lat, 56.0)
	assert.Greater(t, cluster.Lng, -6.0)
	assert.Less(t, cluster.Lng, 0.0)
	require.NotNil(t, cluster.Hit)
	assert.Equal(t, "d1", cluster.Hit["objectID"])
}

func TestSearchEndToEndAgainstFakeTransport(t *testing.T) {
	ft := &fakeTransport{searchResponse: []byte(searchResponseFixture)}
	e := testEngine(nil, ft)

	opts := &model.SearchOptions{Page: 1, PerPage: 10, Facets: []string{"category"}}
	result, err := e.Search(context.Background(), "castle", opts)
	require.NoError(t, err)
	assert.Equal(t, 42, result.TotalHits)

	// The emitted body must be valid JSON carrying the expected skeleton.
	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(ft.lastBody, &sent))
	assert.Contains(t, sent, "query")
	assert.Contains(t, sent, "aggs")
	assert.Equal(t, true, sent["track_total_hits"])
}

func TestGetDocumentSingleIndex(t *testing.T) {
	ft := &fakeTransport{
		getFound:    true,
		getResponse: []byte(`{"_id": "d1", "_index": "catalog", "_source": {"title": "Castle"}}`),
	}
	e := testEngine(nil, ft)

	doc, err := e.GetDocument(context.Background(), "d1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "d1", doc["objectID"])
	assert.Equal(t, "Castle", doc["title"])

	ft.getFound = false
	doc, err = e.GetDocument(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestGetDocumentMultiIndexUsesIdsQuery(t *testing.T) {
	ft := &fakeTransport{
		searchResponse: []byte(`{"hits": {"total": 1, "hits": [
			{"_id": "d1", "_index": "catalog-a", "_source": {"title": "Castle"}}
		]}}`),
	}
	cfg := &config.IndexConfig{
		Engine:  config.EngineElasticsearch,
		Host:    "http://localhost:9200",
		Indexes: []string{"catalog-a", "catalog-b"},
	}
	e := testEngine(cfg, ft)

	doc, err := e.GetDocument(context.Background(), "d1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "catalog-a", doc["_index"])

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(ft.lastBody, &sent))
	ids := sent["query"].(map[string]interface{})["ids"].(map[string]interface{})
	assert.Equal(t, []interface{}{"d1"}, ids["values"])

	ft.searchResponse = []byte(`{"hits": {"total": 0, "hits": []}}`)
	doc, err = e.GetDocument(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestSearchFacetValues(t *testing.T) {
	ft := &fakeTransport{
		searchResponse: []byte(`{
			"hits": {"total": 0, "hits": []},
			"aggregations": {
				"facet_values": {"buckets": [
					{"key": "painting", "doc_count": 12},
					{"key": "pastel", "doc_count": 4}
				]}
			}
		}`),
	}
	e := testEngine(nil, ft)

	values, err := e.SearchFacetValues(context.Background(), "category", "pa", model.FacetValueOptions{})
	require.NoError(t, err)
	assert.Equal(t, []model.FacetValue{
		{Value: "painting", Count: 12},
		{Value: "pastel", Count: 4},
	}, values)
}

func TestRawQueryPassthrough(t *testing.T) {
	ft := &fakeTransport{searchResponse: []byte(`{"took": 3, "hits": {}}`)}
	e := testEngine(nil, ft)

	out, err := e.RawQuery(context.Background(), []byte(`{"query": {"match_all": {}}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"took": 3, "hits": {}}`, string(out))
	assert.JSONEq(t, `{"query": {"match_all": {}}}`, string(ft.lastBody))
}

func TestGetMappingMemoized(t *testing.T) {
	ft := &fakeTransport{mappingResponse: []byte(`{"catalog": {"mappings": {"properties": {}}}}`)}
	e := testEngine(nil, ft)

	first, err := e.GetMapping(context.Background())
	require.NoError(t, err)
	second, err := e.GetMapping(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, ft.mappingCalls)
}
