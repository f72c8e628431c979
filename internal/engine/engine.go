// Package engine defines the contract every backend adapter satisfies and a
// factory that builds the right adapter for an index configuration.
package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/CogappLabs/search-gateway/internal/config"
	"github.com/CogappLabs/search-gateway/internal/engine/elastic"
	"github.com/CogappLabs/search-gateway/internal/engine/meili"
	"github.com/CogappLabs/search-gateway/internal/engine/typesense"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

// Engine is the uniform capability set of a backend search engine. All
// methods honour context cancellation.
//
// GetDocument returns (nil, nil) when the document does not exist; every
// other backend failure surfaces as an error.
type Engine interface {
	Search(ctx context.Context, query string, opts *model.SearchOptions) (*model.SearchResult, error)
	GetDocument(ctx context.Context, id string) (map[string]interface{}, error)
	SearchFacetValues(ctx context.Context, field, prefix string, opts model.FacetValueOptions) ([]model.FacetValue, error)
	GetMapping(ctx context.Context) (map[string]interface{}, error)
	RawQuery(ctx context.Context, body []byte) (json.RawMessage, error)
	// Kind reports the engine kind for logging and metrics.
	Kind() string
}

// New builds the adapter for the configured engine kind.
func New(cfg *config.IndexConfig) (Engine, error) {
	switch cfg.Engine {
	case config.EngineElasticsearch:
		return elastic.NewElasticsearch(cfg)
	case config.EngineOpenSearch:
		return elastic.NewOpenSearch(cfg)
	case config.EngineMeilisearch:
		return meili.New(cfg)
	case config.EngineTypesense:
		return typesense.New(cfg)
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
