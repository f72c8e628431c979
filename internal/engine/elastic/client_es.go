package elastic

import (
	"context"
	"fmt"
	"io"
	"net/http"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/CogappLabs/search-gateway/internal/config"
)

type esTransport struct {
	client  *elasticsearch.Client
	indexes []string
}

func newESTransport(cfg *config.IndexConfig) (*esTransport, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.Host},
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: httpTransport(cfg.Insecure),
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &esTransport{client: es, indexes: cfg.Indexes}, nil
}

func (t *esTransport) Search(ctx context.Context, body io.Reader) ([]byte, error) {
	res, err := t.client.Search(
		t.client.Search.WithContext(ctx),
		t.client.Search.WithIndex(t.indexes...),
		t.client.Search.WithBody(body),
	)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}
	return io.ReadAll(res.Body)
}

func (t *esTransport) GetByID(ctx context.Context, id string) ([]byte, bool, error) {
	res, err := t.client.Get(t.indexes[0], id, t.client.Get.WithContext(ctx))
	if err != nil {
		return nil, false, fmt.Errorf("get request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if res.IsError() {
		return nil, false, fmt.Errorf("get error: %s", res.String())
	}
	data, err := io.ReadAll(res.Body)
	return data, true, err
}

func (t *esTransport) Mapping(ctx context.Context) ([]byte, error) {
	res, err := t.client.Indices.GetMapping(
		t.client.Indices.GetMapping.WithContext(ctx),
		t.client.Indices.GetMapping.WithIndex(t.indexes...),
	)
	if err != nil {
		return nil, fmt.Errorf("mapping request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("mapping error: %s", res.String())
	}
	return io.ReadAll(res.Body)
}
