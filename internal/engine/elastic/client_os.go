package elastic

import (
	"context"
	"fmt"
	"io"
	"net/http"

	opensearch "github.com/opensearch-project/opensearch-go/v2"

	"github.com/CogappLabs/search-gateway/internal/config"
)

type osTransport struct {
	client  *opensearch.Client
	indexes []string
}

func newOSTransport(cfg *config.IndexConfig) (*osTransport, error) {
	osCfg := opensearch.Config{
		Addresses: []string{cfg.Host},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpTransport(cfg.Insecure),
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &osTransport{client: client, indexes: cfg.Indexes}, nil
}

func (t *osTransport) Search(ctx context.Context, body io.Reader) ([]byte, error) {
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

func (t *osTransport) GetByID(ctx context.Context, id string) ([]byte, bool, error) {
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

func (t *osTransport) Mapping(ctx context.Context) ([]byte, error) {
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
