package elastic

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"
)

// Transport is the narrow client surface the shared algorithm needs. The
// Elasticsearch and OpenSearch clients differ only in construction; both
// satisfy this contract with a thin wrapper.
type Transport interface {
	// Search executes a query DSL body against the configured indexes and
	// returns the raw response payload.
	Search(ctx context.Context, body io.Reader) ([]byte, error)
	// GetByID fetches one document from the first configured index. The
	// second return value is false when the backend reports 404.
	GetByID(ctx context.Context, id string) ([]byte, bool, error)
	// Mapping returns the raw mapping payload for the configured indexes.
	Mapping(ctx context.Context) ([]byte, error)
}

// httpTransport builds the HTTP transport shared by both clients. A stuck
// backend must not hold a request forever, so response headers carry a
// deadline independent of the caller's context.
func httpTransport(insecure bool) *http.Transport {
	tr := &http.Transport{
		MaxIdleConnsPerHost:   10,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return tr
}
