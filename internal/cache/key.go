package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/CogappLabs/search-gateway/pkg/model"
)

// Version prefixes every key. Bumping it invalidates all existing entries
// without touching Redis.
const Version = "v1"

// SearchKey derives a deterministic key for a search request. The options
// are reduced to a canonical JSON form, object keys sorted at every depth
// and arrays in insertion order, so two semantically equal requests always
// hash to the same key.
func SearchKey(handle, query string, opts *model.SearchOptions) (string, error) {
	canonical, err := canonicalJSON(query, opts)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%s:search:%s:%s", Version, handle, hex.EncodeToString(sum[:])), nil
}

// MappingKey derives the key for a cached index mapping.
func MappingKey(handle string) string {
	return fmt.Sprintf("%s:mapping:%s", Version, handle)
}

// canonicalJSON marshals {q, …options}, re-parses into generic maps, and
// marshals again. encoding/json writes map keys in sorted order at every
// depth, which makes the second pass canonical. A shallow sort would miss
// nested filter objects.
func canonicalJSON(query string, opts *model.SearchOptions) ([]byte, error) {
	raw, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	generic["q"] = query
	return json.Marshal(generic)
}
