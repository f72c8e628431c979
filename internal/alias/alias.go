// Package alias translates public field names to backend field names and
// back. Every index handle gets one Map, derived from its field
// configuration at startup.
package alias

import (
	"fmt"

	"github.com/CogappLabs/search-gateway/internal/config"
)

// Map holds the two injective name maps for one index. Names without an
// entry pass through unchanged in both directions.
type Map struct {
	toBackend   map[string]string
	fromBackend map[string]string
}

// New derives a Map from the per-field configuration. Two public fields
// targeting the same backend field is a configuration error because the
// reverse direction would be ambiguous.
func New(fields map[string]config.FieldConfig) (*Map, error) {
	m := &Map{
		toBackend:   make(map[string]string),
		fromBackend: make(map[string]string),
	}
	for name, f := range fields {
		if f.Alias == "" || f.Alias == name {
			continue
		}
		if prev, ok := m.fromBackend[f.Alias]; ok {
			return nil, fmt.Errorf("fields %q and %q both map to backend field %q", prev, name, f.Alias)
		}
		m.toBackend[name] = f.Alias
		m.fromBackend[f.Alias] = name
	}
	return m, nil
}

// Empty reports whether the map has no entries. All key and array
// operations return their input unchanged in that case.
func (m *Map) Empty() bool {
	return m == nil || len(m.toBackend) == 0
}

// ToBackend translates a public field name; identity on miss.
func (m *Map) ToBackend(name string) string {
	if m.Empty() {
		return name
	}
	if backend, ok := m.toBackend[name]; ok {
		return backend
	}
	return name
}

// FromBackend translates a backend field name; identity on miss.
func (m *Map) FromBackend(name string) string {
	if m.Empty() {
		return name
	}
	if public, ok := m.fromBackend[name]; ok {
		return public
	}
	return name
}

// ArrayToBackend translates a list of public field names.
func (m *Map) ArrayToBackend(names []string) []string {
	if m.Empty() || len(names) == 0 {
		return names
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = m.ToBackend(n)
	}
	return out
}

// ArrayFromBackend translates a list of backend field names.
func (m *Map) ArrayFromBackend(names []string) []string {
	if m.Empty() || len(names) == 0 {
		return names
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = m.FromBackend(n)
	}
	return out
}

// KeysToBackend translates the keys of a map, leaving values untouched.
func KeysToBackend[V any](m *Map, in map[string]V) map[string]V {
	if m.Empty() || len(in) == 0 {
		return in
	}
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[m.ToBackend(k)] = v
	}
	return out
}

// KeysFromBackend translates the keys of a map, leaving values untouched.
func KeysFromBackend[V any](m *Map, in map[string]V) map[string]V {
	if m.Empty() || len(in) == 0 {
		return in
	}
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[m.FromBackend(k)] = v
	}
	return out
}
