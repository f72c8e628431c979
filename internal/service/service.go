// Package service hosts the request orchestrator: it owns the handle
// registry, applies per-index defaults, translates field aliases in both
// directions, consults the result cache, and dispatches to the engines.
package service

import (
	"context"
	"errors"
	"sort"

	"github.com/CogappLabs/search-gateway/internal/alias"
	"github.com/CogappLabs/search-gateway/internal/cache"
	"github.com/CogappLabs/search-gateway/internal/config"
	"github.com/CogappLabs/search-gateway/internal/engine"
	"github.com/CogappLabs/search-gateway/internal/logging"
	"github.com/CogappLabs/search-gateway/pkg/model"
)

var (
	// ErrIndexNotFound marks an unknown handle; the HTTP layer maps it to 404.
	ErrIndexNotFound = errors.New("index not found")
	// ErrDocumentNotFound marks a missing document; the HTTP layer maps it to 404.
	ErrDocumentNotFound = errors.New("document not found")
)

// Index bundles the per-handle state built once at startup.
type Index struct {
	Handle string
	Config *config.IndexConfig
	Engine engine.Engine
	Alias  *alias.Map

	// Derived from the field configuration: boosts ordered by weight
	// descending (name ascending on ties) and the explicitly searchable
	// fields, both in public names.
	Boosts       model.Boosts
	SearchFields []string
}

// Gateway is the orchestrator. Its registry is read-only after New.
type Gateway struct {
	indexes map[string]*Index
	cache   cache.Cache
	log     *logging.Logger
}

// New builds every engine adapter and alias map up front so configuration
// errors surface at startup, not on the first request.
func New(cfg *config.Config, c cache.Cache, log *logging.Logger) (*Gateway, error) {
	indexes := make(map[string]*Index, len(cfg.Indexes))
	for handle, idxCfg := range cfg.Indexes {
		eng, err := engine.New(idxCfg)
		if err != nil {
			return nil, errors.New("index " + handle + ": " + err.Error())
		}
		aliasMap, err := alias.New(idxCfg.Fields)
		if err != nil {
			return nil, errors.New("index " + handle + ": " + err.Error())
		}
		indexes[handle] = &Index{
			Handle:       handle,
			Config:       idxCfg,
			Engine:       eng,
			Alias:        aliasMap,
			Boosts:       deriveBoosts(idxCfg.Fields),
			SearchFields: deriveSearchFields(idxCfg.Fields),
		}
	}
	return &Gateway{indexes: indexes, cache: c, log: log}, nil
}

func deriveBoosts(fields map[string]config.FieldConfig) model.Boosts {
	var boosts model.Boosts
	for name, f := range fields {
		if f.Weight > 0 {
			boosts = append(boosts, model.BoostField{Field: name, Weight: f.Weight})
		}
	}
	sort.Slice(boosts, func(i, j int) bool {
		if boosts[i].Weight != boosts[j].Weight {
			return boosts[i].Weight > boosts[j].Weight
		}
		return boosts[i].Field < boosts[j].Field
	})
	return boosts
}

func deriveSearchFields(fields map[string]config.FieldConfig) []string {
	var out []string
	for name, f := range fields {
		if f.Searchable {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (g *Gateway) lookup(handle string) (*Index, error) {
	idx, ok := g.indexes[handle]
	if !ok {
		return nil, ErrIndexNotFound
	}
	return idx, nil
}

// HandleInfo is one row of the index listing.
type HandleInfo struct {
	Handle string `json:"handle"`
	Engine string `json:"engine"`
}

// Handles lists the configured handles, sorted for stable output.
func (g *Gateway) Handles() []HandleInfo {
	out := make([]HandleInfo, 0, len(g.indexes))
	for handle, idx := range g.indexes {
		out = append(out, HandleInfo{Handle: handle, Engine: idx.Config.Engine})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// CacheStatus reports the cache state for the health endpoint.
func (g *Gateway) CacheStatus() string {
	if g.cache == nil {
		return "disabled"
	}
	if g.cache.Connected() {
		return "connected"
	}
	return "error"
}

// FlushCache clears the result cache.
func (g *Gateway) FlushCache(ctx context.Context) error {
	if g.cache == nil {
		return nil
	}
	return g.cache.Flush(ctx)
}
