// Package router maps dialects to the translation providers that can render them.
package router

import (
	"fmt"
	"slices"

	"github.com/pario-ai/dexcache/pkg/config"
	"github.com/pario-ai/dexcache/pkg/models"
)

// Route is one provider attempt: which provider to call and the dialect name it expects.
type Route struct {
	Provider config.ProviderConfig
	Dialect  string
}

// chain is a resolved route list, or the reason the configured route cannot be served.
type chain struct {
	routes []Route
	err    error
}

// Router holds provider chains resolved once from configuration.
type Router struct {
	chains   map[models.Dialect]chain
	fallback *config.ProviderConfig
}

// New resolves every configured route against the provider list. Targets naming
// an unknown provider are dropped; a route left with no targets fails at Resolve.
func New(cfg config.DialectConfig) *Router {
	r := &Router{chains: make(map[models.Dialect]chain, len(cfg.Routes))}
	if len(cfg.Providers) == 0 {
		return r
	}
	first := cfg.Providers[0]
	r.fallback = &first

	byName := make(map[string]config.ProviderConfig, len(cfg.Providers))
	for _, p := range cfg.Providers {
		byName[p.Name] = p
	}
	for _, rc := range cfg.Routes {
		d := models.Dialect(rc.Dialect)
		if _, seen := r.chains[d]; seen {
			continue // first route for a dialect wins
		}
		var c chain
		for _, target := range rc.Targets {
			p, ok := byName[target.Provider]
			if !ok {
				continue
			}
			remote := target.Dialect
			if remote == "" {
				remote = rc.Dialect
			}
			c.routes = append(c.routes, Route{Provider: p, Dialect: remote})
		}
		if len(c.routes) == 0 {
			c.err = fmt.Errorf("route %q: all providers unknown", rc.Dialect)
		}
		r.chains[d] = c
	}
	return r
}

// Resolve returns the providers to try, in order, for dialect d. Dialects
// without a configured route go to the first provider under their own name.
func (r *Router) Resolve(d models.Dialect) ([]Route, error) {
	if r.fallback == nil {
		return nil, fmt.Errorf("no translation providers configured")
	}
	if c, ok := r.chains[d]; ok {
		if c.err != nil {
			return nil, c.err
		}
		return slices.Clone(c.routes), nil
	}
	return []Route{{Provider: *r.fallback, Dialect: string(d)}}, nil
}
