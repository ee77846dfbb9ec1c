package providers

import (
	"github.com/heliowatt/heliowatt/config"
	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
)

// Registry maps provider names to their adapters. Callers resolve by name and
// then talk to the capability interface only.
type Registry struct {
	adapters map[string]domain.Provider
}

// NewRegistry builds the registry with all four vendor adapters.
func NewRegistry(cfg *config.Config) *Registry {
	adapters := map[string]domain.Provider{
		domain.ProviderTesla:     NewTesla(cfg.Tesla),
		domain.ProviderEnphase:   NewEnphase(cfg.Enphase),
		domain.ProviderSolarEdge: NewSolarEdge(cfg.SolarEdge),
		domain.ProviderWallbox:   NewWallbox(cfg.Wallbox),
	}
	return &Registry{adapters: adapters}
}

// NewRegistryWith builds a registry from explicit adapters (tests, partial
// deployments).
func NewRegistryWith(adapters ...domain.Provider) *Registry {
	m := make(map[string]domain.Provider, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Get resolves a provider by name.
func (r *Registry) Get(name string) (domain.Provider, error) {
	p, ok := r.adapters[name]
	if !ok {
		return nil, herrors.ErrUnknownProvider
	}
	return p, nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
