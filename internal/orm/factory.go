package orm

import (
	"sync"

	"github.com/emrgen/ormstore/internal/entity"
	"github.com/emrgen/ormstore/internal/store"
)

// Factory builds and keeps one Model per entity.
type Factory struct {
	registry *entity.Registry
	provider store.Provider
	opts     Options

	mu     sync.Mutex
	models map[string]*Model
}

func NewFactory(registry *entity.Registry, provider store.Provider, opts Options) *Factory {
	return &Factory{
		registry: registry,
		provider: provider,
		opts:     opts,
		models:   make(map[string]*Model),
	}
}

func (f *Factory) Registry() *entity.Registry {
	return f.registry
}

// Model returns the model of the named entity.
func (f *Factory) Model(name string) (*Model, error) {
	cfg, err := f.registry.Get(name)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok := f.models[cfg.Name]; ok {
		return m, nil
	}

	m, err := New(cfg, f.provider, f.opts)
	if err != nil {
		return nil, err
	}
	f.models[cfg.Name] = m
	return m, nil
}

// Models returns the model of every registered entity.
func (f *Factory) Models() ([]*Model, error) {
	names := f.registry.Names()
	models := make([]*Model, 0, len(names))
	for _, name := range names {
		m, err := f.Model(name)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}
