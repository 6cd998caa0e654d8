package entity

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Registry holds the configuration of every known entity type. It is built
// at process start and handed to the model and store constructors.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*Config
}

func NewRegistry() *Registry {
	return &Registry{
		configs: make(map[string]*Config),
	}
}

// Register finalizes cfg and makes it available under its name.
func (r *Registry) Register(cfg *Config) error {
	if err := cfg.Finalize(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[cfg.Name]; ok {
		return fmt.Errorf("%w: entity %q registered twice", ErrConfiguration, cfg.Name)
	}
	r.configs[cfg.Name] = cfg
	return nil
}

// Get returns the configuration of the named entity.
func (r *Registry) Get(name string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: entity %q is not configured", ErrConfiguration, name)
	}
	return cfg, nil
}

// Names returns the registered entity names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse decodes a YAML entity configuration.
func Parse(name string, data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfiguration, name, err)
	}
	cfg.Name = name
	return cfg, nil
}

// LoadDir registers every *.yml / *.yaml file of dir, using the file base
// name as the entity name.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	registry := NewRegistry()
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}

		cfg, err := Parse(strings.TrimSuffix(entry.Name(), ext), data)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(cfg); err != nil {
			return nil, err
		}
		logrus.Debugf("entity %s loaded from %s", cfg.Name, entry.Name())
	}

	return registry, nil
}
