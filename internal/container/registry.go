package container

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ravikumarmistry/quix/internal/entity"
)

// Config maps a logical entity type to its physical container.
type Config struct {
	EntityName        string `mapstructure:"entityName" yaml:"entityName"`
	ContainerID       string `mapstructure:"containerId" yaml:"containerId"`
	PartitionKeyField string `mapstructure:"partitionKeyField" yaml:"partitionKeyField"`
}

// Registry holds the container configuration of every known entity type.
// Entries are registered at startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Config
}

func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{entries: make(map[string]Config, len(configs))}
	for _, c := range configs {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c. ContainerID defaults to the entity name and
// PartitionKeyField to "id".
func (r *Registry) Register(c Config) error {
	if c.EntityName == "" {
		return fmt.Errorf("container config without entity name")
	}
	c = withDefaults(c)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[c.EntityName]; exists {
		return fmt.Errorf("entity %q registered twice", c.EntityName)
	}
	r.entries[c.EntityName] = c
	return nil
}

// Lookup returns the configuration for entityName. Unregistered types get a
// container of their own name partitioned by id.
func (r *Registry) Lookup(entityName string) Config {
	r.mu.RLock()
	c, ok := r.entries[entityName]
	r.mu.RUnlock()
	if ok {
		return c
	}
	return withDefaults(Config{EntityName: entityName})
}

// Configs returns all registered entries ordered by entity name.
func (r *Registry) Configs() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Config, 0, len(r.entries))
	for _, c := range r.entries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityName < out[j].EntityName })
	return out
}

func withDefaults(c Config) Config {
	if c.ContainerID == "" {
		c.ContainerID = c.EntityName
	}
	if c.PartitionKeyField == "" {
		c.PartitionKeyField = entity.FieldID
	}
	return c
}
