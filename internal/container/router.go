// Package container resolves entity types to provisioned storage containers.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ravikumarmistry/quix/internal/driver"
	"github.com/ravikumarmistry/quix/pkg/logger"
	"github.com/ravikumarmistry/quix/pkg/metrics"
)

// Handle is a provisioned container together with its configuration.
// Handles are shared between callers and never modified after creation.
type Handle struct {
	Config    Config
	Container driver.Container
}

// Router memoizes one Handle per entity type for the life of the process.
// The first Resolve of a type provisions its container; concurrent callers
// for the same type wait for that single provisioning call.
type Router struct {
	db       driver.Database
	registry *Registry

	mu      sync.RWMutex
	handles map[string]*Handle
	group   singleflight.Group
}

func NewRouter(db driver.Database, registry *Registry) *Router {
	if registry == nil {
		registry, _ = NewRegistry()
	}
	return &Router{
		db:       db,
		registry: registry,
		handles:  make(map[string]*Handle),
	}
}

// Config returns the configuration for entityType without provisioning.
func (r *Router) Config(entityType string) Config {
	return r.registry.Lookup(entityType)
}

// Resolve returns the handle for entityType, creating the container if it
// does not exist yet. Failed provisioning is not cached.
func (r *Router) Resolve(ctx context.Context, entityType string) (*Handle, error) {
	if h, ok := r.cached(entityType); ok {
		return h, nil
	}

	v, err, _ := r.group.Do(entityType, func() (any, error) {
		if h, ok := r.cached(entityType); ok {
			return h, nil
		}
		// shared by every waiter, so it must outlive the first caller
		return r.provision(context.WithoutCancel(ctx), entityType)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Warm resolves every registered entity type.
func (r *Router) Warm(ctx context.Context) error {
	var errs []error
	for _, c := range r.registry.Configs() {
		if _, err := r.Resolve(ctx, c.EntityName); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of cached handles.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

func (r *Router) cached(entityType string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[entityType]
	return h, ok
}

func (r *Router) provision(ctx context.Context, entityType string) (*Handle, error) {
	cfg := r.registry.Lookup(entityType)
	start := time.Now()

	c, err := r.db.CreateContainerIfNotExists(ctx, driver.ContainerProperties{
		ID:               cfg.ContainerID,
		PartitionKeyPath: driver.PartitionKeyPath(cfg.PartitionKeyField),
	})
	if err != nil {
		metrics.ContainerProvisions.WithLabelValues("error").Inc()
		logger.Errorf("container %s for entity %s: provisioning failed: %v", cfg.ContainerID, entityType, err)
		return nil, fmt.Errorf("provision container %s for entity %s: %w", cfg.ContainerID, entityType, err)
	}
	metrics.ContainerProvisions.WithLabelValues("ok").Inc()
	logger.Infof("container %s ready for entity %s (partition key %s) in %s", cfg.ContainerID, entityType, cfg.PartitionKeyField, time.Since(start))

	h := &Handle{Config: cfg, Container: c}
	r.mu.Lock()
	r.handles[entityType] = h
	r.mu.Unlock()
	return h, nil
}
