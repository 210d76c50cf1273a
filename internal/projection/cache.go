package projection

import (
	"context"
	"sync"

	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
)

// Cache is the fast read tier in front of the projection repository
type Cache interface {
	// Get returns the cached projection and whether it was present
	Get(ctx context.Context, id string) (*domain.Projection, bool, error)
	Set(ctx context.Context, projection *domain.Projection) error
	Delete(ctx context.Context, id string) error
}

// MemoryCache keeps projections in process memory
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]*domain.Projection
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]*domain.Projection)}
}

func (c *MemoryCache) Get(ctx context.Context, id string) (*domain.Projection, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.items[id]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, projection *domain.Projection) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[projection.ID] = projection.Clone()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, id)
	return nil
}

// NopCache caches nothing, so every read goes to the repository. It serves
// processes that share a store with other writers but no shared cache.
type NopCache struct{}

func (NopCache) Get(ctx context.Context, id string) (*domain.Projection, bool, error) {
	return nil, false, nil
}

func (NopCache) Set(ctx context.Context, projection *domain.Projection) error {
	return nil
}

func (NopCache) Delete(ctx context.Context, id string) error {
	return nil
}
