package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps entries in process
type MemoryCache struct {
	store  *gocache.Cache
	prefix string
}

// NewMemoryCache creates an in-process cache. defaultTTL applies when Set is called with ttl 0.
func NewMemoryCache(defaultTTL time.Duration, prefix string) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	return &MemoryCache{
		store:  gocache.New(defaultTTL, 2*defaultTTL),
		prefix: prefix,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.store.Get(c.prefix + key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(c.prefix+key, value, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.store.Delete(c.prefix + key)
	return nil
}

func (c *MemoryCache) Close() error {
	c.store.Flush()
	return nil
}
