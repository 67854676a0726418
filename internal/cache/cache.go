// Package cache holds short lived chain data shared between the poll loop and status queries.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
)

// Cache is a byte oriented TTL cache
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// New builds the cache selected by cfg
func New(cfg *config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryCache(cfg.TTL, cfg.Prefix), nil
	case "redis":
		return NewRedisCache(cfg.RedisURL, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
