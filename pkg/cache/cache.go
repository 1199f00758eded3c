// Package cache provides byte-oriented response caches for remote API calls.
//
// The [Cache] interface is implemented by a file backend for local CLI use, a
// Redis and a MongoDB backend for shared deployments (e.g. several `superbom
// serve` replicas), and a null backend that disables caching.
//
// Conda index snapshots are not stored here: they are persisted verbatim by
// package index, which owns its on-disk layout.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores opaque byte payloads under string keys.
//
// Get reports a miss with ok=false and a nil error. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by [Open].
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendMongo = "mongo"
	BackendNone  = "none"
)

// Config selects and configures a cache backend.
type Config struct {
	Backend string // file (default), redis, mongo or none
	Dir     string // directory for the file backend
	URL     string // connection URL for redis/mongo
}

// Open creates the backend described by cfg.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", BackendFile:
		if cfg.Dir == "" {
			return NewNullCache(), nil
		}
		c, err := NewFileCache(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendRedis:
		c, err := NewRedisCache(ctx, cfg.URL, "superbom:")
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendMongo:
		c, err := NewMongoCache(ctx, cfg.URL, "superbom", "responses")
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendNone:
		return NewNullCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// NullCache never stores anything. It backs --no-cache runs and the "none"
// backend, and is what [Open] returns for a file backend without a directory.
type NullCache struct{}

// NewNullCache returns a cache on which every Get misses.
func NewNullCache() Cache { return &NullCache{} }

func (*NullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (*NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (*NullCache) Delete(context.Context, string) error                     { return nil }
func (*NullCache) Close() error                                             { return nil }
