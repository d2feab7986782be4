// Package cache memoizes expensive calls (source downloads, backtest replays)
// behind a small key/value interface with TTL. Every backend is safe to wipe.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/covid19-dash/casecast/internal/config"
)

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the value and true on a hit. Expired entries are misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Clear removes every entry owned by the cache.
	Clear(ctx context.Context) error
	Close() error
}

// Open builds the cache selected by cfg.Driver.
func Open(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "", "none":
		return Noop{}, nil
	case "sqlite":
		c, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := c.Migrate(ctx); err != nil {
			c.Close() //nolint:errcheck
			return nil, err
		}
		return c, nil
	case "redis":
		return NewRedisFromURL(ctx, cfg.RedisURL)
	default:
		return nil, eris.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Clear(context.Context) error                              { return nil }
func (Noop) Close() error                                             { return nil }
