package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/covid19-dash/casecast/internal/monitoring"
)

// Memo memoizes function results in a Cache as JSON.
// A nil *Memo calls straight through.
type Memo struct {
	cache   Cache
	ttl     time.Duration
	metrics *monitoring.Metrics
	fresh   bool
}

// NewMemo creates a Memo over c. metrics may be nil.
func NewMemo(c Cache, ttl time.Duration, metrics *monitoring.Metrics) *Memo {
	if c == nil {
		c = Noop{}
	}
	return &Memo{cache: c, ttl: ttl, metrics: metrics}
}

// Fresh returns a Memo that skips cached values and overwrites them with new results.
func (m *Memo) Fresh() *Memo {
	if m == nil {
		return nil
	}
	cp := *m
	cp.fresh = true
	return &cp
}

// Clear wipes the underlying cache.
func (m *Memo) Clear(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.cache.Clear(ctx)
}

// Key derives the cache key for a call from its name and JSON-encoded arguments.
func Key(name string, args any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", eris.Wrapf(err, "cache: encode %s args", name)
	}
	sum := sha256.Sum256(append([]byte(name+"\x00"), raw...))
	return name + ":" + hex.EncodeToString(sum[:]), nil
}

// Do returns the cached result of fn for (name, args), computing and storing
// it on a miss. Cache failures are logged and never fail the call.
func Do[T any](ctx context.Context, m *Memo, name string, args any, fn func(context.Context) (T, error)) (T, error) {
	if m == nil {
		return fn(ctx)
	}
	log := zap.L().With(zap.String("component", "cache"), zap.String("name", name))

	key, err := Key(name, args)
	if err != nil {
		var zero T
		return zero, err
	}

	if !m.fresh {
		raw, ok, err := m.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn("cache: get failed", zap.Error(err))
		case ok:
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				m.metrics.CacheHit(name)
				return v, nil
			}
			log.Warn("cache: discarding undecodable entry", zap.String("key", key))
		}
	}

	m.metrics.CacheMiss(name)
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		log.Warn("cache: encode result failed", zap.Error(err))
		return v, nil
	}
	if err := m.cache.Set(ctx, key, raw, m.ttl); err != nil {
		log.Warn("cache: set failed", zap.Error(err))
	}
	return v, nil
}
