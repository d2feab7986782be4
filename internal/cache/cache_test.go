package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covid19-dash/casecast/internal/config"
	"github.com/covid19-dash/casecast/internal/monitoring"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	c, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func TestSQLite_SetAndGet(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v1"), time.Hour))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", string(val))

	// overwrite
	require.NoError(t, c.Set(ctx, "k", []byte("v2"), time.Hour))
	val, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", string(val))
}

func TestSQLite_Missing(t *testing.T) {
	c := newTestSQLite(t)
	val, ok, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestSQLite_Expired(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "old", []byte("x"), -time.Hour))
	_, ok, err := c.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := c.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_Clear(t *testing.T) {
	c := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, c.Clear(ctx))

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, config.CacheConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, c)

	c, err = Open(ctx, config.CacheConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, c)
	require.NoError(t, c.Close())

	_, err = Open(ctx, config.CacheConfig{Driver: "memcached"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Clear(ctx))
	assert.NoError(t, c.Close())
}

func TestKey(t *testing.T) {
	a, err := Key("replay", map[string]any{"window": "exp-17-1.6", "h": 4})
	require.NoError(t, err)
	b, err := Key("replay", map[string]any{"h": 4, "window": "exp-17-1.6"})
	require.NoError(t, err)
	c, err := Key("replay", map[string]any{"h": 5, "window": "exp-17-1.6"})
	require.NoError(t, err)
	d, err := Key("other", map[string]any{"h": 4, "window": "exp-17-1.6"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Contains(t, a, "replay:")

	_, err = Key("bad", func() {})
	require.Error(t, err)
}

type payload struct {
	Values []float64 `json:"values"`
}

func TestDo_MemoizesAndCountsHits(t *testing.T) {
	m := NewMemo(newTestSQLite(t), time.Hour, monitoring.NewMetrics())
	ctx := context.Background()

	var calls atomic.Int32
	fn := func(context.Context) (payload, error) {
		calls.Add(1)
		return payload{Values: []float64{1, 2}}, nil
	}

	got, err := Do(ctx, m, "replay", "args", fn)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got.Values)

	got, err = Do(ctx, m, "replay", "args", fn)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got.Values)
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.CacheHits.WithLabelValues("replay")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.CacheMisses.WithLabelValues("replay")))
}

func TestDo_FreshBypassesAndOverwrites(t *testing.T) {
	m := NewMemo(newTestSQLite(t), time.Hour, nil)
	ctx := context.Background()

	n := 0
	fn := func(context.Context) (int, error) {
		n++
		return n, nil
	}

	v, err := Do(ctx, m, "f", nil, fn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = Do(ctx, m.Fresh(), "f", nil, fn)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = Do(ctx, m, "f", nil, fn)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "fresh result replaces the cached one")
}

func TestDo_ErrorNotCached(t *testing.T) {
	m := NewMemo(newTestSQLite(t), time.Hour, nil)
	ctx := context.Background()

	_, err := Do(ctx, m, "f", nil, func(context.Context) (int, error) { return 0, errors.New("boom") })
	require.Error(t, err)

	v, err := Do(ctx, m, "f", nil, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDo_Clear(t *testing.T) {
	m := NewMemo(newTestSQLite(t), time.Hour, nil)
	ctx := context.Background()

	_, err := Do(ctx, m, "f", nil, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx))

	v, err := Do(ctx, m, "f", nil, func(context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestDo_NilMemo(t *testing.T) {
	var m *Memo
	v, err := Do(context.Background(), m, "f", nil, func(context.Context) (string, error) { return "direct", nil })
	require.NoError(t, err)
	assert.Equal(t, "direct", v)
	assert.Nil(t, m.Fresh())
	assert.NoError(t, m.Clear(context.Background()))
}
