package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "")
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet(DefaultRedisPrefix + "k").SetVal("value")
		val, ok, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "value", string(val))
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet(DefaultRedisPrefix + "missing").RedisNil()
		val, ok, err := c.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, val)
	})

	t.Run("error", func(t *testing.T) {
		mock.ExpectGet(DefaultRedisPrefix + "err").SetErr(redis.TxFailedErr)
		_, _, err := c.Get(ctx, "err")
		require.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_Set(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "test:")
	ctx := context.Background()

	mock.ExpectSet("test:k", []byte("v"), time.Minute).SetVal("OK")
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	mock.ExpectSet("test:bad", []byte("v"), time.Minute).SetErr(redis.TxFailedErr)
	require.Error(t, c.Set(ctx, "bad", []byte("v"), time.Minute))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_Clear(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "test:")
	ctx := context.Background()

	mock.ExpectScan(0, "test:*", 100).SetVal([]string{"test:a", "test:b"}, 7)
	mock.ExpectDel("test:a", "test:b").SetVal(2)
	mock.ExpectScan(7, "test:*", 100).SetVal([]string{}, 0)

	require.NoError(t, c.Clear(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_ClearScanError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "test:")

	mock.ExpectScan(0, "test:*", 100).SetErr(redis.TxFailedErr)
	err := c.Clear(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: scan")
}
