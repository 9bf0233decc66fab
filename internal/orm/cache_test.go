package orm

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache() *Cache {
	logger := zerolog.Nop()

	return NewCache(nil, "testdb", &logger)
}

func TestStoreGetSet(t *testing.T) {
	cache := newTestCache()
	store := cache.Register("res.user.login")

	_, ok := store.Get("jdoe")
	assert.False(t, ok)

	store.Set("jdoe", int64(7))
	got, ok := store.Get("jdoe")
	require.True(t, ok)
	assert.Equal(t, int64(7), got)
	assert.Equal(t, 1, store.Len())

	store.Set("jdoe", int64(8))
	got, _ = store.Get("jdoe")
	assert.Equal(t, int64(8), got)
	assert.Equal(t, 1, store.Len())
}

func TestCacheRegisterTwicePanics(t *testing.T) {
	cache := newTestCache()
	cache.Register("res.user.login")

	assert.PanicsWithValue(t, "orm: cache registered twice: res.user.login", func() {
		cache.Register("res.user.login")
	})
}

func TestCacheCleanWithoutRedis(t *testing.T) {
	cache := newTestCache()
	store := cache.Register("res.user.login")
	store.Set("jdoe", int64(7))

	require.NoError(t, cache.Clean(context.Background()))
	assert.Equal(t, 1, store.Len(), "without counters there is nothing to reconcile against")
}

func TestCacheResetsPurgesDirtyStores(t *testing.T) {
	cache := newTestCache()
	logins := cache.Register("res.user.login")
	langs := cache.Register("ir.lang")
	logins.Set("jdoe", int64(7))
	langs.Set("code:en", "en")

	tx := NewTx(nil, TxOptions{})
	tx.MarkCacheDirty("res.user.login")

	require.NoError(t, cache.Resets(context.Background(), tx))
	assert.Equal(t, 0, logins.Len(), "the dirtied store is purged")
	assert.Equal(t, 1, langs.Len(), "untouched stores survive")
}

func TestCacheResetsWithoutDirtyIsNoop(t *testing.T) {
	cache := newTestCache()
	store := cache.Register("res.user.login")
	store.Set("jdoe", int64(7))

	tx := NewTx(nil, TxOptions{})

	require.NoError(t, cache.Resets(context.Background(), tx))
	assert.Equal(t, 1, store.Len())
}

func TestCacheResetsUnknownStore(t *testing.T) {
	cache := newTestCache()

	tx := NewTx(nil, TxOptions{})
	tx.MarkCacheDirty("never.registered")

	assert.NoError(t, cache.Resets(context.Background(), tx), "a dirty name without a store is tolerated")
}
