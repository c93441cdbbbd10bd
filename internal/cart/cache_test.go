package cart

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryCountStore struct {
	data map[string]string
}

func newMemoryCountStore() *memoryCountStore {
	return &memoryCountStore{data: map[string]string{}}
}

func (m *memoryCountStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryCountStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryCountStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryCountStore) CartCountKey(ownerKey string) string {
	return "test:cart:count:" + ownerKey
}

func TestRedisCountCacheRoundTrip(t *testing.T) {
	t.Parallel()

	store := newMemoryCountStore()
	cache := NewRedisCountCache(store, time.Minute)
	ctx := context.Background()
	owner := UserOwner(uuid.New())

	_, ok, err := cache.Get(ctx, owner)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Set(ctx, owner, 7))
	count, ok, err := cache.Get(ctx, owner)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 7, count)

	require.NoError(t, cache.Invalidate(ctx, owner, Owner{}))
	_, ok, err = cache.Get(ctx, owner)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCountCacheRejectsGarbage(t *testing.T) {
	t.Parallel()

	store := newMemoryCountStore()
	owner := SessionOwner("abc")
	store.data[store.CartCountKey(owner.Key())] = "not-a-number"

	_, _, err := NewRedisCountCache(store, time.Minute).Get(context.Background(), owner)
	require.Error(t, err)
}
