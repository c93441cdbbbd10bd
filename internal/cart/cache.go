package cart

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type countStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartCountKey(ownerKey string) string
}

// RedisCountCache keeps cart item counts in Redis so the header badge does
// not hit the database on every page view.
type RedisCountCache struct {
	store countStore
	ttl   time.Duration
}

func NewRedisCountCache(store countStore, ttl time.Duration) *RedisCountCache {
	return &RedisCountCache{store: store, ttl: ttl}
}

func (c *RedisCountCache) Get(ctx context.Context, owner Owner) (int, bool, error) {
	raw, err := c.store.Get(ctx, c.store.CartCountKey(owner.Key()))
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func (c *RedisCountCache) Set(ctx context.Context, owner Owner, count int) error {
	return c.store.Set(ctx, c.store.CartCountKey(owner.Key()), strconv.Itoa(count), c.ttl)
}

func (c *RedisCountCache) Invalidate(ctx context.Context, owners ...Owner) error {
	keys := make([]string, 0, len(owners))
	for _, owner := range owners {
		if owner.Valid() {
			keys = append(keys, c.store.CartCountKey(owner.Key()))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Del(ctx, keys...)
}
