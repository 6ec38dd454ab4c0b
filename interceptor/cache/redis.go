package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v9"
)

var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore prefixes every key, so several proxies can share one redis.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, val []byte, expiration time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, val, expiration).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
