package ratelimit

import (
	"context"
	_ "embed"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v9"
)

//go:embed lua/slide_window.lua
var luaSlideWindow string

//go:embed lua/fix_window.lua
var luaFixWindow string

var (
	_ Limiter = (*RedisSlideWindowLimiter)(nil)
	_ Limiter = (*RedisFixWindowLimiter)(nil)
)

// RedisSlideWindowLimiter shares its window between every client of the redis.
type RedisSlideWindowLimiter struct {
	client redis.Cmdable
	prefix string
	// the threshold within the window
	maxRate int
	// window size in milliseconds
	interval int64
	seq      atomic.Uint64
}

func NewRedisSlideWindowLimiter(client redis.Cmdable, prefix string, maxRate int, interval time.Duration) *RedisSlideWindowLimiter {
	return &RedisSlideWindowLimiter{
		client:   client,
		prefix:   prefix,
		maxRate:  maxRate,
		interval: interval.Milliseconds(),
	}
}

func (l *RedisSlideWindowLimiter) Limit(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixMilli()
	// members must be unique or calls in the same millisecond collapse
	member := strconv.FormatInt(now, 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)
	return l.client.Eval(ctx, luaSlideWindow, []string{l.prefix + key},
		l.maxRate, l.interval, now, member).Bool()
}

type RedisFixWindowLimiter struct {
	client   redis.Cmdable
	prefix   string
	maxRate  int
	interval int64
}

func NewRedisFixWindowLimiter(client redis.Cmdable, prefix string, maxRate int, interval time.Duration) *RedisFixWindowLimiter {
	return &RedisFixWindowLimiter{
		client:   client,
		prefix:   prefix,
		maxRate:  maxRate,
		interval: interval.Milliseconds(),
	}
}

func (l *RedisFixWindowLimiter) Limit(ctx context.Context, key string) (bool, error) {
	return l.client.Eval(ctx, luaFixWindow, []string{l.prefix + key}, l.maxRate, l.interval).Bool()
}
