package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var _ Limiter = (*TokenBucketLimiter)(nil)

// TokenBucketLimiter gives every key a bucket of burst tokens refilled with one
// token per interval.
type TokenBucketLimiter struct {
	every   rate.Limit
	burst   int
	mutex   sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewTokenBucketLimiter(burst int, interval time.Duration) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		every:   rate.Every(interval),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter, 8),
	}
}

func (l *TokenBucketLimiter) Limit(_ context.Context, key string) (bool, error) {
	l.mutex.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.every, l.burst)
		l.buckets[key] = bucket
	}
	l.mutex.Unlock()
	return !bucket.Allow(), nil
}
