package cache

import (
	"context"
	"time"
)

// Store keeps encoded results by cache key.
type Store interface {
	// Get reports false when the key is missing or expired
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}
