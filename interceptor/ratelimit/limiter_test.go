package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixWindowLimiter_Limit(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewFixWindowLimiter(time.Second, 2)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	want := []bool{false, false, true}
	for _, w := range want {
		limited, err := l.Limit(ctx, "Order.Get")
		require.NoError(t, err)
		assert.Equal(t, w, limited)
	}
	// keys are limited apart
	limited, _ := l.Limit(ctx, "User.Get")
	assert.False(t, limited)

	now = now.Add(time.Second)
	limited, _ = l.Limit(ctx, "Order.Get")
	assert.False(t, limited)
}

func TestSlideWindowLimiter_Limit(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := NewSlideWindowLimiter(2, time.Second)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	limited, _ := l.Limit(ctx, "k")
	assert.False(t, limited)
	now = now.Add(600 * time.Millisecond)
	limited, _ = l.Limit(ctx, "k")
	assert.False(t, limited)
	limited, _ = l.Limit(ctx, "k")
	assert.True(t, limited)

	// the first call leaves the window, the second is still in it
	now = now.Add(500 * time.Millisecond)
	limited, _ = l.Limit(ctx, "k")
	assert.False(t, limited)
	limited, _ = l.Limit(ctx, "k")
	assert.True(t, limited)
}

func TestTokenBucketLimiter_Limit(t *testing.T) {
	l := NewTokenBucketLimiter(2, time.Hour)
	ctx := context.Background()
	want := []bool{false, false, true, true}
	for _, w := range want {
		limited, err := l.Limit(ctx, "Order.Get")
		require.NoError(t, err)
		assert.Equal(t, w, limited)
	}
	limited, _ := l.Limit(ctx, "User.Get")
	assert.False(t, limited)
}

func TestRedisLimiters(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	testCases := []struct {
		name    string
		limiter Limiter
	}{
		{name: "slide window", limiter: NewRedisSlideWindowLimiter(client, "slide:", 2, time.Minute)},
		{name: "fix window", limiter: NewRedisFixWindowLimiter(client, "fix:", 2, time.Minute)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			for _, w := range []bool{false, false, true, true} {
				limited, err := tc.limiter.Limit(ctx, "Order.Get")
				require.NoError(t, err)
				assert.Equal(t, w, limited)
			}
			limited, err := tc.limiter.Limit(ctx, "User.Get")
			require.NoError(t, err)
			assert.False(t, limited)
		})
	}
}
