package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
	val, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), val)

	now = now.Add(time.Second)
	_, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Set(ctx, "c", []byte("3"), time.Millisecond))
	now = now.Add(time.Second)
	s.Sweep()
	assert.Equal(t, 1, s.Len())
	_, ok, _ = s.Get(ctx, "b")
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "b"))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_MaxEntries(t *testing.T) {
	testCases := []struct {
		name     string
		advance  time.Duration
		wantGone string
	}{
		{
			name:     "expired keys make room",
			advance:  2 * time.Second,
			wantGone: "soon",
		},
		{
			name:     "first to expire is evicted",
			wantGone: "soon",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Unix(1700000000, 0)
			s := NewMemoryStore(MemoryStoreWithMaxEntries(3))
			s.now = func() time.Time { return now }
			ctx := context.Background()

			require.NoError(t, s.Set(ctx, "forever", []byte("1"), 0))
			require.NoError(t, s.Set(ctx, "soon", []byte("2"), time.Second))
			require.NoError(t, s.Set(ctx, "later", []byte("3"), time.Minute))
			// overwriting an existing key never evicts
			require.NoError(t, s.Set(ctx, "later", []byte("4"), time.Minute))
			assert.Equal(t, 3, s.Len())

			now = now.Add(tc.advance)
			require.NoError(t, s.Set(ctx, "new", []byte("5"), time.Minute))
			assert.Equal(t, 3, s.Len())
			_, ok, _ := s.Get(ctx, tc.wantGone)
			assert.False(t, ok)
			for _, key := range []string{"forever", "later", "new"} {
				_, ok, _ = s.Get(ctx, key)
				assert.True(t, ok, key)
			}
		})
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "eproxy:")
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "Order.Get:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "Order.Get:1", []byte(`{"id":1}`), time.Minute))
	assert.True(t, mr.Exists("eproxy:Order.Get:1"))
	val, ok, err := s.Get(ctx, "Order.Get:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"id":1}`), val)

	mr.FastForward(time.Minute)
	_, ok, err = s.Get(ctx, "Order.Get:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Delete(ctx, "k"))
	assert.False(t, mr.Exists("eproxy:k"))
}
