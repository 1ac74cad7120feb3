package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LordMirex/mytypist-backend/cache"
)

func TestRateLimiter_RejectsPastLimitAndResets(t *testing.T) {
	mr, store := newRedisCache(t)
	rl := NewRateLimiter(store, 100, time.Hour)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ok, err := rl.Allow(ctx, "sess_a")
		require.NoError(t, err)
		require.True(t, ok, "event %d", i+1)
	}
	ok, err := rl.Allow(ctx, "sess_a")
	require.NoError(t, err)
	assert.False(t, ok)

	// other sessions have their own window
	ok, _ = rl.Allow(ctx, "sess_b")
	assert.True(t, ok)

	assert.Equal(t, time.Hour, mr.TTL("rate_limit:sess_a"))
	mr.FastForward(time.Hour + time.Second)

	ok, err = rl.Allow(ctx, "sess_a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_CounterWithoutTTLStillResets(t *testing.T) {
	mr, store := newRedisCache(t)
	rl := NewRateLimiter(store, 100, time.Hour)
	ctx := context.Background()

	// a counter stranded past the limit with no expiry
	require.NoError(t, mr.Set("rate_limit:sess_a", "150"))

	ok, err := rl.Allow(ctx, "sess_a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Hour, mr.TTL("rate_limit:sess_a"))

	mr.FastForward(time.Hour + time.Second)

	ok, err = rl.Allow(ctx, "sess_a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	rl := NewRateLimiter(cache.NewRedisStore(nil), 1, time.Hour)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(context.Background(), "sess_a")
		assert.True(t, ok)
		assert.ErrorIs(t, err, cache.ErrUnavailable)
	}
}

func TestRateLimiter_FailsOpenWhenServerGone(t *testing.T) {
	mr, store := newRedisCache(t)
	rl := NewRateLimiter(store, 1, time.Hour)
	mr.Close()

	ok, err := rl.Allow(context.Background(), "sess_a")
	assert.True(t, ok)
	assert.Error(t, err)
}
