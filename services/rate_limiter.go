package services

import (
	"context"
	"fmt"
	"time"

	"github.com/LordMirex/mytypist-backend/cache"
)

const rateLimitPrefix = "rate_limit:"

// RateLimiter caps interaction events per session with a fixed window: the
// counter's expiry is set with the first hit of a window and the count
// resets when it lapses, so a burst straddling two windows can reach twice the limit.
type RateLimiter struct {
	store  cache.Store
	limit  int64
	window time.Duration
}

func NewRateLimiter(store cache.Store, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{store: store, limit: int64(limit), window: window}
}

// Allow counts one event for the session. It fails open: on a cache error
// the event is allowed and the error is returned for logging.
func (rl *RateLimiter) Allow(ctx context.Context, sessionID string) (bool, error) {
	key := rateLimitPrefix + sessionID

	count, err := rl.store.IncrWindow(ctx, key, rl.window)
	if err != nil {
		return true, fmt.Errorf("rate limit: %w", err)
	}
	return count <= rl.limit, nil
}
