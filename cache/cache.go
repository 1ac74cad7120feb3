// Package cache is the key-value store used for rate limiting, real-time
// counters and the shared blocked-IP mirror. Every caller treats it as
// best-effort: a nil or unreachable store degrades to a cache miss.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by write operations when no backend is configured.
var ErrUnavailable = errors.New("cache backend unavailable")

type Store interface {
	// Get returns the value and whether it was found. A missing key is not an error.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// IncrWindow increments key and gives it ttl unless it already has one,
	// in a single transaction.
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Del(ctx context.Context, keys ...string) error
}
