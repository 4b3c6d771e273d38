// Package store declares the key-value capability that holds group policies,
// counters, sets and TTL'd records.
package store

import (
	"context"
	"time"
)

// Store is a Redis-shaped key-value store. Absent values are reported with
// ok=false rather than an error. A zero ttl means the key never expires.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Incr atomically increments an integer string. The ttl is attached only
	// when the increment created the key, so the counter expires as a fixed window.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	TTL(ctx context.Context, key string) (time.Duration, error)

	HGet(ctx context.Context, key, field string) (value string, ok bool, err error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key, field, value string) error
	// HSetNX writes the field only when it is absent and reports whether it did.
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	HDel(ctx context.Context, key, field string) error
	HExists(ctx context.Context, key, field string) (bool, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
