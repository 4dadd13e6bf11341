package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist (or has expired)
var ErrNotFound = errors.New("key not found")

const (
	// TTLNoKey is returned by TTL when the key does not exist
	TTLNoKey = time.Duration(-2)
	// TTLNoExpiry is returned by TTL when the key exists without an expiry
	TTLNoExpiry = time.Duration(-1)
)

// KeyValueStore is the shared TTL-capable store every instance talks to.
// Each method maps to exactly one atomic store command.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
