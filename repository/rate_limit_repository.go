package repository

import (
	"context"
	"fmt"
	"time"

	"otp-gateway/pkg/logger"
)

// RateLimitRepository counts requests in fixed windows
type RateLimitRepository interface {
	// IncrementWindow atomically counts one request in the window stored at key
	// and returns the new count. The first hit in a window sets its expiry.
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// rateLimitRepository implements RateLimitRepository on a KeyValueStore
type rateLimitRepository struct {
	store  KeyValueStore
	logger *logger.Logger
}

// NewRateLimitRepository creates a new rate limit repository
func NewRateLimitRepository(store KeyValueStore, logger *logger.Logger) RateLimitRepository {
	return &rateLimitRepository{
		store:  store,
		logger: logger,
	}
}

func (r *rateLimitRepository) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.store.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit window: %w", err)
	}

	if count == 1 {
		if err := r.store.Expire(ctx, key, window); err != nil {
			r.logger.Warnw("Rate limit window left without ttl", "window_seconds", int(window.Seconds()), "error", err)
			return count, fmt.Errorf("failed to set rate limit window ttl: %w", err)
		}
	}

	return count, nil
}
