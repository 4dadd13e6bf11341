package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCommandTimeout bounds every store command when no timeout is configured
const DefaultCommandTimeout = 5 * time.Second

// RedisStore implements KeyValueStore on top of a shared Redis client
type RedisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewRedisStore wraps client; every command is cancelled after commandTimeout
func NewRedisStore(client redis.UniversalClient, commandTimeout time.Duration) *RedisStore {
	if commandTimeout <= 0 {
		commandTimeout = DefaultCommandTimeout
	}
	return &RedisStore{
		client:  client,
		timeout: commandTimeout,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis GET %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("redis SET %s: ttl must be positive, got %v", key, ttl)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis INCR %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis EXPIRE %s: %w", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of key, or TTLNoKey / TTLNoExpiry
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis TTL %s: %w", key, err)
	}

	// go-redis passes the -2/-1 replies through as raw durations, matching TTLNoKey/TTLNoExpiry
	return ttl, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.client.Ping(ctx).Err()
}
