package service

import (
	"context"
	"fmt"
	"time"

	"otp-gateway/entity"
	"otp-gateway/pkg/clock"
	"otp-gateway/repository"
)

// Key namespaces of the two admission gates
const (
	IPRateLimitPrefix    = "ip_rate_limit"
	PhoneRateLimitPrefix = "phone_rate_limit"
)

// RateLimiter decides whether one more request from id fits in the current window
type RateLimiter interface {
	Allow(ctx context.Context, id string) (*entity.RateLimitDecision, error)
}

// FixedWindowLimiter counts requests per id in windows aligned to the window size,
// so every request within one window shares the counter <prefix>:<id>:<windowStart>.
type FixedWindowLimiter struct {
	repo   repository.RateLimitRepository
	prefix string
	limit  int
	window time.Duration
	clock  clock.Clocker
}

// NewFixedWindowLimiter creates a limiter admitting limit requests per window
func NewFixedWindowLimiter(repo repository.RateLimitRepository, prefix string, limit int, window time.Duration, clk clock.Clocker) *FixedWindowLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &FixedWindowLimiter{
		repo:   repo,
		prefix: prefix,
		limit:  limit,
		window: window,
		clock:  clk,
	}
}

// WindowKey returns the counter key for id in the window containing now
func (l *FixedWindowLimiter) WindowKey(id string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%d", l.prefix, id, l.windowStart(now).UnixMilli())
}

// windowStart floors now to a multiple of the window since the Unix epoch
func (l *FixedWindowLimiter) windowStart(now time.Time) time.Time {
	ms := now.UnixMilli()
	size := l.window.Milliseconds()
	if size <= 0 {
		return time.UnixMilli(ms)
	}
	return time.UnixMilli(ms - ms%size)
}

// Allow counts the request and reports whether it is within the limit. On a store
// error the decision is still returned, marked allowed, next to the error.
func (l *FixedWindowLimiter) Allow(ctx context.Context, id string) (*entity.RateLimitDecision, error) {
	now := l.clock.Now()
	start := l.windowStart(now)
	decision := &entity.RateLimitDecision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit,
		ResetAt:   start.Add(l.window),
	}

	count, err := l.repo.IncrementWindow(ctx, l.WindowKey(id, now), l.window)
	if err != nil && count == 0 {
		return decision, err
	}

	decision.Count = count
	decision.Allowed = count <= int64(l.limit)
	decision.Remaining = l.limit - int(count)
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}

	return decision, err
}
