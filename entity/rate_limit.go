package entity

import "time"

// RateLimitDecision describes the state of a fixed window after counting one request
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Count     int64
	Remaining int
	ResetAt   time.Time
}

// RetryAfterSeconds returns the whole seconds left until the window resets, never less than 1
func (d RateLimitDecision) RetryAfterSeconds(now time.Time) int {
	left := d.ResetAt.Sub(now)
	secs := int((left + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
