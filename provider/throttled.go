package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled caps the send rate of the wrapped provider with a token bucket
type Throttled struct {
	next    Provider
	limiter *rate.Limiter
}

// NewThrottled allows ratePerSecond sends with bursts of up to burst
func NewThrottled(next Provider, ratePerSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (t *Throttled) Name() string {
	return t.next.Name()
}

// Send waits for a token, giving up when ctx is done first
func (t *Throttled) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s send throttled: %w", t.next.Name(), err)
	}
	return t.next.Send(ctx, msg)
}
