package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUpsertsPerSecond matches the store's default write allowance.
const DefaultUpsertsPerSecond = 1.0

// Limiter paces calls to an external service.
type Limiter interface {
	// Wait blocks until the next call is allowed or ctx ends.
	Wait(ctx context.Context) error
}

// TokenBucket is a Limiter backed by a token bucket.
type TokenBucket struct {
	limiter *rate.Limiter
}

var _ Limiter = (*TokenBucket)(nil)

// PerSecond allows n calls per second with a burst of one.
// n <= 0 returns an unlimited limiter.
func PerSecond(n float64) Limiter {
	if n <= 0 {
		return Unlimited()
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(n), 1)}
}

// Every allows one call per interval. interval <= 0 returns an unlimited limiter.
func Every(interval time.Duration) Limiter {
	if interval <= 0 {
		return Unlimited()
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until a token is available.
func (t *TokenBucket) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

type unlimited struct{}

// Unlimited returns a Limiter that never blocks.
func Unlimited() Limiter {
	return unlimited{}
}

func (unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
