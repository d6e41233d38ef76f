package edgar

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter gates outbound requests. It exists as an interface so schedulers
// and tests can substitute a fake for the shared token bucket.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Throttle is the process-wide token bucket shared by every fetch. There is
// exactly one external rate limit, so there is exactly one of these per
// process; a restart resets it, which is fine for a soft limit.
type Throttle struct {
	bucket *rate.Limiter
}

// NewThrottle creates a bucket holding capacity tokens refilled at
// refillPerSec tokens per second.
func NewThrottle(capacity int, refillPerSec float64) *Throttle {
	return &Throttle{bucket: rate.NewLimiter(rate.Limit(refillPerSec), capacity)}
}

// Wait blocks until a token is available or the context ends. Callers never
// drop a request on an empty bucket; they suspend.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.bucket.Wait(ctx)
}
