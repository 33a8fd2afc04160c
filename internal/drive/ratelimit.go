package drive

import (
	"context"

	"golang.org/x/time/rate"
)

// Default Drive request budget; Google allows 10 requests/sec/user.
const (
	DefaultRequestsPerSecond = 8.0
	DefaultBurst             = 10
)

// Limiter paces Drive API calls shared by the Walker and the Fetcher.
// A nil *Limiter never blocks.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a token-bucket limiter. rps <= 0 disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request may be issued or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}
