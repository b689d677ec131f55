package resilience

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter paces outbound calls to an external API. A nil *Limiter never blocks.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter allows rps calls per second with the given burst.
// rps <= 0 returns nil (unlimited).
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a call is permitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	if err := l.rl.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}
