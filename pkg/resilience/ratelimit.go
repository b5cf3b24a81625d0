package resilience

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter bounds the call rate to an external model.
type Limiter struct {
	name string
	rl   *rate.Limiter
}

// NewLimiter allows perSecond calls with the given burst. A non-positive
// rate disables limiting.
func NewLimiter(name string, perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return &Limiter{name: name, rl: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{name: name, rl: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a call is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.rl.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", l.name, err)
	}
	return nil
}
