package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy describes how many times and how far apart to retry.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
	// Retryable reports whether err is worth another attempt. Nil means
	// every error except ErrCircuitOpen and context errors.
	Retryable func(err error) bool
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.Jitter <= 0 {
		p.Jitter = 0.1
	}
	if p.Retryable == nil {
		p.Retryable = defaultRetryable
	}
	return p
}

func defaultRetryable(err error) bool {
	return !errors.Is(err, ErrCircuitOpen) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Retry calls fn until it succeeds, the policy gives up, or ctx is done.
func Retry(ctx context.Context, name string, policy RetryPolicy, fn func(ctx context.Context) error) error {
	p := policy.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt >= p.MaxAttempts || !p.Retryable(err) {
			break
		}
		delay := backoff(attempt, p)
		logger.Warn("call failed, retrying", "attempt", attempt, "max_attempts", p.MaxAttempts, "error", err, "next_delay", delay)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: retry aborted: %w", name, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

func backoff(attempt int, p RetryPolicy) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	d += d * p.Jitter * (2*rand.Float64() - 1)
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d < 0 {
		d = float64(p.InitialDelay)
	}
	return time.Duration(d)
}
