package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreakerOpensAndRecovers(t *testing.T) {
	var transitions []State
	b := NewBreaker("embedder", BreakerConfig{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})
	clock := time.Unix(1000, 0)
	b.now = func() time.Time { return clock }
	ctx := context.Background()
	fail := func(context.Context) error { return errBoom }
	ok := func(context.Context) error { return nil }

	assert.ErrorIs(t, b.Do(ctx, fail), errBoom)
	assert.ErrorIs(t, b.Do(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Do(ctx, ok), ErrCircuitOpen)

	clock = clock.Add(2 * time.Minute)
	require.NoError(t, b.Do(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return false },
	}, func(context.Context) error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter("x", 0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
}
