// Package resilience guards calls to external models: a circuit breaker,
// exponential-backoff retry, a timeout wrapper and a token-bucket limiter.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker refuses a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the phase of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls failure thresholds and recovery timing.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	HalfOpenProbes   int
	// OnStateChange, when set, is called with the breaker's lock released.
	OnStateChange func(name string, to State)
}

// Breaker trips open after FailureThreshold consecutive failures and lets
// HalfOpenProbes calls through once Cooldown has elapsed.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

// NewBreaker returns a closed Breaker, filling zero config values with
// defaults.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Do runs fn if the breaker admits the call. Context cancellation by the
// caller is not counted as a failure.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release()
		return err
	}
	b.record(err)
	return err
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	var changed bool
	defer func() {
		b.mu.Unlock()
		if changed {
			b.notify(StateHalfOpen)
		}
	}()
	switch b.state {
	case StateOpen:
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, b.name, wait.Round(time.Millisecond))
		}
		b.state = StateHalfOpen
		b.probes = 1
		changed = true
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, b.name)
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) release() {
	b.mu.Lock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
	b.mu.Unlock()
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	prev := b.state
	if err == nil {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.probes = 0
		}
	} else {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.probes = 0
		}
	}
	next := b.state
	failures := b.failures
	b.mu.Unlock()

	if prev == next {
		return
	}
	if next == StateOpen {
		b.logger.Warn("circuit opened", "consecutive_failures", failures, "cooldown", b.cfg.Cooldown)
	} else {
		b.logger.Info("circuit closed")
	}
	b.notify(next)
}

func (b *Breaker) notify(to State) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, to)
	}
}
