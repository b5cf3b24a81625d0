// Package external holds the collaborators the engine calls out to: keyword
// extractors, thesauri and embedding models, plus the guard that bounds
// every call with a rate limit, timeout, retry and circuit breaker.
package external

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/resilience"
)

// KeywordExtractor returns up to topN salient terms of text, most salient
// first.
type KeywordExtractor interface {
	Name() string
	Extract(ctx context.Context, text string, topN int) ([]string, error)
}

// Thesaurus returns synonyms of a term.
type Thesaurus interface {
	Synonyms(ctx context.Context, term string) ([]string, error)
}

// Embedder maps texts to fixed-length vectors. Implementations return one
// vector per input, in order.
type Embedder interface {
	ModelName() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Guard runs calls to one collaborator under a limiter, per-attempt
// timeout, retry policy and circuit breaker. Failures surface as
// ErrExternalDependency.
type Guard struct {
	name    string
	limiter *resilience.Limiter
	breaker *resilience.Breaker
	retry   resilience.RetryPolicy
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewGuard builds a Guard from the external config. m may be nil.
func NewGuard(name string, cfg config.ExternalConfig, m *metrics.Metrics) *Guard {
	g := &Guard{
		name:    name,
		limiter: resilience.NewLimiter(name, cfg.RateLimit, cfg.Burst),
		timeout: cfg.Timeout,
		metrics: m,
		retry: resilience.RetryPolicy{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
	bcfg := resilience.BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second}
	if m != nil {
		bcfg.OnStateChange = func(n string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(n).Set(float64(to))
		}
	}
	g.breaker = resilience.NewBreaker(name, bcfg)
	return g
}

// Call runs fn under the guard.
func (g *Guard) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	policy := g.retry
	policy.Retryable = func(err error) bool {
		return ctx.Err() == nil &&
			!errors.Is(err, resilience.ErrCircuitOpen) &&
			!errors.Is(err, apperrors.ErrInvalidParameter) &&
			!errors.Is(err, apperrors.ErrMissingField)
	}
	err := resilience.Retry(ctx, g.name, policy, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		return g.breaker.Do(ctx, func(ctx context.Context) error {
			return resilience.WithTimeout(ctx, g.timeout, g.name, fn)
		})
	})
	g.count(err)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", g.name, ctx.Err())
	}
	if errors.Is(err, apperrors.ErrInvalidParameter) || errors.Is(err, apperrors.ErrMissingField) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrExternalDependency, err, "%s", g.name)
}

func (g *Guard) count(err error) {
	if g.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = "circuit_open"
	default:
		status = "error"
	}
	g.metrics.ExternalCallsTotal.WithLabelValues(g.name, status).Inc()
}

// Cosine is the cosine similarity of a and b; zero vectors give 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Normalize scales v to unit length in place and returns it.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
