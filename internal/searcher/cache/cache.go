// Package cache is the persisted run-result cache. An entry holds the
// ranking and final query one pipeline produced for one query, keyed by the
// pipeline's name and configuration fingerprint, the query set and the qid.
package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
)

const keyPrefix = "run:"

// Backend stores encoded entries.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Close() error
}

// Key identifies one cached pipeline execution.
type Key struct {
	Pipeline    string
	Fingerprint string
	QuerySet    string
	QID         string
}

// String is "run:<pipeline>:<hash>"; the readable prefix lets one
// pipeline's entries be dropped together.
func (k Key) String() string {
	h := blake3.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", k.Fingerprint, k.QuerySet, k.QID)
	return keyPrefix + k.Pipeline + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}

// Entry is one cached pipeline result.
type Entry struct {
	Ranking ranker.Ranking `cbor:"1,keyasint"`
	Query   query.Query    `cbor:"2,keyasint"`
}

// RunCache fronts a Backend with singleflight and hit/miss accounting.
// Backend failures degrade to misses.
type RunCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps backend. ttl <= 0 keeps entries forever; m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *RunCache {
	return &RunCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  logger.WithComponent("run-cache"),
	}
}

func (c *RunCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.RunCacheMissesTotal.Inc()
	}
}

// Get returns the entry for k.
func (c *RunCache) Get(ctx context.Context, k Key) (Entry, bool) {
	key := k.String()
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.miss()
		return Entry{}, false
	}
	if !ok {
		c.miss()
		return Entry{}, false
	}
	var e Entry
	if err := cbor.Unmarshal(data, &e); err != nil {
		c.logger.Error("cache decode failed", "key", key, "error", err)
		c.miss()
		return Entry{}, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.RunCacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "pipeline", k.Pipeline, "qid", k.QID)
	return e, true
}

// Set stores e under k. Failures are logged, not returned.
func (c *RunCache) Set(ctx context.Context, k Key, e Entry) {
	key := k.String()
	data, err := cbor.Marshal(e)
	if err != nil {
		c.logger.Error("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached entry or computes and stores it.
// Concurrent calls for one key compute once. The bool reports a hit.
func (c *RunCache) GetOrCompute(ctx context.Context, k Key, compute func() (Entry, error)) (Entry, bool, error) {
	if e, ok := c.Get(ctx, k); ok {
		return e, true, nil
	}
	v, err, _ := c.group.Do(k.String(), func() (any, error) {
		e, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, k, e)
		return e, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return v.(Entry), false, nil
}

// Invalidate drops every entry of pipeline, or all entries when pipeline is
// empty.
func (c *RunCache) Invalidate(ctx context.Context, pipeline string) (int64, error) {
	prefix := keyPrefix
	if pipeline != "" {
		prefix += pipeline + ":"
	}
	n, err := c.backend.DeletePrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("invalidating run cache: %w", err)
	}
	c.logger.Info("cache invalidate", "pipeline", pipeline, "keys_deleted", n)
	return n, nil
}

// Stats returns hit and miss counts since creation.
func (c *RunCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close closes the backend.
func (c *RunCache) Close() error { return c.backend.Close() }
