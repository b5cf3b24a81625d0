package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

func sqliteCache(t *testing.T) (*RunCache, *SQLiteBackend) {
	t.Helper()
	b, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cache", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return New(b, 0, nil), b
}

func entry() Entry {
	terms := []parser.Term{{Text: "volcano", Weight: 0.7}, {Text: "lava", Weight: 0.3}}
	q := query.New("q1", "volcano").Retrieved().Reweight(terms, "rm3").Retrieved()
	return Entry{Ranking: ranker.Ranking{{Docno: "d1", Score: 2.5}, {Docno: "d2", Score: 1}}, Query: q}
}

func TestKeyDependsOnFingerprint(t *testing.T) {
	a := Key{Pipeline: "bm25", Fingerprint: "f1", QuerySet: "qs", QID: "q1"}
	b := a
	b.Fingerprint = "f2"
	assert.NotEqual(t, a.String(), b.String())
	assert.Equal(t, a.String(), a.String())
	assert.Contains(t, a.String(), "run:bm25:")
}

func TestSQLiteGetOrCompute(t *testing.T) {
	c, _ := sqliteCache(t)
	ctx := context.Background()
	k := Key{Pipeline: "bm25_rm3", Fingerprint: "f", QuerySet: "qs", QID: "q1"}

	var computed atomic.Int32
	compute := func() (Entry, error) {
		computed.Add(1)
		return entry(), nil
	}
	got, hit, err := c.GetOrCompute(ctx, k, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, entry(), got)

	got, hit, err = c.GetOrCompute(ctx, k, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, entry(), got)
	assert.Equal(t, int32(1), computed.Load())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestComputeErrorsAreNotCached(t *testing.T) {
	c, _ := sqliteCache(t)
	k := Key{Pipeline: "p", QID: "q1"}
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), k, func() (Entry, error) { return Entry{}, boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), k)
	assert.False(t, ok)
}

func TestSingleflightCollapsesConcurrentMisses(t *testing.T) {
	c, _ := sqliteCache(t)
	k := Key{Pipeline: "p", QID: "q1"}
	var computed atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), k, func() (Entry, error) {
				computed.Add(1)
				<-release
				return entry(), nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, computed.Load(), int32(4))
	assert.GreaterOrEqual(t, computed.Load(), int32(1))
	_, ok := c.Get(context.Background(), k)
	assert.True(t, ok)
}

func TestSQLiteTTLAndInvalidate(t *testing.T) {
	b, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer b.Close()
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }
	c := New(b, time.Minute, nil)
	ctx := context.Background()

	k1 := Key{Pipeline: "bm25", QID: "q1"}
	k2 := Key{Pipeline: "bm25_rm3", QID: "q1"}
	c.Set(ctx, k1, entry())
	c.Set(ctx, k2, entry())

	n, err := c.Invalidate(ctx, "bm25")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, ok := c.Get(ctx, k1)
	assert.False(t, ok)
	_, ok = c.Get(ctx, k2)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, k2)
	assert.False(t, ok, "expired")
}

func TestOpenBackends(t *testing.T) {
	cfg := config.Default()
	c, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	cfg.Cache.Backend = "memcached"
	_, err = Open(context.Background(), cfg, nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))

	cfg.Cache.Backend = "sqlite"
	cfg.Cache.Path = filepath.Join(t.TempDir(), "c.db")
	c, err = Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.NoError(t, c.Close())
}
