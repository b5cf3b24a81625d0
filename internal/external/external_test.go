package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

func TestRakeRanksLongerPhrasesFirst(t *testing.T) {
	r, err := NewRake()
	require.NoError(t, err)
	got, err := r.Extract(context.Background(), "Compatibility of systems of linear constraints over the set of natural numbers.", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "linear constraints", got[0])
	assert.Contains(t, got, "natural numbers")
}

func TestThesaurusSymmetricAndCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Car: [automobile, auto]\n"), 0o644))
	th, err := LoadThesaurus(path)
	require.NoError(t, err)

	syn, _ := th.Synonyms(context.Background(), "CAR")
	assert.Equal(t, []string{"auto", "automobile"}, syn)
	syn, _ = th.Synonyms(context.Background(), "automobile")
	assert.Equal(t, []string{"car"}, syn)
	syn, _ = th.Synonyms(context.Background(), "bicycle")
	assert.Empty(t, syn)

	_, err = LoadThesaurus(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStaticEmbedderDeterministicUnitVectors(t *testing.T) {
	e := NewStaticEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"solar energy", "solar energy", "deep sea fish"})
	require.NoError(t, err)
	assert.Equal(t, vecs[0], vecs[1])
	assert.InDelta(t, 1.0, Cosine(vecs[0], vecs[1]), 1e-6)
	assert.Less(t, Cosine(vecs[0], vecs[2]), 0.99)
}

func TestEmbeddingExtractorPrefersOverlappingWords(t *testing.T) {
	x, err := NewEmbeddingExtractor(NewStaticEmbedder(128))
	require.NoError(t, err)
	got, err := x.Extract(context.Background(), "the volcano volcano erupted", 2)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "volcano", got[0])
}

type countingEmbedder struct {
	*StaticEmbedder
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.StaticEmbedder.Embed(ctx, texts)
}

func TestCachedEmbedderOnlySendsMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(16)}
	c := NewCachedEmbedder(inner, 10)
	_, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestMemoCollapsesCalls(t *testing.T) {
	m := NewMemo[[]string](8)
	calls := 0
	fn := func(context.Context) ([]string, error) { calls++; return []string{"x"}, nil }
	for i := 0; i < 3; i++ {
		v, err := m.Do(context.Background(), "q1", fn)
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, v)
	}
	assert.Equal(t, 1, calls)
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"m","embeddings":[[3,4],[0,2]]}`))
	}))
	defer srv.Close()

	o := NewOllamaEmbedder(srv.URL, "m", 0)
	vecs, err := o.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.Equal(t, 2, o.Dimensions())
}

type failingThesaurus struct{ calls int }

func (f *failingThesaurus) Synonyms(context.Context, string) ([]string, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func TestGuardWrapsFailuresAsExternalDependency(t *testing.T) {
	cfg := config.Default().External
	cfg.MaxAttempts = 2
	cfg.Timeout = time.Second
	inner := &failingThesaurus{}
	th := GuardThesaurus(inner, NewGuard("thesaurus", cfg, nil))

	_, err := th.Synonyms(context.Background(), "car")
	assert.True(t, errors.Is(err, apperrors.ErrExternalDependency), "got %v", err)
	assert.Equal(t, 2, inner.calls)
}
