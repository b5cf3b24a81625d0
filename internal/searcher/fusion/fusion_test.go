package fusion

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/external"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

var lexical = ranker.Ranking{
	{Docno: "d1", Score: 9},
	{Docno: "d2", Score: 7},
	{Docno: "d3", Score: 5},
}

func TestFuseRerankTopKUsesDenseScoreOnly(t *testing.T) {
	dense := map[string]float64{"d1": 0.1, "d2": 0.9}
	out, err := Fuse(lexical, dense, Config{Mode: RerankTopK, TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, ranker.Ranking{{Docno: "d2", Score: 0.9}, {Docno: "d1", Score: 0.1}}, out)
}

func TestFuseLinearCombination(t *testing.T) {
	dense := map[string]float64{"d1": 0.0, "d2": 0.5, "d3": 1.0}
	out, err := Fuse(lexical, dense, Config{Mode: LinearCombination, TopK: 3, Normalize: MinMax, Alpha: 0.5})
	require.NoError(t, err)
	require.Len(t, out, 3)
	// All three normalise to 0.5; the docno tie-break decides.
	assert.Equal(t, []string{"d1", "d2", "d3"}, out.Docnos())
	for _, r := range out {
		assert.InDelta(t, 0.5, r.Score, 1e-9)
	}

	out, err = Fuse(lexical, dense, Config{Mode: LinearCombination, TopK: 3, Normalize: ZScore, Alpha: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "d3", out[0].Docno)
	assert.True(t, ranker.IsSorted(out))
}

func TestFuseRejectsBadConfigAndMissingScores(t *testing.T) {
	_, err := Fuse(lexical, nil, Config{Mode: "borda", TopK: 2})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))

	_, err = Fuse(lexical, nil, Config{Mode: RerankTopK, TopK: 2, Alpha: 2})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))

	_, err = Fuse(lexical, map[string]float64{"d1": 1}, Config{Mode: RerankTopK, TopK: 2})
	assert.True(t, errors.Is(err, apperrors.ErrMissingField))
}

func buildIndex(t *testing.T, meta []string, docs map[string]string) *index.Index {
	t.Helper()
	b, err := index.NewBuilder("basic", tokenizer.Simple{}, []string{"text"}, meta)
	require.NoError(t, err)
	for docno, text := range docs {
		require.NoError(t, b.Add(index.Document{Docno: docno, Fields: map[string]string{"text": text}}))
	}
	return b.Build()
}

var corpus = map[string]string{
	"d1": "volcano lava eruption",
	"d2": "coral reef ocean",
	"d3": "mountain glacier ice",
}

type countingEmbedder struct {
	external.Embedder
	batches []int
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, len(texts))
	return c.Embedder.Embed(ctx, texts)
}

func TestFuserBatchesEmbeddingCalls(t *testing.T) {
	ix := buildIndex(t, []string{"docno", "text"}, corpus)
	emb := &countingEmbedder{Embedder: external.NewStaticEmbedder(64)}
	f, err := New(ix, emb, Config{Mode: RerankTopK, TopK: 3, BatchSize: 2})
	require.NoError(t, err)

	lex := ranker.Ranking{{Docno: "d2", Score: 3}, {Docno: "d3", Score: 2}, {Docno: "d1", Score: 1}}
	out, err := f.Rerank(context.Background(), query.New("q1", "volcano lava eruption"), lex)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "d1", out[0].Docno)
	assert.Equal(t, []int{2, 2}, emb.batches)
}

func TestFuserRequiresStoredText(t *testing.T) {
	ix := buildIndex(t, []string{"docno"}, corpus)
	_, err := New(ix, external.NewStaticEmbedder(16), Config{Mode: RerankTopK, TopK: 3})
	assert.True(t, errors.Is(err, apperrors.ErrMissingField))

	ix = buildIndex(t, []string{"text"}, map[string]string{"d1": "volcano", "d2": ""})
	f, err := New(ix, external.NewStaticEmbedder(16), Config{Mode: RerankTopK, TopK: 3})
	require.NoError(t, err)
	_, err = f.Rerank(context.Background(), query.New("q1", "volcano"),
		ranker.Ranking{{Docno: "d1", Score: 2}, {Docno: "d2", Score: 1}})
	assert.True(t, errors.Is(err, apperrors.ErrMissingField))
}

func TestDenseIndexRetrievesNearestDocument(t *testing.T) {
	ix := buildIndex(t, []string{"text"}, corpus)
	d, err := BuildDenseIndex(context.Background(), ix, external.NewStaticEmbedder(128), "", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	out, err := d.Retrieve(context.Background(), query.New("q1", "coral reef ocean"), 2)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, "d2", out[0].Docno)
	assert.InDelta(t, 1.0, out[0].Score, 1e-5)
	assert.True(t, ranker.IsSorted(out))
}

func TestDenseIndexSaveAndLoad(t *testing.T) {
	ix := buildIndex(t, []string{"text"}, corpus)
	e := external.NewStaticEmbedder(128)
	built, err := BuildDenseIndex(context.Background(), ix, e, "", 2)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, built.Save(&buf))
	saved := buf.Bytes()

	loaded, err := LoadDenseIndex(bytes.NewReader(saved), ix, e, "")
	require.NoError(t, err)
	assert.Equal(t, built.Meta(), loaded.Meta())
	assert.Equal(t, 3, loaded.Len())

	want, err := built.Retrieve(context.Background(), query.New("q1", "coral reef ocean"), 3)
	require.NoError(t, err)
	got, err := loaded.Retrieve(context.Background(), query.New("q1", "coral reef ocean"), 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = LoadDenseIndex(bytes.NewReader(saved), ix, external.NewStaticEmbedder(64), "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter), "other embedder: %v", err)

	_, err = LoadDenseIndex(bytes.NewReader(saved), ix, e, "keywords")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter), "other field: %v", err)

	grown := buildIndex(t, []string{"text"}, map[string]string{"d1": "a", "d2": "b", "d3": "c", "d4": "d"})
	_, err = LoadDenseIndex(bytes.NewReader(saved), grown, e, "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter), "stale graph: %v", err)

	_, err = LoadDenseIndex(bytes.NewReader(saved[:3]), ix, e, "")
	assert.Error(t, err)
}
