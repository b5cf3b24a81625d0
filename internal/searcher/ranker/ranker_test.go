package ranker

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

func twoFieldIndex(t *testing.T) *index.Index {
	t.Helper()
	b, err := index.NewBuilder("two_fields", tokenizer.Simple{}, []string{"text", "keywords"}, nil)
	require.NoError(t, err)
	docs := []index.Document{
		{Docno: "d1", Fields: map[string]string{"text": "volcano lava eruption lava", "keywords": "volcano magma"}},
		{Docno: "d2", Fields: map[string]string{"text": "glacier melt water", "keywords": "ice water"}},
		{Docno: "d3", Fields: map[string]string{"text": "lava fields and water springs", "keywords": "lava"}},
		{Docno: "d4", Fields: map[string]string{"text": "unrelated story about kittens", "keywords": "cat"}},
	}
	for _, d := range docs {
		require.NoError(t, b.Add(d))
	}
	return b.Build()
}

func q(t *testing.T, text string) []parser.Term {
	t.Helper()
	return parser.Parse(tokenizer.Simple{}, text)
}

func TestRetrieveRoundTrip(t *testing.T) {
	ix := twoFieldIndex(t)
	s, err := New(ix, BM25, Params{K1: 1.2, B: 0.75, FieldWeights: map[string]float64{"text": 1}})
	require.NoError(t, err)

	r, err := s.Retrieve(context.Background(), q(t, "glacier"), 10)
	require.NoError(t, err)
	require.Len(t, r, 1)
	assert.Equal(t, "d2", r[0].Docno)
	assert.Positive(t, r[0].Score)

	r, err = s.Retrieve(context.Background(), q(t, "spaceship"), 10)
	require.NoError(t, err)
	assert.Empty(t, r)
}

func TestRankingOrderAndTieBreak(t *testing.T) {
	ix := twoFieldIndex(t)
	for _, m := range []Model{TFIDF, BM25, BM25F, DPH} {
		s, err := New(ix, m, DefaultParams())
		require.NoError(t, err)
		r, err := s.Retrieve(context.Background(), q(t, "lava water"), 0)
		require.NoError(t, err)
		assert.True(t, IsSorted(r), "model %s: %v", m, r)
	}
	r := Ranking{{"b", 1}, {"a", 1}, {"c", 2}}
	Sort(r)
	assert.Equal(t, []string{"c", "a", "b"}, r.Docnos())
}

func TestBM25FFieldIsolation(t *testing.T) {
	ix := twoFieldIndex(t)
	for _, field := range []string{"text", "keywords"} {
		other := "keywords"
		if field == "keywords" {
			other = "text"
		}
		f, err := New(ix, BM25F, Params{K1: 1.2, B: 0.75, FieldWeights: map[string]float64{field: 1, other: 0}})
		require.NoError(t, err)
		plain, err := New(ix, BM25, Params{K1: 1.2, B: 0.75, FieldWeights: map[string]float64{field: 1}})
		require.NoError(t, err)

		terms := q(t, "lava water volcano")
		rf, err := f.Retrieve(context.Background(), terms, 0)
		require.NoError(t, err)
		rp, err := plain.Retrieve(context.Background(), terms, 0)
		require.NoError(t, err)
		require.Equal(t, rp.Docnos(), rf.Docnos(), field)
		for i := range rp {
			assert.InDelta(t, rp[i].Score, rf[i].Score, 1e-12)
		}
	}
}

func TestTFIDFFormula(t *testing.T) {
	ix := twoFieldIndex(t)
	s, err := New(ix, TFIDF, Params{K1: 1.2, B: 0.75, FieldWeights: map[string]float64{"text": 1}})
	require.NoError(t, err)
	// "lava": tf 2 in d1, df 2, N 4.
	assert.InDelta(t, 2*math.Log(4.0/3.0), s.Score(q(t, "lava"), "d1"), 1e-12)
	assert.Zero(t, s.Score(q(t, "lava"), "missing-doc"))
}

func TestScoreMonotonicInTF(t *testing.T) {
	ix := twoFieldIndex(t)
	for _, m := range []Model{TFIDF, BM25, DPH} {
		s, err := New(ix, m, Params{K1: 1.2, B: 0, FieldWeights: map[string]float64{"text": 1}})
		require.NoError(t, err)
		// d1 has lava twice, d3 once.
		assert.GreaterOrEqual(t, s.Score(q(t, "lava"), "d1"), 0.0, m)
		if m != DPH {
			assert.Greater(t, s.Score(q(t, "lava"), "d1"), s.Score(q(t, "lava"), "d3"), m)
		}
	}
}

func TestDPHNeverNegative(t *testing.T) {
	b, err := index.NewBuilder("short", tokenizer.Simple{}, []string{"text"}, nil)
	require.NoError(t, err)
	for _, d := range []index.Document{
		{Docno: "d1", Fields: map[string]string{"text": "volcano"}},
		{Docno: "d2", Fields: map[string]string{"text": "volcano lava lava ash cloud"}},
		{Docno: "d3", Fields: map[string]string{"text": "ocean coral reef whale"}},
	} {
		require.NoError(t, b.Add(d))
	}
	s, err := New(b.Build(), DPH, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.Score(q(t, "volcano"), "d1"), "one-word document")
	r, err := s.Retrieve(context.Background(), q(t, "volcano"), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d1"}, r.Docnos(), "still matched, ranked below a scoring document")
	for _, res := range r {
		assert.GreaterOrEqual(t, res.Score, 0.0, res.Docno)
	}

	for _, tf := range []float64{1, 2, 5} {
		for _, dl := range []float64{tf, tf + 1, 50} {
			got := dph(tf, dl, 3, 3, 2)
			assert.False(t, got < 0 || math.IsNaN(got), "dph(tf=%g, dl=%g) = %g", tf, dl, got)
		}
	}
}

func TestQueryWeightScalesScore(t *testing.T) {
	ix := twoFieldIndex(t)
	s, err := New(ix, BM25, DefaultParams())
	require.NoError(t, err)
	one := s.Score([]parser.Term{{Text: "lava", Weight: 1}}, "d3")
	half := s.Score([]parser.Term{{Text: "lava", Weight: 0.5}}, "d3")
	assert.InDelta(t, one/2, half, 1e-12)
}

func TestInvalidParameters(t *testing.T) {
	ix := twoFieldIndex(t)
	cases := []Params{
		{K1: -1, B: 0.75},
		{K1: 1.2, B: 1.5},
		{K1: 1.2, B: 0.75, FieldWeights: map[string]float64{"text": -0.1}},
		{K1: 1.2, B: 0.75, FieldWeights: map[string]float64{"title": 1}},
		{K1: 1.2, B: 0.75, FieldWeights: map[string]float64{"text": 0, "keywords": 0}},
	}
	for _, p := range cases {
		_, err := New(ix, BM25F, p)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter), "params %+v: %v", p, err)
	}
	_, err := ParseModel("PL2")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))

	m, err := ParseModel("TF_IDF")
	require.NoError(t, err)
	assert.Equal(t, TFIDF, m)
}
