package experiment

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

var (
	threeDocs = ranker.Ranking{{Docno: "d1", Score: 0.9}, {Docno: "d2", Score: 0.7}, {Docno: "d3", Score: 0.5}}
	twoRel    = map[string]int{"d1": 1, "d3": 1}
)

func eval(t *testing.T, name string, r ranker.Ranking, judged map[string]int) float64 {
	t.Helper()
	m, err := ParseMetric(name)
	require.NoError(t, err)
	return m.Evaluate(r, judged)
}

func TestMetricValues(t *testing.T) {
	assert.InDelta(t, 0.5, eval(t, "P@2", threeDocs, twoRel), 1e-12)
	assert.InDelta(t, 1.0, eval(t, "MRR", threeDocs, twoRel), 1e-12)
	assert.InDelta(t, 0.5, eval(t, "recall_2", threeDocs, twoRel), 1e-12)
	assert.InDelta(t, 1.0, eval(t, "R@3", threeDocs, twoRel), 1e-12)
	assert.InDelta(t, (1.0+2.0/3.0)/2, eval(t, "map", threeDocs, twoRel), 1e-12)

	idcg := 1 + 1/math.Log2(3)
	assert.InDelta(t, 1.5/idcg, eval(t, "ndcg_cut_3", threeDocs, twoRel), 1e-12)
	assert.InDelta(t, 1.0, eval(t, "nDCG@1", threeDocs, twoRel), 1e-12)
}

func TestMetricEdgeCases(t *testing.T) {
	// Precision divides by k even when fewer documents were retrieved.
	assert.InDelta(t, 0.1, eval(t, "P_10", threeDocs, twoRel), 1e-12)
	assert.InDelta(t, 0.5, eval(t, "recip_rank", threeDocs, map[string]int{"d2": 2}), 1e-12)

	// Zero labels are judged non-relevant.
	onlyZero := map[string]int{"d1": 0}
	for _, name := range []string{"P_1", "recall_5", "map", "ndcg_cut_5", "recip_rank"} {
		assert.Zero(t, eval(t, name, threeDocs, onlyZero), name)
	}
	assert.Zero(t, eval(t, "map", ranker.Ranking{}, twoRel))
}

func TestNDCGUsesGradedGain(t *testing.T) {
	judged := map[string]int{"d2": 2, "d3": 1}
	// Ideal order is d2 then d3.
	dcg := 2/math.Log2(3) + 1/math.Log2(4)
	idcg := 2.0 + 1/math.Log2(3)
	assert.InDelta(t, dcg/idcg, eval(t, "ndcg", threeDocs, judged), 1e-12)
}

func TestParseMetric(t *testing.T) {
	cases := map[string]string{
		"P_10":         "P_10",
		"P@10":         "P_10",
		"precision@10": "P_10",
		"recall_100":   "recall_100",
		"R@100":        "recall_100",
		"MAP":          "map",
		"ndcg_cut_10":  "ndcg_cut_10",
		"nDCG@10":      "ndcg_cut_10",
		"ndcg":         "ndcg",
		"MRR":          "recip_rank",
		"recip_rank":   "recip_rank",
	}
	for in, want := range cases {
		m, err := ParseMetric(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, m.String(), in)
	}

	for _, bad := range []string{"bpref", "P_0", "P@x", "recall_"} {
		_, err := ParseMetric(bad)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter), bad)
	}

	_, err := ParseMetrics([]string{"P_10", "P@10"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))
	_, err = ParseMetrics(nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))
}
