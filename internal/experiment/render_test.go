package experiment

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/pipeline"
)

func TestRenderPlainReport(t *testing.T) {
	stage := goodStage()
	stage.fail = map[string]bool{"q3": true}
	r, err := NewRunner([]string{"P_2", "map"}, Options{Workers: 1})
	require.NoError(t, err)
	report, err := r.Run(context.Background(), []*pipeline.Pipeline{compose(t, "bm25_baseline", stage)}, testQueries, testQrels)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, report, true))
	out := buf.String()

	assert.Contains(t, out, "bm25_baseline")
	assert.Contains(t, out, "P_2")
	assert.Contains(t, out, "0.5000")
	assert.Contains(t, out, "excluded (NA)")
	assert.Contains(t, out, "no judgments")
	assert.Contains(t, out, "embedder timed out")
	assert.Contains(t, out, report.RunID)
	assert.GreaterOrEqual(t, strings.Count(out, "NA"), 4)
	assert.NotContains(t, out, "\x1b[", "no escape codes off a terminal")
}

func TestSummaryTableWithoutEvaluatedQueries(t *testing.T) {
	report := &Report{
		Metrics:   []string{"map"},
		Pipelines: []PipelineSummary{{Pipeline: "empty", Excluded: 2, Means: map[string]float64{"map": 0}}},
	}
	out := SummaryTable(report, plainStyles())
	assert.Contains(t, out, "empty")
	assert.Contains(t, out, "NA")
}
