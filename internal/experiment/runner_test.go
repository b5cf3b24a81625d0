package experiment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

// fixedStage returns a canned ranking per qid and fails on qids listed in
// fail.
type fixedStage struct {
	rankings map[string]ranker.Ranking
	fail     map[string]bool
	calls    atomic.Int64
	onCall   func()
}

func (s *fixedStage) Name() string          { return "fixed" }
func (s *fixedStage) Input() pipeline.Kind  { return pipeline.KindQuery }
func (s *fixedStage) Output() pipeline.Kind { return pipeline.KindRanking }
func (s *fixedStage) Describe() string      { return "fixed" }

func (s *fixedStage) Run(_ context.Context, in pipeline.Item) (pipeline.Item, error) {
	s.calls.Add(1)
	if s.onCall != nil {
		s.onCall()
	}
	if s.fail[in.Query.QID] {
		return pipeline.Item{}, apperrors.New(apperrors.ErrExternalDependency, "embedder timed out")
	}
	return pipeline.Item{Query: in.Query.Retrieved(), Ranking: s.rankings[in.Query.QID]}, nil
}

func compose(t *testing.T, name string, s pipeline.Stage) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Compose(name, nil, s)
	require.NoError(t, err)
	return p
}

var (
	testQueries = []query.Query{
		query.New("q1", "volcano"),
		query.New("q2", "ocean"),
		query.New("q3", "lava"),
	}
	testQrels = collection.Qrels{
		"q1": {"d1": 1, "d3": 1},
		"q3": {"d2": 1},
	}
)

func goodStage() *fixedStage {
	return &fixedStage{
		rankings: map[string]ranker.Ranking{
			"q1": threeDocs,
			"q2": {{Docno: "d9", Score: 1}},
			"q3": {{Docno: "d2", Score: 2}, {Docno: "d1", Score: 1}},
		},
	}
}

func TestRunExcludesUnjudgedAndCapturesFailures(t *testing.T) {
	stage := goodStage()
	stage.fail = map[string]bool{"q3": true}
	r, err := NewRunner([]string{"P@2", "MRR"}, Options{Workers: 2})
	require.NoError(t, err)

	report, err := r.Run(context.Background(), []*pipeline.Pipeline{compose(t, "bm25", stage)}, testQueries, testQrels)
	require.NoError(t, err)
	require.Len(t, report.Items, 3)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, collection.QuerySetID(testQueries), report.QuerySet)

	s, ok := report.Summary("bm25")
	require.True(t, ok)
	assert.Equal(t, 1, s.Evaluated)
	assert.Equal(t, 1, s.Excluded)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 0.5, s.Means["P_2"], 1e-12)
	assert.InDelta(t, 1.0, s.Means["recip_rank"], 1e-12)

	q2, ok := report.Item("bm25", "q2")
	require.True(t, ok)
	assert.False(t, q2.Judged)
	assert.Contains(t, q2.Values, "P_2")
	assert.Nil(t, q2.Values["P_2"], "unjudged query must be NA")
	assert.Equal(t, []string{"d9"}, q2.Ranking.Docnos())

	q3, ok := report.Item("bm25", "q3")
	require.True(t, ok)
	assert.Contains(t, q3.Err, "embedder timed out")
	assert.Nil(t, q3.Values["P_2"])

	assert.Equal(t, query.FirstPassRetrieved, q2.Query.State)
	assert.Len(t, report.Rankings("bm25"), 2)
}

func TestRunRejectsBadInput(t *testing.T) {
	_, err := NewRunner([]string{"bpref"}, Options{})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))

	r, err := NewRunner([]string{"map"}, Options{})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), nil, testQueries, testQrels)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))

	p := compose(t, "same", goodStage())
	_, err = r.Run(context.Background(), []*pipeline.Pipeline{p, p}, testQueries, testQrels)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))

	r, err = NewRunner([]string{"map"}, Options{Baseline: "missing"})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), []*pipeline.Pipeline{p}, testQueries, testQrels)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memBackend) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *memBackend) Close() error { return nil }

func TestRunReusesCachedResults(t *testing.T) {
	rc := cache.New(&memBackend{data: map[string][]byte{}}, 0, nil)
	stage := goodStage()
	p := compose(t, "bm25", stage)
	r, err := NewRunner([]string{"map"}, Options{Workers: 3, Cache: rc})
	require.NoError(t, err)

	first, err := r.Run(context.Background(), []*pipeline.Pipeline{p}, testQueries, testQrels)
	require.NoError(t, err)
	require.Equal(t, int64(3), stage.calls.Load())
	s, _ := first.Summary("bm25")
	assert.Equal(t, 0, s.CacheHits)

	second, err := r.Run(context.Background(), []*pipeline.Pipeline{p}, testQueries, testQrels)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stage.calls.Load(), "cached items must not re-execute")
	s, _ = second.Summary("bm25")
	assert.Equal(t, 3, s.CacheHits)

	a, _ := first.Item("bm25", "q1")
	b, _ := second.Item("bm25", "q1")
	assert.Equal(t, a.Ranking, b.Ranking)
	assert.Equal(t, *a.Values["map"], *b.Values["map"])

	// A different query set is a different key.
	_, err = r.Run(context.Background(), []*pipeline.Pipeline{p}, testQueries[:2], testQrels)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stage.calls.Load())
}

func TestAbortStopsSchedulingAndDiscardsInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stage := goodStage()
	stage.onCall = cancel
	r, err := NewRunner([]string{"map"}, Options{Workers: 1})
	require.NoError(t, err)

	report, err := r.Run(ctx, []*pipeline.Pipeline{compose(t, "bm25", stage)}, testQueries, testQrels)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, report)
	assert.True(t, report.Aborted)
	assert.Empty(t, report.Items, "in-flight result must be discarded")
	assert.Equal(t, int64(1), stage.calls.Load())
}

type recordingSink struct {
	mu     sync.Mutex
	events []any
}

func (s *recordingSink) Track(_ string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, value)
}

func TestRunEmitsEventsAndComparesToBaseline(t *testing.T) {
	base := goodStage()
	better := &fixedStage{rankings: map[string]ranker.Ranking{
		"q1": {{Docno: "d1", Score: 3}, {Docno: "d3", Score: 2}},
		"q2": {},
		"q3": {{Docno: "d1", Score: 2}, {Docno: "d2", Score: 1}},
	}}
	sink := &recordingSink{}
	r, err := NewRunner([]string{"P_2", "recip_rank"}, Options{Workers: 4, Sink: sink, Baseline: "base"})
	require.NoError(t, err)

	report, err := r.Run(context.Background(),
		[]*pipeline.Pipeline{compose(t, "base", base), compose(t, "better", better)},
		testQueries, testQrels)
	require.NoError(t, err)

	require.Len(t, sink.events, 7)
	run, ok := sink.events[6].(RunEvent)
	require.True(t, ok)
	assert.Equal(t, report.RunID, run.RunID)
	items := 0
	for _, e := range sink.events[:6] {
		if ie, ok := e.(ItemEvent); ok {
			items++
			assert.Equal(t, EventItem, ie.Type)
			assert.Equal(t, report.RunID, ie.RunID)
		}
	}
	assert.Equal(t, 6, items)

	s, ok := report.Summary("better")
	require.True(t, ok)
	// q1: P_2 rises from 0.5 to 1; q3: P_2 stays 0.5, RR drops from 1 to 0.5.
	assert.Equal(t, 1, s.Improved["P_2"])
	assert.Equal(t, 0, s.Degraded["P_2"])
	assert.Equal(t, 1, s.Degraded["recip_rank"])
	baseSummary, _ := report.Summary("base")
	assert.Nil(t, baseSummary.Improved)
}
