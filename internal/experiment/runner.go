package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/logger"
)

// Sink receives item and run events. collector.BatchCollector satisfies it.
type Sink interface {
	Track(key string, value any)
}

// Options configures a Runner. Cache, Sink and Baseline are optional.
type Options struct {
	Workers  int
	Cache    *cache.RunCache
	Sink     Sink
	Baseline string
}

// Runner executes every (pipeline, query) pair on a bounded worker pool and
// evaluates the rankings.
type Runner struct {
	metrics []Metric
	names   []string
	opts    Options
	logger  *slog.Logger
}

// NewRunner parses metricNames and returns a Runner.
func NewRunner(metricNames []string, opts Options) (*Runner, error) {
	metrics, err := ParseMetrics(metricNames)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	names := make([]string, len(metrics))
	for i, m := range metrics {
		names[i] = m.String()
	}
	return &Runner{
		metrics: metrics,
		names:   names,
		opts:    opts,
		logger:  logger.WithComponent("experiment-runner"),
	}, nil
}

// Metrics returns the canonical metric names in report order.
func (r *Runner) Metrics() []string { return r.names }

// Run executes pipelines over queries. A failing item is recorded in the
// report and does not stop the batch. Cancelling ctx aborts the run: no
// further items are scheduled, items still in flight finish but their
// results are discarded, and the partial report is returned together with
// the context error.
func (r *Runner) Run(ctx context.Context, pipelines []*pipeline.Pipeline, queries []query.Query, qrels collection.Qrels) (*Report, error) {
	if len(pipelines) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "no pipelines to run")
	}
	summaries := make([]PipelineSummary, len(pipelines))
	seen := make(map[string]bool, len(pipelines))
	for i, p := range pipelines {
		if seen[p.Name()] {
			return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "duplicate pipeline name %q", p.Name())
		}
		seen[p.Name()] = true
		summaries[i] = PipelineSummary{Pipeline: p.Name(), Fingerprint: p.Fingerprint(), Description: p.Describe()}
	}
	if r.opts.Baseline != "" && !seen[r.opts.Baseline] {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "baseline pipeline %q", r.opts.Baseline)
	}

	report := &Report{
		RunID:     uuid.NewString(),
		QuerySet:  collection.QuerySetID(queries),
		Queries:   len(queries),
		Metrics:   r.names,
		Baseline:  r.opts.Baseline,
		StartedAt: time.Now().UTC(),
	}
	ctx = logger.WithRunID(ctx, report.RunID)
	log := logger.FromContext(ctx).With("component", "experiment-runner")
	log.Info("run started",
		"pipelines", len(pipelines),
		"queries", len(queries),
		"workers", r.opts.Workers,
		"query_set", report.QuerySet,
	)

	// In-flight items keep running after an abort; only scheduling stops.
	workCtx := context.WithoutCancel(ctx)
	slots := make([]*ItemResult, len(pipelines)*len(queries))
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)

schedule:
	for pi, p := range pipelines {
		for qi, q := range queries {
			if ctx.Err() != nil {
				break schedule
			}
			slot := pi*len(queries) + qi
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				it := r.execute(workCtx, p, q, report.QuerySet, qrels)
				if ctx.Err() != nil {
					return nil
				}
				slots[slot] = &it
				if r.opts.Sink != nil {
					r.opts.Sink.Track(report.RunID, itemEvent(report.RunID, it))
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	report.Items = make([]ItemResult, 0, len(slots))
	for _, it := range slots {
		if it != nil {
			report.Items = append(report.Items, *it)
		}
	}
	report.Aborted = ctx.Err() != nil
	report.Pipelines = summarize(summaries, report.Items, r.names, r.opts.Baseline)
	report.FinishedAt = time.Now().UTC()
	if r.opts.Sink != nil {
		r.opts.Sink.Track(report.RunID, runEvent(report))
	}

	log.Info("run finished",
		"items", len(report.Items),
		"aborted", report.Aborted,
		"elapsed", report.FinishedAt.Sub(report.StartedAt),
	)
	if report.Aborted {
		return report, fmt.Errorf("experiment run %s aborted: %w", report.RunID, context.Cause(ctx))
	}
	return report, nil
}

func (r *Runner) execute(ctx context.Context, p *pipeline.Pipeline, q query.Query, querySet string, qrels collection.Qrels) ItemResult {
	start := time.Now()
	it := ItemResult{
		Pipeline:    p.Name(),
		Fingerprint: p.Fingerprint(),
		QID:         q.QID,
		Query:       q,
		Values:      make(map[string]*float64, len(r.metrics)),
	}

	compute := func() (cache.Entry, error) {
		ranking, final, err := p.Run(ctx, q)
		if err != nil {
			return cache.Entry{}, err
		}
		return cache.Entry{Ranking: ranking, Query: final}, nil
	}
	var (
		entry cache.Entry
		err   error
	)
	if r.opts.Cache != nil {
		key := cache.Key{Pipeline: p.Name(), Fingerprint: p.Fingerprint(), QuerySet: querySet, QID: q.QID}
		entry, it.CacheHit, err = r.opts.Cache.GetOrCompute(ctx, key, compute)
	} else {
		entry, err = compute()
	}
	it.Latency = time.Since(start)

	for _, name := range r.names {
		it.Values[name] = nil
	}
	if err != nil {
		it.Err = err.Error()
		logger.FromContext(ctx).Warn("item failed", "pipeline", p.Name(), "qid", q.QID, "error", err)
		return it
	}
	it.Ranking = entry.Ranking
	it.Query = entry.Query

	judged := qrels[q.QID]
	if len(judged) == 0 {
		return it
	}
	it.Judged = true
	for i, m := range r.metrics {
		v := m.Evaluate(entry.Ranking, judged)
		it.Values[r.names[i]] = &v
	}
	return it
}
