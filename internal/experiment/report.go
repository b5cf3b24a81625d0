package experiment

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
)

// ItemResult is the outcome of one (pipeline, query) execution. Values is
// keyed by metric name; a nil value is NA, either because the query has no
// judgments or because the execution failed.
type ItemResult struct {
	Pipeline    string              `json:"pipeline"`
	Fingerprint string              `json:"fingerprint"`
	QID         string              `json:"qid"`
	Query       query.Query         `json:"query"`
	Ranking     ranker.Ranking      `json:"-"`
	Values      map[string]*float64 `json:"values"`
	Judged      bool                `json:"judged"`
	Err         string              `json:"error,omitempty"`
	CacheHit    bool                `json:"cache_hit"`
	Latency     time.Duration       `json:"latency"`
}

// Evaluated reports whether the item contributes to the means.
func (it ItemResult) Evaluated() bool { return it.Judged && it.Err == "" }

// PipelineSummary aggregates one pipeline. Means are over evaluated queries
// only; Excluded counts queries without judgments and Failed counts
// executions that returned an error.
type PipelineSummary struct {
	Pipeline    string             `json:"pipeline"`
	Fingerprint string             `json:"fingerprint"`
	Description string             `json:"description"`
	Means       map[string]float64 `json:"means"`
	Evaluated   int                `json:"evaluated"`
	Excluded    int                `json:"excluded"`
	Failed      int                `json:"failed"`
	CacheHits   int                `json:"cache_hits"`
	// Improved and Degraded count per metric the queries that scored above
	// or below the baseline pipeline. Empty for the baseline itself.
	Improved map[string]int `json:"improved,omitempty"`
	Degraded map[string]int `json:"degraded,omitempty"`
}

// Report is the result of one experiment run.
type Report struct {
	RunID      string            `json:"run_id"`
	QuerySet   string            `json:"query_set"`
	Queries    int               `json:"queries"`
	Metrics    []string          `json:"metrics"`
	Baseline   string            `json:"baseline,omitempty"`
	Pipelines  []PipelineSummary `json:"pipelines"`
	Items      []ItemResult      `json:"items"`
	Aborted    bool              `json:"aborted"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Summary returns the summary of pipeline.
func (r *Report) Summary(pipeline string) (PipelineSummary, bool) {
	for _, s := range r.Pipelines {
		if s.Pipeline == pipeline {
			return s, true
		}
	}
	return PipelineSummary{}, false
}

// Rankings returns the per-query rankings pipeline produced, keyed by qid.
func (r *Report) Rankings(pipeline string) map[string]ranker.Ranking {
	out := make(map[string]ranker.Ranking)
	for _, it := range r.Items {
		if it.Pipeline == pipeline && it.Err == "" {
			out[it.QID] = it.Ranking
		}
	}
	return out
}

// Item returns the result for (pipeline, qid).
func (r *Report) Item(pipeline, qid string) (ItemResult, bool) {
	for _, it := range r.Items {
		if it.Pipeline == pipeline && it.QID == qid {
			return it, true
		}
	}
	return ItemResult{}, false
}

// summarize builds the pipeline summaries in pipeline order. Items must be
// grouped by pipeline already.
func summarize(order []PipelineSummary, items []ItemResult, metrics []string, baseline string) []PipelineSummary {
	index := make(map[string]int, len(order))
	sums := make([]map[string]float64, len(order))
	for i := range order {
		index[order[i].Pipeline] = i
		order[i].Means = make(map[string]float64, len(metrics))
		sums[i] = make(map[string]float64, len(metrics))
	}

	for _, it := range items {
		i := index[it.Pipeline]
		s := &order[i]
		if it.CacheHit {
			s.CacheHits++
		}
		switch {
		case it.Err != "":
			s.Failed++
		case !it.Judged:
			s.Excluded++
		default:
			s.Evaluated++
			for _, name := range metrics {
				sums[i][name] += *it.Values[name]
			}
		}
	}
	for i := range order {
		for _, name := range metrics {
			if order[i].Evaluated > 0 {
				order[i].Means[name] = sums[i][name] / float64(order[i].Evaluated)
			} else {
				order[i].Means[name] = 0
			}
		}
	}

	if baseline != "" {
		compareToBaseline(order, items, metrics, baseline)
	}
	return order
}

func compareToBaseline(order []PipelineSummary, items []ItemResult, metrics []string, baseline string) {
	base := make(map[string]ItemResult)
	for _, it := range items {
		if it.Pipeline == baseline && it.Evaluated() {
			base[it.QID] = it
		}
	}
	index := make(map[string]int, len(order))
	for i := range order {
		index[order[i].Pipeline] = i
		if order[i].Pipeline != baseline {
			order[i].Improved = make(map[string]int, len(metrics))
			order[i].Degraded = make(map[string]int, len(metrics))
		}
	}
	for _, it := range items {
		if it.Pipeline == baseline || !it.Evaluated() {
			continue
		}
		b, ok := base[it.QID]
		if !ok {
			continue
		}
		s := &order[index[it.Pipeline]]
		for _, name := range metrics {
			switch v, bv := *it.Values[name], *b.Values[name]; {
			case v > bv:
				s.Improved[name]++
			case v < bv:
				s.Degraded[name]++
			}
		}
	}
}
