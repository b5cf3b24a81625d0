// Package experiment runs named retrieval pipelines over a query set, joins
// every ranking with its relevance judgments and aggregates evaluation
// measures into a comparison report.
package experiment

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

// Measure is the family of an evaluation metric.
type Measure string

const (
	Precision Measure = "P"
	Recall    Measure = "recall"
	AP        Measure = "map"
	NDCG      Measure = "ndcg_cut"
	RR        Measure = "recip_rank"
)

// Metric is one parsed evaluation measure. K is the rank cutoff; zero means
// the whole ranking.
type Metric struct {
	Measure Measure
	K       int
}

// String returns the canonical name, e.g. "P_10" or "map".
func (m Metric) String() string {
	switch m.Measure {
	case AP, RR:
		return string(m.Measure)
	case NDCG:
		if m.K == 0 {
			return "ndcg"
		}
	}
	return string(m.Measure) + "_" + strconv.Itoa(m.K)
}

// ParseMetric accepts trec_eval names (P_10, recall_100, map, ndcg_cut_10,
// recip_rank) and the @ forms (P@10, R@100, MAP, nDCG@10, MRR).
func ParseMetric(name string) (Metric, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "map", "ap":
		return Metric{Measure: AP}, nil
	case "recip_rank", "mrr", "rr":
		return Metric{Measure: RR}, nil
	case "ndcg":
		return Metric{Measure: NDCG}, nil
	}

	prefixes := []struct {
		prefix  string
		measure Measure
	}{
		{"precision@", Precision},
		{"p_", Precision},
		{"p@", Precision},
		{"recall_", Recall},
		{"recall@", Recall},
		{"r@", Recall},
		{"ndcg_cut_", NDCG},
		{"ndcg@", NDCG},
	}
	for _, p := range prefixes {
		rest, ok := strings.CutPrefix(n, p.prefix)
		if !ok {
			continue
		}
		k, err := strconv.Atoi(rest)
		if err != nil || k <= 0 {
			return Metric{}, apperrors.Newf(apperrors.ErrInvalidParameter, "metric %q needs a positive cutoff", name)
		}
		return Metric{Measure: p.measure, K: k}, nil
	}
	return Metric{}, apperrors.Newf(apperrors.ErrInvalidParameter, "unknown metric %q", name)
}

// ParseMetrics parses names in order and rejects duplicates.
func ParseMetrics(names []string) ([]Metric, error) {
	if len(names) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "at least one metric is required")
	}
	out := make([]Metric, 0, len(names))
	seen := make(map[Metric]bool, len(names))
	for _, name := range names {
		m, err := ParseMetric(name)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "metric %s listed twice", m)
		}
		seen[m] = true
		out = append(out, m)
	}
	return out, nil
}

// Evaluate scores r against the judgments of one query. A document is
// relevant when its label is positive; unjudged documents are non-relevant.
func (m Metric) Evaluate(r ranker.Ranking, judged map[string]int) float64 {
	switch m.Measure {
	case Precision:
		return float64(relevantIn(r, judged, m.K)) / float64(m.K)
	case Recall:
		total := totalRelevant(judged)
		if total == 0 {
			return 0
		}
		return float64(relevantIn(r, judged, m.K)) / float64(total)
	case AP:
		return averagePrecision(r, judged)
	case NDCG:
		return ndcg(r, judged, m.K)
	case RR:
		for i, res := range r {
			if judged[res.Docno] > 0 {
				return 1 / float64(i+1)
			}
		}
	}
	return 0
}

func relevantIn(r ranker.Ranking, judged map[string]int, k int) int {
	n := 0
	for _, res := range r.Cutoff(k) {
		if judged[res.Docno] > 0 {
			n++
		}
	}
	return n
}

func totalRelevant(judged map[string]int) int {
	n := 0
	for _, rel := range judged {
		if rel > 0 {
			n++
		}
	}
	return n
}

func averagePrecision(r ranker.Ranking, judged map[string]int) float64 {
	total := totalRelevant(judged)
	if total == 0 {
		return 0
	}
	var sum float64
	hits := 0
	for i, res := range r {
		if judged[res.Docno] > 0 {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	return sum / float64(total)
}

// ndcg uses linear gain and a log2(rank+1) discount.
func ndcg(r ranker.Ranking, judged map[string]int, k int) float64 {
	if k > 0 {
		r = r.Cutoff(k)
	}
	var dcg float64
	for i, res := range r {
		if rel := judged[res.Docno]; rel > 0 {
			dcg += float64(rel) / math.Log2(float64(i+2))
		}
	}

	ideal := make([]int, 0, len(judged))
	for _, rel := range judged {
		if rel > 0 {
			ideal = append(ideal, rel)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ideal)))
	if k > 0 && len(ideal) > k {
		ideal = ideal[:k]
	}
	var idcg float64
	for i, rel := range ideal {
		idcg += float64(rel) / math.Log2(float64(i+2))
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}
