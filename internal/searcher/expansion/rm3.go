package expansion

import (
	"context"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
)

// RM3Config tunes the relevance model. Lambda is the weight of the
// original query distribution.
type RM3Config struct {
	FeedbackDocs  int
	FeedbackTerms int
	Lambda        float64
	Field         string
}

// RM3 interpolates the original query's term distribution with a relevance
// model estimated from the feedback documents.
type RM3 struct {
	feedbackModel
	lambda float64
}

// NewRM3 validates cfg against ix.
func NewRM3(ix *index.Index, cfg RM3Config, m *metrics.Metrics) (*RM3, error) {
	if cfg.Lambda < 0 || cfg.Lambda > 1 || math.IsNaN(cfg.Lambda) {
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "rm3: lambda %v outside [0,1]", cfg.Lambda)
	}
	fm, err := newFeedbackModel(RM3Model, ix, cfg.Field, cfg.FeedbackDocs, cfg.FeedbackTerms, m)
	if err != nil {
		return nil, err
	}
	return &RM3{feedbackModel: fm, lambda: cfg.Lambda}, nil
}

func (r *RM3) Name() string { return RM3Model }

// Expand rewrites q as the interpolated model over the original terms and
// the fb_terms most probable relevance-model terms.
func (r *RM3) Expand(ctx context.Context, q query.Query, feedback ranker.Ranking) (query.Query, error) {
	if q.IsExpanded() {
		return r.noop(q, reasonAlreadyExpanded), nil
	}
	docs, scores := r.feedbackDocs(feedback)
	if len(docs) == 0 {
		return r.noop(q, reasonEmptyFeedback), nil
	}
	if err := ctx.Err(); err != nil {
		return q, err
	}

	orig := r.originalTerms(q)
	pq := distribution(orig)

	docWeights := documentWeights(scores)
	rel := map[string]float64{}
	for i, doc := range docs {
		dl := float64(r.ix.DocLength(doc, r.field))
		if dl == 0 {
			continue
		}
		for _, tf := range r.ix.DocVector(doc, r.field) {
			rel[tf.Term] += docWeights[i] * float64(tf.TF) / dl
		}
	}
	if len(rel) == 0 {
		return r.noop(q, reasonNoCandidates), nil
	}
	cands := make([]weighted, 0, len(rel))
	for t, w := range rel {
		cands = append(cands, weighted{term: t, weight: w})
	}
	cands = topTerms(cands, r.fbTerms)
	var relMass float64
	for _, c := range cands {
		relMass += c.weight
	}

	combined := map[string]float64{}
	for t, p := range pq {
		combined[t] += r.lambda * p
	}
	for _, c := range cands {
		combined[c.term] += (1 - r.lambda) * c.weight / relMass
	}
	terms := make([]parser.Term, 0, len(combined))
	for t, w := range combined {
		if w > 0 {
			terms = append(terms, parser.Term{Text: t, Weight: w})
		}
	}
	if len(terms) == 0 {
		return r.noop(q, reasonNoCandidates), nil
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Weight != terms[j].Weight {
			return terms[i].Weight > terms[j].Weight
		}
		return terms[i].Text < terms[j].Text
	})
	return q.Reweight(terms, RM3Model), nil
}

// distribution turns weighted terms into probabilities.
func distribution(terms []parser.Term) map[string]float64 {
	var total float64
	for _, t := range terms {
		total += t.Weight
	}
	out := make(map[string]float64, len(terms))
	if total == 0 {
		return out
	}
	for _, t := range terms {
		out[t.Text] += t.Weight / total
	}
	return out
}

// documentWeights normalises retrieval scores into P(Q|d). Rankings whose
// scores carry no mass get uniform weights.
func documentWeights(scores []float64) []float64 {
	out := make([]float64, len(scores))
	var total float64
	for _, s := range scores {
		if s > 0 {
			total += s
		}
	}
	for i, s := range scores {
		switch {
		case total == 0:
			out[i] = 1 / float64(len(scores))
		case s > 0:
			out[i] = s / total
		}
	}
	return out
}
