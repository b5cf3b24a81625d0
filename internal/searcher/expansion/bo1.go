package expansion

import (
	"context"
	"math"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
)

// Bo1Config tunes Bo1. Candidate terms must occur in at least MinDocuments
// of the feedback documents.
type Bo1Config struct {
	FeedbackDocs  int
	FeedbackTerms int
	MinDocuments  int
	Field         string
}

// Bo1 weights candidate terms by the Bose-Einstein divergence of their
// feedback-set frequency from their collection frequency.
type Bo1 struct {
	feedbackModel
	minDocs int
}

// NewBo1 validates cfg against ix.
func NewBo1(ix *index.Index, cfg Bo1Config, m *metrics.Metrics) (*Bo1, error) {
	if cfg.MinDocuments < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "bo1: min documents %d is negative", cfg.MinDocuments)
	}
	fm, err := newFeedbackModel(Bo1Model, ix, cfg.Field, cfg.FeedbackDocs, cfg.FeedbackTerms, m)
	if err != nil {
		return nil, err
	}
	return &Bo1{feedbackModel: fm, minDocs: cfg.MinDocuments}, nil
}

func (b *Bo1) Name() string { return Bo1Model }

// Expand adds the fb_terms most informative feedback terms to q. Each term's
// new weight is its normalised original weight plus its Bo1 weight divided
// by the best Bo1 weight.
func (b *Bo1) Expand(ctx context.Context, q query.Query, feedback ranker.Ranking) (query.Query, error) {
	if q.IsExpanded() {
		return b.noop(q, reasonAlreadyExpanded), nil
	}
	docs, _ := b.feedbackDocs(feedback)
	if len(docs) == 0 {
		return b.noop(q, reasonEmptyFeedback), nil
	}
	if err := ctx.Err(); err != nil {
		return q, err
	}
	orig := b.originalTerms(q)

	tfx := map[string]float64{}
	inDocs := map[string]int{}
	for _, doc := range docs {
		for _, tf := range b.ix.DocVector(doc, b.field) {
			tfx[tf.Term] += float64(tf.TF)
			inDocs[tf.Term]++
		}
	}
	minDocs := min(b.minDocs, len(docs))
	n := float64(b.ix.DocCount())
	var cands []weighted
	for t, x := range tfx {
		if inDocs[t] < minDocs {
			continue
		}
		w := bo1Weight(x, float64(b.ix.Term(t, b.field).TotalTermFrequency), n)
		if w > 0 {
			cands = append(cands, weighted{term: t, weight: w})
		}
	}
	if len(cands) == 0 {
		return b.noop(q, reasonNoCandidates), nil
	}
	cands = topTerms(cands, b.fbTerms)
	best := cands[0].weight

	weights := map[string]float64{}
	order := make([]string, 0, len(orig)+len(cands))
	for _, t := range orig {
		weights[t.Text] = t.Weight
		order = append(order, t.Text)
	}
	for _, c := range cands {
		if _, ok := weights[c.term]; !ok {
			order = append(order, c.term)
		}
		weights[c.term] += c.weight / best
	}
	terms := make([]parser.Term, len(order))
	for i, t := range order {
		terms[i] = parser.Term{Text: t, Weight: weights[t]}
	}
	return q.Reweight(terms, Bo1Model), nil
}

// bo1Weight is tfx*log2((1+Pn)/Pn) + log2(1+Pn) with Pn = F/N.
func bo1Weight(tfx, collectionFreq, n float64) float64 {
	if collectionFreq <= 0 || n <= 0 {
		return 0
	}
	pn := collectionFreq / n
	w := tfx*math.Log2((1+pn)/pn) + math.Log2(1+pn)
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0
	}
	return w
}
