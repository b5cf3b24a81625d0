// Package expansion implements the query expansion models: thesaurus
// expansion through the external keyword extractor and thesaurus, and the
// pseudo-relevance feedback models RM3 and Bo1. Expanders never mutate the
// query they receive and never expand a query twice.
package expansion

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
)

// Model names, also used as the ExpandedBy marker on queries.
const (
	ThesaurusModel = "thesaurus"
	RM3Model       = "rm3"
	Bo1Model       = "bo1"
)

// Noop reasons reported to the expansion_noop_total counter.
const (
	reasonAlreadyExpanded = "already_expanded"
	reasonEmptyFeedback   = "empty_feedback"
	reasonNoCandidates    = "no_candidates"
)

// Expander produces a new query from a query and the ranking retrieved for
// it. Thesaurus expansion ignores the ranking.
type Expander interface {
	Name() string
	Expand(ctx context.Context, q query.Query, feedback ranker.Ranking) (query.Query, error)
}

// feedbackModel holds what RM3 and Bo1 share: the index the feedback
// documents live in, the analyzer for the original query and the field
// expansion terms are drawn from.
type feedbackModel struct {
	name     string
	ix       *index.Index
	analyzer tokenizer.Analyzer
	field    string
	fbDocs   int
	fbTerms  int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func newFeedbackModel(name string, ix *index.Index, field string, fbDocs, fbTerms int, m *metrics.Metrics) (feedbackModel, error) {
	if ix == nil {
		return feedbackModel{}, apperrors.Newf(apperrors.ErrInvalidParameter, "%s: nil index", name)
	}
	if field == "" {
		field = ix.Fields()[0]
	}
	if !ix.HasField(field) {
		return feedbackModel{}, apperrors.Newf(apperrors.ErrInvalidParameter, "%s: index %s has no field %q", name, ix.Name(), field)
	}
	if fbDocs <= 0 || fbTerms <= 0 {
		return feedbackModel{}, apperrors.Newf(apperrors.ErrInvalidParameter, "%s: fb_docs and fb_terms must be positive, got %d and %d", name, fbDocs, fbTerms)
	}
	a, err := tokenizer.New(ix.Analyzer())
	if err != nil {
		return feedbackModel{}, err
	}
	return feedbackModel{
		name:     name,
		ix:       ix,
		analyzer: a,
		field:    field,
		fbDocs:   fbDocs,
		fbTerms:  fbTerms,
		metrics:  m,
		logger:   slog.Default().With("component", "expansion", "model", name),
	}, nil
}

func (f feedbackModel) noop(q query.Query, reason string) query.Query {
	if f.metrics != nil {
		f.metrics.ExpansionNoopTotal.WithLabelValues(f.name, reason).Inc()
	}
	f.logger.Debug("expansion skipped", "qid", q.QID, "reason", reason)
	return q
}

// feedbackDocs resolves the top fbDocs docnos of the ranking to ordinals.
func (f feedbackModel) feedbackDocs(r ranker.Ranking) ([]uint32, []float64) {
	var (
		docs   []uint32
		scores []float64
	)
	for _, res := range r {
		if len(docs) == f.fbDocs {
			break
		}
		if doc, ok := f.ix.DocID(res.Docno); ok {
			docs = append(docs, doc)
			scores = append(scores, res.Score)
		}
	}
	return docs, scores
}

// originalTerms analyses the query and returns max-normalised terms.
func (f feedbackModel) originalTerms(q query.Query) []parser.Term {
	return parser.Normalise(q.Analyze(f.analyzer))
}

type weighted struct {
	term   string
	weight float64
}

// topTerms keeps the n highest weights, ties broken by term.
func topTerms(ws []weighted, n int) []weighted {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].weight != ws[j].weight {
			return ws[i].weight > ws[j].weight
		}
		return ws[i].term < ws[j].term
	})
	if len(ws) > n {
		ws = ws[:n]
	}
	return ws
}
