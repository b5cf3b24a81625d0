package expansion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/external"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
)

// DefaultKeywordTopN is how many keywords are taken from a text.
const DefaultKeywordTopN = 3

// Thesaurus appends keywords of the text and their synonyms to it. The
// original text stays on the query as Text (query_0).
type Thesaurus struct {
	extractor external.KeywordExtractor
	thesaurus external.Thesaurus
	topN      int
	memo      *external.Memo[[]string]
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewThesaurus wires the two collaborators. Results are memoised per text
// for the lifetime of the expander, so one expander per run bounds the
// external calls to one per distinct query.
func NewThesaurus(extractor external.KeywordExtractor, thesaurus external.Thesaurus, topN, memoSize int, m *metrics.Metrics) (*Thesaurus, error) {
	if extractor == nil || thesaurus == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "thesaurus expansion needs a keyword extractor and a thesaurus")
	}
	if topN < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "keyword top-n %d is negative", topN)
	}
	if topN == 0 {
		topN = DefaultKeywordTopN
	}
	return &Thesaurus{
		extractor: extractor,
		thesaurus: thesaurus,
		topN:      topN,
		memo:      external.NewMemo[[]string](memoSize),
		metrics:   m,
		logger:    slog.Default().With("component", "expansion", "model", ThesaurusModel),
	}, nil
}

func (t *Thesaurus) Name() string { return ThesaurusModel }

// Expand ignores feedback.
func (t *Thesaurus) Expand(ctx context.Context, q query.Query, _ ranker.Ranking) (query.Query, error) {
	if q.IsExpanded() {
		if t.metrics != nil {
			t.metrics.ExpansionNoopTotal.WithLabelValues(ThesaurusModel, reasonAlreadyExpanded).Inc()
		}
		return q, nil
	}
	text, err := t.ExpandText(ctx, q.Original())
	if err != nil {
		return q, err
	}
	return q.Expand(text, ThesaurusModel), nil
}

// RewriteQueries expands every query of a query set before any pipeline
// runs. Each result is a fresh Initial query whose text is the expanded
// text and whose query_0 is the original, so feedback stages in the
// pipelines still apply. At most workers texts are expanded at once.
func (t *Thesaurus) RewriteQueries(ctx context.Context, qs []query.Query, workers int) ([]query.Query, error) {
	out := make([]query.Query, len(qs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, q := range qs {
		g.Go(func() error {
			text, err := t.ExpandText(gctx, q.Original())
			if err != nil {
				return fmt.Errorf("expanding query %s: %w", q.QID, err)
			}
			out[i] = q.Rewrite(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	t.logger.Info("query set expanded", "queries", len(out))
	return out, nil
}

// ExpandText returns text followed by its expansion terms.
func (t *Thesaurus) ExpandText(ctx context.Context, text string) (string, error) {
	extra, err := t.Terms(ctx, text)
	if err != nil {
		return "", err
	}
	if len(extra) == 0 {
		return text, nil
	}
	return text + " " + strings.Join(extra, " "), nil
}

// Terms returns the words of text's keywords followed by their synonyms,
// deduplicated, in discovery order. Synonyms are looked up for each keyword
// phrase and for each of its words. The keyword index variants store these
// terms in place of, or next to, the document text.
func (t *Thesaurus) Terms(ctx context.Context, text string) ([]string, error) {
	return t.memo.Do(ctx, text, func(ctx context.Context) ([]string, error) {
		keywords, err := t.extractor.Extract(ctx, text, t.topN)
		if err != nil {
			return nil, err
		}
		seen := map[string]struct{}{}
		var out []string
		add := func(phrase string) {
			for _, w := range words(phrase) {
				if _, dup := seen[w]; dup {
					continue
				}
				seen[w] = struct{}{}
				out = append(out, w)
			}
		}
		for _, kw := range keywords {
			add(kw)
		}
		for _, kw := range keywords {
			lookups := []string{kw}
			if ws := words(kw); len(ws) > 1 {
				lookups = append(lookups, ws...)
			}
			for _, l := range lookups {
				syns, err := t.thesaurus.Synonyms(ctx, l)
				if err != nil {
					return nil, err
				}
				for _, s := range syns {
					add(s)
				}
			}
		}
		t.logger.Debug("thesaurus terms", "keywords", keywords, "terms", len(out))
		return out, nil
	})
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
