// Package fusion combines lexical rankings with embedding similarity, either
// by re-ranking the lexical top-k by dense score alone or by a normalised
// linear combination of both scores.
package fusion

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/external"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

// Mode selects how dense scores enter the ranking.
type Mode string

const (
	RerankTopK        Mode = "rerank_topk"
	LinearCombination Mode = "linear_combination"
)

// Normalization maps a score distribution onto a common scale.
type Normalization string

const (
	MinMax Normalization = "minmax"
	ZScore Normalization = "zscore"
)

// DefaultField is the stored field embedded for each candidate.
const DefaultField = "text"

// Config tunes fusion. Alpha is the weight of the lexical score in a
// linear combination.
type Config struct {
	Mode      Mode
	TopK      int
	Normalize Normalization
	Alpha     float64
	BatchSize int
	Field     string
}

// ParseMode accepts the mode names used in pipeline configuration.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case RerankTopK, LinearCombination:
		return m, nil
	case "":
		return RerankTopK, nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidParameter, "unsupported fusion mode %q", s)
	}
}

// ParseNormalization accepts minmax and zscore.
func ParseNormalization(s string) (Normalization, error) {
	switch n := Normalization(strings.ToLower(strings.TrimSpace(s))); n {
	case MinMax, ZScore:
		return n, nil
	case "":
		return MinMax, nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidParameter, "unsupported score normalization %q", s)
	}
}

func (c Config) validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if _, err := ParseNormalization(string(c.Normalize)); err != nil {
		return err
	}
	if c.TopK <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidParameter, "fusion top-k must be positive, got %d", c.TopK)
	}
	if c.Alpha < 0 || c.Alpha > 1 || math.IsNaN(c.Alpha) {
		return apperrors.Newf(apperrors.ErrInvalidParameter, "fusion alpha %v outside [0,1]", c.Alpha)
	}
	if c.BatchSize < 0 {
		return apperrors.Newf(apperrors.ErrInvalidParameter, "embedding batch size %d is negative", c.BatchSize)
	}
	return nil
}

// Fuse merges the lexical ranking with dense scores keyed by docno. Only the
// lexical top-k take part; every one of them must have a dense score.
func Fuse(lexical ranker.Ranking, dense map[string]float64, cfg Config) (ranker.Ranking, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cands := lexical.Cutoff(cfg.TopK)
	denseScores := make([]float64, len(cands))
	for i, r := range cands {
		s, ok := dense[r.Docno]
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrMissingField, "no dense score for candidate %s", r.Docno)
		}
		denseScores[i] = s
	}

	out := make(ranker.Ranking, len(cands))
	mode, _ := ParseMode(string(cfg.Mode))
	switch mode {
	case RerankTopK:
		for i, r := range cands {
			out[i] = ranker.Result{Docno: r.Docno, Score: denseScores[i]}
		}
	case LinearCombination:
		norm, _ := ParseNormalization(string(cfg.Normalize))
		lexScores := make([]float64, len(cands))
		for i, r := range cands {
			lexScores[i] = r.Score
		}
		lexN := normalize(lexScores, norm)
		denseN := normalize(denseScores, norm)
		for i, r := range cands {
			out[i] = ranker.Result{Docno: r.Docno, Score: cfg.Alpha*lexN[i] + (1-cfg.Alpha)*denseN[i]}
		}
	}
	ranker.Sort(out)
	return out, nil
}

// normalize rescales xs. A constant distribution maps to zeros.
func normalize(xs []float64, n Normalization) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	switch n {
	case ZScore:
		var mean float64
		for _, x := range xs {
			mean += x
		}
		mean /= float64(len(xs))
		var variance float64
		for _, x := range xs {
			variance += (x - mean) * (x - mean)
		}
		std := math.Sqrt(variance / float64(len(xs)))
		if std == 0 {
			return out
		}
		for i, x := range xs {
			out[i] = (x - mean) / std
		}
	default:
		lo, hi := xs[0], xs[0]
		for _, x := range xs[1:] {
			lo = min(lo, x)
			hi = max(hi, x)
		}
		if hi == lo {
			return out
		}
		for i, x := range xs {
			out[i] = (x - lo) / (hi - lo)
		}
	}
	return out
}

// Fuser computes dense scores for a lexical ranking with an embedding model
// and fuses them.
type Fuser struct {
	ix       *index.Index
	embedder external.Embedder
	cfg      Config
}

// New validates cfg. The index must store cfg.Field for every document
// that can reach the fuser.
func New(ix *index.Index, embedder external.Embedder, cfg Config) (*Fuser, error) {
	if cfg.Field == "" {
		cfg.Field = DefaultField
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "dense fusion needs an embedding model")
	}
	if !hasMeta(ix, cfg.Field) {
		return nil, apperrors.Newf(apperrors.ErrMissingField, "index %s does not store field %q needed for embedding", ix.Name(), cfg.Field)
	}
	return &Fuser{ix: ix, embedder: embedder, cfg: cfg}, nil
}

// Mode reports the configured mode.
func (f *Fuser) Mode() Mode { return f.cfg.Mode }

// Rerank embeds the original query text and the top-k candidates, then
// fuses.
func (f *Fuser) Rerank(ctx context.Context, q query.Query, lexical ranker.Ranking) (ranker.Ranking, error) {
	cands := lexical.Cutoff(f.cfg.TopK)
	if len(cands) == 0 {
		return ranker.Ranking{}, nil
	}
	texts := make([]string, 0, len(cands)+1)
	texts = append(texts, q.Original())
	for _, r := range cands {
		text, err := storedText(f.ix, r.Docno, f.cfg.Field)
		if err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}
	vecs, err := EmbedBatched(ctx, f.embedder, texts, f.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	dense := make(map[string]float64, len(cands))
	for i, r := range cands {
		dense[r.Docno] = external.Cosine(vecs[0], vecs[i+1])
	}
	return Fuse(cands, dense, f.cfg)
}

// EmbedBatched embeds texts in calls of at most size texts each.
func EmbedBatched(ctx context.Context, e external.Embedder, texts []string, size int) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vecs, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, apperrors.Newf(apperrors.ErrExternalDependency, "embedder %s returned %d vectors for %d texts", e.ModelName(), len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func storedText(ix *index.Index, docno, field string) (string, error) {
	doc, ok := ix.DocID(docno)
	if !ok {
		return "", apperrors.Newf(apperrors.ErrMissingField, "candidate %s is not in index %s", docno, ix.Name())
	}
	text, ok := ix.Meta(doc, field)
	if !ok || strings.TrimSpace(text) == "" {
		return "", apperrors.Newf(apperrors.ErrMissingField, "candidate %s has no %q field", docno, field)
	}
	return text, nil
}

func hasMeta(ix *index.Index, field string) bool {
	for _, f := range ix.MetaFields() {
		if f == field {
			return true
		}
	}
	return false
}

func (c Config) String() string {
	return fmt.Sprintf("%s/k=%d/%s/alpha=%g", c.Mode, c.TopK, c.Normalize, c.Alpha)
}
