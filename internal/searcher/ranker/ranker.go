// Package ranker implements the term-weighting models (TF-IDF, BM25, BM25F,
// DPH) over an index and turns a weighted query into a Ranking.
package ranker

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

// Model is one of the supported weighting models.
type Model string

const (
	TFIDF Model = "tfidf"
	BM25  Model = "bm25"
	BM25F Model = "bm25f"
	DPH   Model = "dph"
)

// ParseModel accepts the model names case-insensitively, including the
// Terrier spellings TF_IDF and BM25F.
func ParseModel(name string) (Model, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "")) {
	case "tfidf":
		return TFIDF, nil
	case "bm25":
		return BM25, nil
	case "bm25f":
		return BM25F, nil
	case "dph":
		return DPH, nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidParameter, "unknown weighting model %q", name)
}

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
	MaxK1     = 10.0
)

// Params tunes a Scorer. Nil FieldWeights weights every indexed field 1.
type Params struct {
	K1           float64
	B            float64
	FieldWeights map[string]float64
}

// DefaultParams returns k1=1.2, b=0.75 over all fields.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

type activeField struct {
	name   string
	weight float64
	avg    float64
}

// Scorer scores documents of one index under one model. It is immutable
// and safe for concurrent use.
type Scorer struct {
	model  Model
	ix     *index.Index
	k1, b  float64
	fields []activeField
	n      float64
}

// New validates p against ix and returns a Scorer.
func New(ix *index.Index, model Model, p Params) (*Scorer, error) {
	if _, err := ParseModel(string(model)); err != nil {
		return nil, err
	}
	if p.K1 < 0 || p.K1 > MaxK1 || math.IsNaN(p.K1) {
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "k1 must be in [0,%g], got %v", MaxK1, p.K1)
	}
	if p.B < 0 || p.B > 1 || math.IsNaN(p.B) {
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "b must be in [0,1], got %v", p.B)
	}
	weights := p.FieldWeights
	if len(weights) == 0 {
		weights = make(map[string]float64)
		for _, f := range ix.Fields() {
			weights[f] = 1
		}
	}
	s := &Scorer{model: model, ix: ix, k1: p.K1, b: p.B, n: float64(ix.DocCount())}
	for f, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "field weight for %q must be a finite value >= 0, got %v", f, w)
		}
		if !ix.HasField(f) {
			return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "index %s has no field %q", ix.Name(), f)
		}
		if w == 0 {
			continue
		}
		s.fields = append(s.fields, activeField{name: f, weight: w, avg: ix.Stats(f).AvgLength})
	}
	if len(s.fields) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "at least one field weight must be positive")
	}
	sort.Slice(s.fields, func(i, j int) bool { return s.fields[i].name < s.fields[j].name })
	return s, nil
}

// Model returns the weighting model.
func (s *Scorer) Model() Model { return s.model }

// Index returns the scored index.
func (s *Scorer) Index() *index.Index { return s.ix }

// termStats are the per-query statistics of one term.
type termStats struct {
	term    string
	weight  float64
	df      []int
	ttf     []int64
	unionDF int
}

func (s *Scorer) prepare(terms []parser.Term) []termStats {
	out := make([]termStats, 0, len(terms))
	for _, t := range terms {
		if t.Weight <= 0 {
			continue
		}
		ts := termStats{term: t.Text, weight: t.Weight, df: make([]int, len(s.fields)), ttf: make([]int64, len(s.fields))}
		for i, f := range s.fields {
			st := s.ix.Term(t.Text, f.name)
			ts.df[i] = st.DocumentFrequency
			ts.ttf[i] = st.TotalTermFrequency
		}
		if s.model == BM25F {
			ts.unionDF = s.unionDF(t.Text)
		}
		out = append(out, ts)
	}
	return out
}

func (s *Scorer) unionDF(term string) int {
	if len(s.fields) == 1 {
		return len(s.ix.Lookup(term, s.fields[0].name))
	}
	seen := make(map[uint32]struct{})
	for _, f := range s.fields {
		for _, p := range s.ix.Lookup(term, f.name) {
			seen[p.Doc] = struct{}{}
		}
	}
	return len(seen)
}

// Score is the relevance of docno to the query. Unknown documents score 0.
func (s *Scorer) Score(terms []parser.Term, docno string) float64 {
	doc, ok := s.ix.DocID(docno)
	if !ok {
		return 0
	}
	return s.scoreDoc(s.prepare(terms), doc)
}

func (s *Scorer) scoreDoc(stats []termStats, doc uint32) float64 {
	var total float64
	for _, ts := range stats {
		var v float64
		if s.model == BM25F {
			v = s.bm25f(ts, doc)
		} else {
			for i, f := range s.fields {
				tf := float64(s.ix.TF(ts.term, f.name, doc))
				if tf == 0 {
					continue
				}
				dl := float64(s.ix.DocLength(doc, f.name))
				v += f.weight * s.single(tf, dl, f.avg, ts.df[i], ts.ttf[i])
			}
		}
		total += ts.weight * v
	}
	return total
}

func (s *Scorer) single(tf, dl, avg float64, df int, ttf int64) float64 {
	switch s.model {
	case TFIDF:
		return tf * tfidfIDF(s.n, float64(df))
	case BM25:
		return bm25IDF(s.n, float64(df)) * tf * (s.k1 + 1) / (tf + s.k1*lengthNorm(s.b, dl, avg))
	case DPH:
		return dph(tf, dl, avg, s.n, float64(ttf))
	}
	return 0
}

// bm25f combines length-normalised, weighted field frequencies before a
// single saturation.
func (s *Scorer) bm25f(ts termStats, doc uint32) float64 {
	var tfc float64
	for _, f := range s.fields {
		tf := float64(s.ix.TF(ts.term, f.name, doc))
		if tf == 0 {
			continue
		}
		tfc += f.weight * tf / lengthNorm(s.b, float64(s.ix.DocLength(doc, f.name)), f.avg)
	}
	if tfc == 0 {
		return 0
	}
	return bm25IDF(s.n, float64(ts.unionDF)) * tfc * (s.k1 + 1) / (s.k1 + tfc)
}

func lengthNorm(b, dl, avg float64) float64 {
	if avg <= 0 {
		return 1
	}
	return 1 - b + b*dl/avg
}

func bm25IDF(n, df float64) float64 {
	return math.Log((n-df)/(df+0.5) + 1)
}

// tfidfIDF is log(N/(1+df)) floored at zero so scores stay monotonic in
// term frequency.
func tfidfIDF(n, df float64) float64 {
	idf := math.Log(n / (1 + df))
	if idf < 0 || math.IsNaN(idf) {
		return 0
	}
	return idf
}

// dph is the hypergeometric DFR model with Popper's normalisation. A
// document made only of the term (f = 1) has zero normalisation and scores
// 0; like tfidfIDF the score never goes negative.
func dph(tf, dl, avg, n, ttf float64) float64 {
	if dl <= 0 || ttf <= 0 {
		return 0
	}
	f := tf / dl
	if f >= 1 {
		return 0
	}
	norm := (1 - f) * (1 - f) / (tf + 1)
	score := norm * (tf*math.Log2((tf*avg/dl)*(n/ttf)) + 0.5*math.Log2(2*math.Pi*tf*(1-f)))
	if score < 0 || math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}

type candidate struct {
	doc   uint32
	score float64
}

// ordinals follow docno order, so comparing them is the docno tie-break.
func betterCandidate(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.doc < b.doc
}

// Retrieve scores every document matching at least one query term in an
// active field and returns the best limit of them (all when limit <= 0).
func (s *Scorer) Retrieve(ctx context.Context, terms []parser.Term, limit int) (Ranking, error) {
	stats := s.prepare(terms)
	matched := make(map[uint32]struct{})
	for _, ts := range stats {
		for _, f := range s.fields {
			for _, p := range s.ix.Lookup(ts.term, f.name) {
				matched[p.Doc] = struct{}{}
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cands := make([]candidate, 0, len(matched))
	for doc := range matched {
		cands = append(cands, candidate{doc: doc, score: s.scoreDoc(stats, doc)})
	}
	top := merger.TopK(cands, limit, betterCandidate)
	out := make(Ranking, len(top))
	for i, c := range top {
		out[i] = Result{Docno: s.ix.Docno(c.doc), Score: c.score}
	}
	return out, nil
}
