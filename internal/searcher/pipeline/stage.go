package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/expansion"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
)

// Kind is the type of value flowing between stages.
type Kind int

const (
	KindQuery Kind = iota
	KindRanking
)

func (k Kind) String() string {
	if k == KindRanking {
		return "ranking"
	}
	return "query"
}

// Item is what a stage consumes and produces. A Query-kind item carries no
// ranking; a Ranking-kind item carries the query it was retrieved for, which
// feedback expansion needs.
type Item struct {
	Query   query.Query
	Ranking ranker.Ranking
}

// Stage is one step of a pipeline.
type Stage interface {
	Name() string
	Input() Kind
	Output() Kind
	Run(ctx context.Context, in Item) (Item, error)
	// Describe is a canonical rendering of the stage and its resolved
	// parameters, hashed into the pipeline fingerprint.
	Describe() string
}

// Retrieve scores the query against an index.
type Retrieve struct {
	scorer   *ranker.Scorer
	analyzer tokenizer.Analyzer
	params   ranker.Params
	limit    int
}

// NewRetrieve wraps a scorer. limit <= 0 keeps every match.
func NewRetrieve(s *ranker.Scorer, p ranker.Params, limit int) (*Retrieve, error) {
	a, err := tokenizer.New(s.Index().Analyzer())
	if err != nil {
		return nil, err
	}
	return &Retrieve{scorer: s, analyzer: a, params: p, limit: limit}, nil
}

func (r *Retrieve) Name() string { return string(r.scorer.Model()) }
func (r *Retrieve) Input() Kind  { return KindQuery }
func (r *Retrieve) Output() Kind { return KindRanking }

func (r *Retrieve) Run(ctx context.Context, in Item) (Item, error) {
	ranking, err := r.scorer.Retrieve(ctx, in.Query.Analyze(r.analyzer), r.limit)
	if err != nil {
		return Item{}, err
	}
	return Item{Query: in.Query.Retrieved(), Ranking: ranking}, nil
}

func (r *Retrieve) Describe() string {
	weights := make([]string, 0, len(r.params.FieldWeights))
	for f, w := range r.params.FieldWeights {
		weights = append(weights, fmt.Sprintf("%s=%g", f, w))
	}
	sort.Strings(weights)
	return fmt.Sprintf("retrieve(model=%s,index=%s,k1=%g,b=%g,fields=[%s],limit=%d)",
		r.scorer.Model(), r.scorer.Index().Name(), r.params.K1, r.params.B, strings.Join(weights, ","), r.limit)
}

// Expand applies a query expansion model. Thesaurus expansion reads a
// query; feedback models read the ranking of a previous retrieval.
type Expand struct {
	expander expansion.Expander
	input    Kind
	params   string
}

// NewExpand wraps e. params is the canonical parameter string.
func NewExpand(e expansion.Expander, params string) *Expand {
	input := KindRanking
	if e.Name() == expansion.ThesaurusModel {
		input = KindQuery
	}
	return &Expand{expander: e, input: input, params: params}
}

func (e *Expand) Name() string { return e.expander.Name() }
func (e *Expand) Input() Kind  { return e.input }
func (e *Expand) Output() Kind { return KindQuery }

func (e *Expand) Run(ctx context.Context, in Item) (Item, error) {
	q, err := e.expander.Expand(ctx, in.Query, in.Ranking)
	if err != nil {
		return Item{}, err
	}
	return Item{Query: q}, nil
}

func (e *Expand) Describe() string {
	return fmt.Sprintf("expand(%s,%s)", e.expander.Name(), e.params)
}

// Cutoff truncates a ranking to its top k.
type Cutoff struct{ k int }

func NewCutoff(k int) *Cutoff { return &Cutoff{k: k} }

func (c *Cutoff) Name() string { return "cutoff" }
func (c *Cutoff) Input() Kind  { return KindRanking }
func (c *Cutoff) Output() Kind { return KindRanking }

func (c *Cutoff) Run(_ context.Context, in Item) (Item, error) {
	return Item{Query: in.Query, Ranking: in.Ranking.Cutoff(c.k)}, nil
}

func (c *Cutoff) Describe() string { return fmt.Sprintf("cutoff(%d)", c.k) }

// DenseRerank fuses a lexical ranking with embedding similarity.
type DenseRerank struct {
	fuser *fusion.Fuser
	desc  string
}

func NewDenseRerank(f *fusion.Fuser, desc string) *DenseRerank {
	return &DenseRerank{fuser: f, desc: desc}
}

func (d *DenseRerank) Name() string { return "dense_" + string(d.fuser.Mode()) }
func (d *DenseRerank) Input() Kind  { return KindRanking }
func (d *DenseRerank) Output() Kind { return KindRanking }

func (d *DenseRerank) Run(ctx context.Context, in Item) (Item, error) {
	r, err := d.fuser.Rerank(ctx, in.Query, in.Ranking)
	if err != nil {
		return Item{}, err
	}
	return Item{Query: in.Query, Ranking: r}, nil
}

func (d *DenseRerank) Describe() string { return "dense_rerank(" + d.desc + ")" }

// DenseRetrieve ranks the index by embedding similarity alone.
type DenseRetrieve struct {
	dense *fusion.DenseIndex
	k     int
	desc  string
}

func NewDenseRetrieve(d *fusion.DenseIndex, k int, desc string) *DenseRetrieve {
	return &DenseRetrieve{dense: d, k: k, desc: desc}
}

func (d *DenseRetrieve) Name() string { return "dense_retrieve" }
func (d *DenseRetrieve) Input() Kind  { return KindQuery }
func (d *DenseRetrieve) Output() Kind { return KindRanking }

func (d *DenseRetrieve) Run(ctx context.Context, in Item) (Item, error) {
	r, err := d.dense.Retrieve(ctx, in.Query, d.k)
	if err != nil {
		return Item{}, err
	}
	return Item{Query: in.Query.Retrieved(), Ranking: r}, nil
}

func (d *DenseRetrieve) Describe() string {
	return fmt.Sprintf("dense_retrieve(k=%d,%s)", d.k, d.desc)
}
