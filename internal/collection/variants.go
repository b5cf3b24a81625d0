package collection

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

// Variant names the document layouts the experiments index.
type Variant string

const (
	// Basic indexes the text; docno and text are stored.
	Basic Variant = "basic"
	// Keywords replaces the text with its keyword and synonym terms.
	Keywords Variant = "keywords"
	// TwoFields indexes the text and, separately, a keywords field.
	TwoFields Variant = "two_fields"
)

// KeywordsField is the extra field of the two-field variant.
const KeywordsField = "keywords"

// TermExpander produces the keyword and synonym terms of a text.
type TermExpander interface {
	Terms(ctx context.Context, text string) ([]string, error)
}

// Layout is the field configuration of a variant.
type Layout struct {
	Fields     []string
	MetaFields []string
}

// ParseVariant accepts basic, keywords and two_fields.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(s)); v {
	case Basic, Keywords, TwoFields:
		return v, nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidParameter, "unknown index variant %q", s)
}

// Layout returns the indexed and stored fields of v. The keywords variant
// does not store its rewritten text, so dense stages cannot run on it.
func (v Variant) Layout() Layout {
	switch v {
	case TwoFields:
		return Layout{Fields: []string{"text", KeywordsField}, MetaFields: []string{"docno", "text"}}
	case Keywords:
		return Layout{Fields: []string{"text"}, MetaFields: []string{"docno"}}
	default:
		return Layout{Fields: []string{"text"}, MetaFields: []string{"docno", "text"}}
	}
}

// Prepare rewrites docs for v. The keyword variants call exp once per
// document with up to workers calls in flight. Inputs are not modified.
func Prepare(ctx context.Context, docs []index.Document, v Variant, exp TermExpander, workers int) ([]index.Document, error) {
	if v == Basic {
		return docs, nil
	}
	if exp == nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "variant %s needs a keyword expander", v)
	}
	out := make([]index.Document, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, d := range docs {
		g.Go(func() error {
			text := d.Fields["text"]
			terms, err := exp.Terms(gctx, text)
			if err != nil {
				return err
			}
			expansion := strings.Join(terms, " ")
			fields := make(map[string]string, len(d.Fields)+1)
			for k, val := range d.Fields {
				fields[k] = val
			}
			switch v {
			case Keywords:
				fields["text"] = expansion
			case TwoFields:
				fields[KeywordsField] = expansion
			}
			out[i] = index.Document{Docno: d.Docno, Fields: fields}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slog.Default().With("component", "collection").Info("documents prepared", "variant", v, "docs", len(out))
	return out, nil
}
