package external

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/registry"
)

// EmbeddingExtractor ranks the text's distinct words by the cosine
// similarity of their embedding to the embedding of the whole text.
type EmbeddingExtractor struct {
	embedder Embedder
	stop     analysis.TokenMap
}

// NewEmbeddingExtractor uses e for both the text and its candidate words.
func NewEmbeddingExtractor(e Embedder) (*EmbeddingExtractor, error) {
	tm, err := registry.NewCache().TokenMapNamed(en.StopName)
	if err != nil {
		return nil, err
	}
	return &EmbeddingExtractor{embedder: e, stop: tm}, nil
}

func (*EmbeddingExtractor) Name() string { return "embedding" }

func (x *EmbeddingExtractor) Extract(ctx context.Context, text string, topN int) ([]string, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := map[string]struct{}{}
	var cands []string
	for _, w := range words {
		if len(w) < 2 || x.stop[w] {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		cands = append(cands, w)
	}
	if len(cands) == 0 {
		return nil, nil
	}
	vecs, err := x.embedder.Embed(ctx, append([]string{text}, cands...))
	if err != nil {
		return nil, err
	}
	type scored struct {
		word string
		sim  float64
	}
	ranked := make([]scored, len(cands))
	for i, w := range cands {
		ranked[i] = scored{word: w, sim: Cosine(vecs[0], vecs[i+1])}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		return ranked[i].word < ranked[j].word
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.word
	}
	return out, nil
}
