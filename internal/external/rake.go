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

// Rake is the statistical keyword extractor: candidate phrases are runs of
// words between stop words and punctuation, each word scores
// degree/frequency, and a phrase scores the sum of its words.
type Rake struct {
	stop analysis.TokenMap
}

// NewRake loads bleve's English stop list.
func NewRake() (*Rake, error) {
	tm, err := registry.NewCache().TokenMapNamed(en.StopName)
	if err != nil {
		return nil, err
	}
	return &Rake{stop: tm}, nil
}

func (*Rake) Name() string { return "rake" }

func (r *Rake) Extract(_ context.Context, text string, topN int) ([]string, error) {
	phrases := r.candidates(text)
	freq := map[string]float64{}
	degree := map[string]float64{}
	for _, p := range phrases {
		for _, w := range p {
			freq[w]++
			degree[w] += float64(len(p))
		}
	}

	type scored struct {
		phrase string
		score  float64
		first  int
	}
	seen := map[string]int{}
	var ranked []scored
	for i, p := range phrases {
		key := strings.Join(p, " ")
		if _, dup := seen[key]; dup {
			continue
		}
		var s float64
		for _, w := range p {
			s += degree[w] / freq[w]
		}
		seen[key] = i
		ranked = append(ranked, scored{phrase: key, score: s, first: i})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].first < ranked[j].first
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.phrase
	}
	return out, nil
}

func (r *Rake) candidates(text string) [][]string {
	var (
		phrases [][]string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			phrases = append(phrases, current)
			current = nil
		}
	}
	var word strings.Builder
	endWord := func(boundary bool) {
		if word.Len() > 0 {
			w := strings.ToLower(word.String())
			word.Reset()
			if r.stop[w] || len(w) < 2 {
				flush()
			} else {
				current = append(current, w)
			}
		}
		if boundary {
			flush()
		}
	}
	for _, ch := range text {
		switch {
		case unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '\'':
			word.WriteRune(ch)
		case unicode.IsSpace(ch):
			endWord(false)
		default:
			endWord(true)
		}
	}
	endWord(true)
	return phrases
}
