// Package parser turns query text into weighted index terms. Every word goes
// through the index's analyzer; feedback expansion hands its reweighted
// terms to retrieval directly and never round-trips them through text.
package parser

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
)

// Term is a query term and its weight.
type Term struct {
	Text   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Parse analyses text into terms of weight 1. Repeated terms accumulate
// weight; order follows first appearance.
func Parse(a tokenizer.Analyzer, text string) []Term {
	var (
		terms []Term
		pos   = map[string]int{}
	)
	for _, tok := range a.Analyze(text) {
		if i, ok := pos[tok.Term]; ok {
			terms[i].Weight++
			continue
		}
		pos[tok.Term] = len(terms)
		terms = append(terms, Term{Text: tok.Term, Weight: 1})
	}
	return terms
}

// Format renders terms for display as "term^weight", sorted by descending
// weight then term.
func Format(terms []Term) string {
	sorted := append([]Term(nil), terms...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Weight != sorted[j].Weight {
			return sorted[i].Weight > sorted[j].Weight
		}
		return sorted[i].Text < sorted[j].Text
	})
	var sb strings.Builder
	for i, t := range sorted {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.Text)
		sb.WriteByte('^')
		sb.WriteString(strconv.FormatFloat(t.Weight, 'g', 4, 64))
	}
	return sb.String()
}

// Normalise scales weights so the largest is 1.
func Normalise(terms []Term) []Term {
	maxW := 0.0
	for _, t := range terms {
		if t.Weight > maxW {
			maxW = t.Weight
		}
	}
	out := make([]Term, len(terms))
	for i, t := range terms {
		out[i] = t
		if maxW > 0 {
			out[i].Weight = t.Weight / maxW
		}
	}
	return out
}
