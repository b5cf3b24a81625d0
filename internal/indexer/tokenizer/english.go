package tokenizer

import (
	"fmt"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/registry"
)

// English wraps bleve's "en" analyzer: unicode segmentation, possessive
// removal, lower-casing, English stop words and Porter stemming.
type English struct {
	analyzer analysis.Analyzer
}

func newEnglish() (*English, error) {
	a, err := registry.NewCache().AnalyzerNamed(en.AnalyzerName)
	if err != nil {
		return nil, fmt.Errorf("loading bleve analyzer %q: %w", en.AnalyzerName, err)
	}
	return &English{analyzer: a}, nil
}

func (*English) Name() string { return EnglishName }

func (e *English) Analyze(text string) []Token {
	stream := e.analyzer.Analyze([]byte(text))
	tokens := make([]Token, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) == 0 {
			continue
		}
		tokens = append(tokens, Token{Term: string(tok.Term), Position: len(tokens)})
	}
	return tokens
}
