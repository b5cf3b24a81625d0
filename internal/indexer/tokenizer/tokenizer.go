// Package tokenizer turns text into normalised term sequences. The same
// Analyzer must be used to build an index and to query it, so indexes
// record the analyzer name.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

// Token is a normalised term and its position among the kept tokens.
type Token struct {
	Term     string
	Position int
}

// Analyzer tokenizes and normalises text.
type Analyzer interface {
	Name() string
	Analyze(text string) []Token
}

const (
	SimpleName  = "simple"
	EnglishName = "english"
)

// New returns the analyzer registered under name.
func New(name string) (Analyzer, error) {
	switch name {
	case "", SimpleName:
		return Simple{}, nil
	case EnglishName:
		return newEnglish()
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "unknown analyzer %q", name)
	}
}

// Terms returns just the terms of a's tokens, in order.
func Terms(a Analyzer, text string) []string {
	tokens := a.Analyze(text)
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Term
	}
	return out
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {}, "how": {},
	"does": {}, "did": {}, "i": {}, "we": {}, "you": {},
}

// IsStopWord reports whether the lower-cased word is in the simple
// analyzer's stop list.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// Simple lower-cases, splits on non-alphanumerics, drops stop words and
// one-character tokens, and strips common suffixes.
type Simple struct{}

func (Simple) Name() string { return SimpleName }

func (Simple) Analyze(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	for _, word := range words {
		if len(word) < 2 || IsStopWord(word) {
			continue
		}
		if term := stem(word); term != "" {
			tokens = append(tokens, Token{Term: term, Position: len(tokens)})
		}
	}
	return tokens
}

type suffixRule struct {
	suffix      string
	replacement string
	minLen      int
}

var suffixRules = []suffixRule{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"ed", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			if stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement; len(stemmed) >= rule.minLen {
				return stemmed
			}
		}
	}
	return word
}

func (t Token) String() string {
	return fmt.Sprintf("%s@%d", t.Term, t.Position)
}
