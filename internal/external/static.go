package external

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultStaticDimensions is the width of StaticEmbedder vectors.
const DefaultStaticDimensions = 256

const (
	wordWeight    = 0.7
	trigramWeight = 0.3
)

// StaticEmbedder hashes words and character trigrams into a fixed-width
// vector. It needs no model and is deterministic, so it serves tests and
// offline runs.
type StaticEmbedder struct {
	dims int
}

// NewStaticEmbedder returns an embedder of width dims (default 256).
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultStaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

func (e *StaticEmbedder) ModelName() string { return "static" }
func (e *StaticEmbedder) Dimensions() int   { return e.dims }

func (e *StaticEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *StaticEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	lower := strings.ToLower(text)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		v[e.bucket(w)] += wordWeight
	}
	var compact []rune
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			compact = append(compact, r)
		}
	}
	for i := 0; i+3 <= len(compact); i++ {
		v[e.bucket(string(compact[i:i+3]))] += trigramWeight
	}
	return Normalize(v)
}

func (e *StaticEmbedder) bucket(s string) int {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int(h.Sum64() % uint64(e.dims))
}
