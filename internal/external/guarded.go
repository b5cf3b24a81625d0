package external

import (
	"context"
	"fmt"
)

type guardedExtractor struct {
	inner KeywordExtractor
	guard *Guard
}

// GuardExtractor routes every Extract call through g.
func GuardExtractor(inner KeywordExtractor, g *Guard) KeywordExtractor {
	return &guardedExtractor{inner: inner, guard: g}
}

func (e *guardedExtractor) Name() string { return e.inner.Name() }

func (e *guardedExtractor) Extract(ctx context.Context, text string, topN int) ([]string, error) {
	var out []string
	err := e.guard.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.inner.Extract(ctx, text, topN)
		return err
	})
	return out, err
}

type guardedThesaurus struct {
	inner Thesaurus
	guard *Guard
}

// GuardThesaurus routes every Synonyms call through g.
func GuardThesaurus(inner Thesaurus, g *Guard) Thesaurus {
	return &guardedThesaurus{inner: inner, guard: g}
}

func (t *guardedThesaurus) Synonyms(ctx context.Context, term string) ([]string, error) {
	var out []string
	err := t.guard.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = t.inner.Synonyms(ctx, term)
		return err
	})
	return out, err
}

type guardedEmbedder struct {
	inner Embedder
	guard *Guard
}

// GuardEmbedder routes every Embed call through g and checks the result
// shape.
func GuardEmbedder(inner Embedder, g *Guard) Embedder {
	return &guardedEmbedder{inner: inner, guard: g}
}

func (e *guardedEmbedder) ModelName() string { return e.inner.ModelName() }
func (e *guardedEmbedder) Dimensions() int   { return e.inner.Dimensions() }

func (e *guardedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := e.guard.Call(ctx, func(ctx context.Context) error {
		vecs, err := e.inner.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embedder %s returned %d vectors for %d texts", e.inner.ModelName(), len(vecs), len(texts))
		}
		out = vecs
		return nil
	})
	return out, err
}
