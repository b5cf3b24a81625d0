package ranker

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/parser"
)

var benchVocab = []string{"retrieval", "ranking", "feedback", "expansion", "query", "judgment", "collection", "model"}

func benchCorpus(b *testing.B, n int) *index.Index {
	b.Helper()
	bld, err := index.NewBuilder("bench", tokenizer.Simple{}, []string{"text", "keywords"}, nil)
	if err != nil {
		b.Fatal(err)
	}
	for i := range n {
		doc := index.Document{
			Docno: fmt.Sprintf("doc-%06d", i),
			Fields: map[string]string{
				"text": fmt.Sprintf("this document covers %s %s %s in evaluation campaigns",
					benchVocab[i%len(benchVocab)], benchVocab[(i+2)%len(benchVocab)], benchVocab[(i+3)%len(benchVocab)]),
				"keywords": benchVocab[(i+5)%len(benchVocab)],
			},
		}
		if err := bld.Add(doc); err != nil {
			b.Fatal(err)
		}
	}
	return bld.Build()
}

func BenchmarkRetrieve(b *testing.B) {
	terms := parser.Parse(tokenizer.Simple{}, "ranking feedback model")
	for _, n := range []int{100, 1000, 10000} {
		ix := benchCorpus(b, n)
		for _, model := range []Model{TFIDF, BM25, BM25F, DPH} {
			p := DefaultParams()
			if model == BM25F {
				p.FieldWeights = map[string]float64{"text": 1, "keywords": 2}
			}
			s, err := New(ix, model, p)
			if err != nil {
				b.Fatal(err)
			}
			b.Run(fmt.Sprintf("%s/docs_%d", model, n), func(b *testing.B) {
				b.ReportAllocs()
				for b.Loop() {
					if _, err := s.Retrieve(context.Background(), terms, 1000); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
