package index

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
)

var benchTerms = []string{"retrieval", "ranking", "feedback", "expansion", "query", "judgment", "collection", "model"}

func benchIndex(b *testing.B, n int) *Index {
	b.Helper()
	bld, err := NewBuilder("bench", tokenizer.Simple{}, []string{"text"}, nil)
	if err != nil {
		b.Fatal(err)
	}
	for i := range n {
		text := fmt.Sprintf("document about %s and %s covering %s in test collections",
			benchTerms[i%len(benchTerms)], benchTerms[(i+1)%len(benchTerms)], benchTerms[(i+3)%len(benchTerms)])
		if err := bld.Add(Document{Docno: fmt.Sprintf("doc-%06d", i), Fields: map[string]string{"text": text}}); err != nil {
			b.Fatal(err)
		}
	}
	return bld.Build()
}

func BenchmarkBuilderAdd(b *testing.B) {
	bld, err := NewBuilder("bench", tokenizer.Simple{}, []string{"text"}, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		doc := Document{
			Docno:  fmt.Sprintf("doc-%d", i),
			Fields: map[string]string{"text": "a benchmark document with several terms for measuring indexing throughput"},
		}
		if err := bld.Add(doc); err != nil {
			b.Fatal(err)
		}
		i++
	}
}

func BenchmarkBuild(b *testing.B) {
	for _, n := range []int{100, 1000, 5000} {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_ = benchIndex(b, n)
			}
		})
	}
}

func BenchmarkLookup(b *testing.B) {
	ix := benchIndex(b, 10000)
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		_ = ix.Lookup(benchTerms[i%len(benchTerms)], "text")
		i++
	}
}

func BenchmarkLookupParallel(b *testing.B) {
	ix := benchIndex(b, 10000)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = ix.Lookup("ranking", "text")
		}
	})
}

func BenchmarkSnapshot(b *testing.B) {
	ix := benchIndex(b, 5000)
	b.ReportAllocs()
	for b.Loop() {
		_ = ix.Snapshot()
	}
}
