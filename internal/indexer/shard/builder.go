// Package shard builds an index by hashing documents across independent
// partition builders that run in parallel, then merging their postings.
package shard

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
)

// Plan describes a partitioned build.
type Plan struct {
	Name       string
	Analyzer   tokenizer.Analyzer
	Fields     []string
	MetaFields []string
	Shards     int
}

// For returns the partition a docno belongs to.
func For(docno string, shards int) int {
	if shards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(docno))
	return int(h.Sum32() % uint32(shards))
}

// Build analyses docs across p.Shards partitions and merges the result.
// With one shard it is a plain single-pass build.
func Build(ctx context.Context, p Plan, docs []index.Document) (*index.Index, error) {
	shards := p.Shards
	if shards < 1 {
		shards = 1
	}
	logger := slog.Default().With("component", "shard-builder", "index", p.Name)

	parts := make([][]index.Document, shards)
	for _, d := range docs {
		s := For(d.Docno, shards)
		parts[s] = append(parts[s], d)
	}

	built := make([]*index.Index, shards)
	g, gctx := errgroup.WithContext(ctx)
	for i := range parts {
		g.Go(func() error {
			b, err := index.NewBuilder(fmt.Sprintf("%s/shard-%d", p.Name, i), p.Analyzer, p.Fields, p.MetaFields)
			if err != nil {
				return err
			}
			for n, d := range parts[i] {
				if n%1000 == 0 && gctx.Err() != nil {
					return gctx.Err()
				}
				if err := b.Add(d); err != nil {
					return fmt.Errorf("shard %d: %w", i, err)
				}
			}
			built[i] = b.Build()
			logger.Debug("shard built", "shard_id", i, "docs", b.Len())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if shards == 1 {
		return renamed(p.Name, built[0])
	}
	merged, err := index.Merge(p.Name, built...)
	if err != nil {
		return nil, fmt.Errorf("merging %d shards: %w", shards, err)
	}
	logger.Info("shards merged", "shards", shards, "docs", merged.DocCount())
	return merged, nil
}

func renamed(name string, ix *index.Index) (*index.Index, error) {
	s := ix.Snapshot()
	s.Name = name
	return index.FromSnapshot(s)
}
