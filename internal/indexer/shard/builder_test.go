package shard

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
)

func corpus(n int) []index.Document {
	docs := make([]index.Document, n)
	for i := range docs {
		docs[i] = index.Document{
			Docno:  fmt.Sprintf("doc-%03d", i),
			Fields: map[string]string{"text": fmt.Sprintf("common term%d shared%d", i, i%7)},
		}
	}
	return docs
}

func TestShardedBuildEqualsSingle(t *testing.T) {
	docs := corpus(200)
	plan := Plan{Name: "basic", Analyzer: tokenizer.Simple{}, Fields: []string{"text"}, MetaFields: []string{"text"}, Shards: 1}

	single, err := Build(context.Background(), plan, docs)
	require.NoError(t, err)

	plan.Shards = 4
	sharded, err := Build(context.Background(), plan, docs)
	require.NoError(t, err)

	assert.Equal(t, single.Snapshot(), sharded.Snapshot())
	assert.Equal(t, "basic", sharded.Name())
	assert.Len(t, sharded.Lookup("common", "text"), 200)
}

func TestForIsStable(t *testing.T) {
	assert.Equal(t, For("doc-1", 8), For("doc-1", 8))
	assert.Equal(t, 0, For("anything", 1))
}

func TestBuildHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, Plan{Name: "x", Analyzer: tokenizer.Simple{}, Fields: []string{"text"}, Shards: 2}, corpus(10))
	assert.ErrorIs(t, err, context.Canceled)
}
