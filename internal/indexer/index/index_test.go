package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

func sampleDocs() []Document {
	return []Document{
		{Docno: "d3", Fields: map[string]string{"text": "apple banana apple", "keywords": "fruit"}},
		{Docno: "d1", Fields: map[string]string{"text": "banana cherry", "keywords": "fruit tree"}},
		{Docno: "d2", Fields: map[string]string{"text": "cherry durian eggplant fig", "keywords": ""}},
	}
}

func build(t *testing.T, docs []Document) *Index {
	t.Helper()
	b, err := NewBuilder("test", tokenizer.Simple{}, []string{"text", "keywords"}, []string{"text"})
	require.NoError(t, err)
	for _, d := range docs {
		require.NoError(t, b.Add(d))
	}
	return b.Build()
}

func TestBuildPostingsSortedByDocno(t *testing.T) {
	ix := build(t, sampleDocs())
	require.Equal(t, 3, ix.DocCount())

	pl := ix.Lookup("banana", "text")
	require.Len(t, pl, 2)
	assert.Equal(t, "d1", ix.Docno(pl[0].Doc))
	assert.Equal(t, "d3", ix.Docno(pl[1].Doc))

	d3, _ := ix.DocID("d3")
	assert.Equal(t, uint32(2), ix.TF("apple", "text", d3))
	assert.Equal(t, 3, ix.DocLength(d3, "text"))
}

func TestLookupUnseenTermIsEmpty(t *testing.T) {
	ix := build(t, sampleDocs())
	assert.Empty(t, ix.Lookup("zebra", "text"))
	assert.Empty(t, ix.Lookup("apple", "nofield"))
	assert.Equal(t, TermStats{}, ix.Term("zebra", "text"))
}

func TestFieldsAreIsolated(t *testing.T) {
	ix := build(t, sampleDocs())
	assert.Empty(t, ix.Lookup("fruit", "text"))
	assert.Len(t, ix.Lookup("fruit", "keywords"), 2)

	st := ix.Stats("text")
	assert.Equal(t, 3, st.DocCount)
	assert.InDelta(t, 9.0/3.0, st.AvgLength, 1e-9)
	assert.InDelta(t, 3.0/3.0, ix.Stats("keywords").AvgLength, 1e-9)
}

func TestNoOrphanPostingsAndDFBound(t *testing.T) {
	docs := sampleDocs()
	ix := build(t, docs)
	known := map[string]bool{}
	for _, d := range docs {
		known[d.Docno] = true
	}
	for _, f := range ix.Fields() {
		dfSum, uniqueSum := 0, 0
		for _, term := range ix.Vocabulary(f) {
			pl := ix.Lookup(term, f)
			dfSum += ix.Term(term, f).DocumentFrequency
			for i, p := range pl {
				assert.True(t, known[ix.Docno(p.Doc)])
				if i > 0 {
					assert.Less(t, pl[i-1].Doc, p.Doc)
				}
			}
		}
		for doc := 0; doc < ix.DocCount(); doc++ {
			uniqueSum += len(ix.DocVector(uint32(doc), f))
		}
		assert.LessOrEqual(t, dfSum, uniqueSum)
	}
}

func TestDuplicateDocnoRejected(t *testing.T) {
	b, err := NewBuilder("dup", tokenizer.Simple{}, []string{"text"}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Add(Document{Docno: "x", Fields: map[string]string{"text": "one"}}))
	err = b.Add(Document{Docno: "x", Fields: map[string]string{"text": "two"}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))
}

func TestMergeMatchesSingleBuild(t *testing.T) {
	docs := sampleDocs()
	whole := build(t, docs)

	left := build(t, docs[:1])
	right := build(t, docs[1:])
	merged, err := Merge("test", left, right)
	require.NoError(t, err)

	assert.Equal(t, whole.Snapshot(), merged.Snapshot())
}

func TestSnapshotRestore(t *testing.T) {
	ix := build(t, sampleDocs())
	restored, err := FromSnapshot(ix.Snapshot())
	require.NoError(t, err)
	d1, _ := restored.DocID("d1")
	assert.Equal(t, ix.DocVector(d1, "keywords"), restored.DocVector(d1, "keywords"))
	text, ok := restored.Meta(d1, "text")
	assert.True(t, ok)
	assert.Equal(t, "banana cherry", text)
	assert.Equal(t, ix.Term("cherry", "text"), restored.Term("cherry", "text"))
}
