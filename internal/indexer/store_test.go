package indexer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/metrics"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default().Index
	cfg.DataDir = t.TempDir()
	cfg.Analyzer = "simple"
	s, err := NewStore(cfg, metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)
	return s
}

var docs = []index.Document{
	{Docno: "a", Fields: map[string]string{"text": "ocean tides"}},
	{Docno: "b", Fields: map[string]string{"text": "mountain streams"}},
}

func TestBuildThenOpenFromDisk(t *testing.T) {
	s := newStore(t)
	_, err := s.Build(context.Background(), "basic", docs, BuildOptions{})
	require.NoError(t, err)

	fresh, err := NewStore(s.cfg, nil)
	require.NoError(t, err)
	ix, err := fresh.Open("basic")
	require.NoError(t, err)
	assert.Equal(t, 2, ix.DocCount())
	assert.Len(t, ix.Lookup("ocean", "text"), 1)

	infos, err := fresh.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "basic", infos[0].Name)
	assert.Equal(t, 2, infos[0].Docs)
}

func TestBuildOverExistingFailsAndKeepsOriginal(t *testing.T) {
	s := newStore(t)
	_, err := s.Build(context.Background(), "basic", docs, BuildOptions{})
	require.NoError(t, err)

	other := []index.Document{{Docno: "z", Fields: map[string]string{"text": "desert"}}}
	_, err = s.Build(context.Background(), "basic", other, BuildOptions{})
	require.True(t, errors.Is(err, apperrors.ErrDuplicateIndex), "got %v", err)

	fresh, err := NewStore(s.cfg, nil)
	require.NoError(t, err)
	ix, err := fresh.Open("basic")
	require.NoError(t, err)
	assert.Equal(t, 2, ix.DocCount())
	assert.Empty(t, ix.Lookup("desert", "text"))
}

func TestOpenMissingAndDrop(t *testing.T) {
	s := newStore(t)
	_, err := s.Open("nope")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = s.Build(context.Background(), "tmp", docs, BuildOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Drop("tmp"))
	assert.False(t, s.Exists("tmp"))
	_, err = s.Build(context.Background(), "tmp", docs, BuildOptions{})
	assert.NoError(t, err)
}

func TestInvalidName(t *testing.T) {
	s := newStore(t)
	_, err := s.Build(context.Background(), "../escape", docs, BuildOptions{})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter))
}

func TestArtifactsNeverOverwrite(t *testing.T) {
	s := newStore(t)
	write := func(body string) func(io.Writer) error {
		return func(w io.Writer) error {
			_, err := io.WriteString(w, body)
			return err
		}
	}

	err := s.WriteArtifact("basic", "dense-text.hnsw", write("graph"))
	require.True(t, errors.Is(err, apperrors.ErrNotFound), "got %v", err)

	_, err = s.Build(context.Background(), "basic", docs, BuildOptions{})
	require.NoError(t, err)
	_, err = s.OpenArtifact("basic", "dense-text.hnsw")
	require.True(t, errors.Is(err, apperrors.ErrNotFound), "got %v", err)

	require.NoError(t, s.WriteArtifact("basic", "dense-text.hnsw", write("graph")))
	assert.True(t, s.HasArtifact("basic", "dense-text.hnsw"))

	err = s.WriteArtifact("basic", "dense-text.hnsw", write("other"))
	require.True(t, errors.Is(err, apperrors.ErrDuplicateIndex), "got %v", err)

	rc, err := s.OpenArtifact("basic", "dense-text.hnsw")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "graph", string(body))

	err = s.WriteArtifact("basic", "index.rxpi", write("x"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidParameter), "got %v", err)

	infos, err := s.List()
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}
