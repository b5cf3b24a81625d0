package segment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

func smallIndex(t *testing.T) *index.Index {
	t.Helper()
	b, err := index.NewBuilder("basic", tokenizer.Simple{}, []string{"text"}, []string{"text"})
	require.NoError(t, err)
	require.NoError(t, b.Add(index.Document{Docno: "p1", Fields: map[string]string{"text": "solar power panels"}}))
	require.NoError(t, b.Add(index.Document{Docno: "p2", Fields: map[string]string{"text": "wind power turbines"}}))
	return b.Build()
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	ix := smallIndex(t)
	size, err := Write(dir, ix)
	require.NoError(t, err)
	assert.Positive(t, size)

	got, h, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), h.DocCount)
	assert.Equal(t, ix.Snapshot(), got.Snapshot())

	_, err = os.Stat(filepath.Join(dir, FileName+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	_, err := Write(dir, smallIndex(t))
	require.NoError(t, err)

	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[HeaderSize+3] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, _, err = Read(dir)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}

func TestReadMissing(t *testing.T) {
	_, _, err := Read(t.TempDir())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
