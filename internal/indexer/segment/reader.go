package segment

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

// ReadHeader returns the header of the segment in dir without decoding the
// payload.
func ReadHeader(dir string) (Header, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Header{}, apperrors.Wrap(apperrors.ErrNotFound, err, "segment in %s", dir)
		}
		return Header{}, fmt.Errorf("opening segment: %w", err)
	}
	defer f.Close()
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Header{}, fmt.Errorf("reading segment header: %w", err)
	}
	h := decodeHeader(buf)
	if h.Magic != MagicBytes {
		return Header{}, apperrors.Newf(apperrors.ErrInternal, "invalid segment file: bad magic %x", h.Magic)
	}
	return h, nil
}

// Read loads and verifies the segment stored in dir.
func Read(dir string) (*index.Index, Header, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Header{}, apperrors.Wrap(apperrors.ErrNotFound, err, "segment %s", path)
		}
		return nil, Header{}, fmt.Errorf("reading segment: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, Header{}, apperrors.Newf(apperrors.ErrInternal, "segment %s truncated (%d bytes)", path, len(data))
	}
	h := decodeHeader(data[:HeaderSize])
	if h.Magic != MagicBytes {
		return nil, Header{}, apperrors.Newf(apperrors.ErrInternal, "invalid segment file: bad magic %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return nil, Header{}, apperrors.Newf(apperrors.ErrInternal, "segment version %d not supported", h.Version)
	}
	end := HeaderSize + int(h.PayloadLen)
	if end+FooterSize != len(data) {
		return nil, Header{}, apperrors.Newf(apperrors.ErrInternal, "segment %s: payload length %d does not match file size", path, h.PayloadLen)
	}
	payload := data[HeaderSize:end]
	sum := blake3.Sum256(payload)
	if !bytes.Equal(sum[:], data[end:]) {
		return nil, Header{}, apperrors.Newf(apperrors.ErrInternal, "segment %s: checksum mismatch", path)
	}

	var snap index.Snapshot
	if err := cbor.Unmarshal(payload, &snap); err != nil {
		return nil, Header{}, fmt.Errorf("decoding segment %s: %w", path, err)
	}
	ix, err := index.FromSnapshot(snap)
	if err != nil {
		return nil, Header{}, err
	}
	return ix, h, nil
}
