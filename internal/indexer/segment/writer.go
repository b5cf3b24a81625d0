// Package segment persists an index snapshot as a single checksummed file:
// a fixed header, a deterministic CBOR payload and a BLAKE3 footer.
package segment

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x52585049 // "RXPI"
	FormatVersion uint32 = 1
	HeaderSize           = 32
	FooterSize           = 32
	FileName             = "index.rxpi"
)

// Header is the fixed-size prefix of a segment file.
type Header struct {
	Magic      uint32
	Version    uint32
	DocCount   uint32
	FieldCount uint32
	CreatedAt  int64
	PayloadLen uint64
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.DocCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.FieldCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[24:32], h.PayloadLen)
	return buf
}

func decodeHeader(buf []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		DocCount:   binary.LittleEndian.Uint32(buf[8:12]),
		FieldCount: binary.LittleEndian.Uint32(buf[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(buf[16:24])),
		PayloadLen: binary.LittleEndian.Uint64(buf[24:32]),
	}
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("segment: CBOR encoder initialization failed: " + err.Error())
	}
}

// Write stores ix in dir/FileName. The file is written to a temporary
// name, synced, then renamed into place.
func Write(dir string, ix *index.Index) (int64, error) {
	payload, err := encMode.Marshal(ix.Snapshot())
	if err != nil {
		return 0, fmt.Errorf("encoding index %s: %w", ix.Name(), err)
	}
	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		DocCount:   uint32(ix.DocCount()),
		FieldCount: uint32(len(ix.Fields())),
		CreatedAt:  time.Now().Unix(),
		PayloadLen: uint64(len(payload)),
	}
	sum := blake3.Sum256(payload)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating segment directory: %w", err)
	}
	finalPath := filepath.Join(dir, FileName)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp segment file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	for _, part := range [][]byte{header.encode(), payload, sum[:]} {
		if _, err := f.Write(part); err != nil {
			return 0, fmt.Errorf("writing segment %s: %w", tmpPath, err)
		}
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return 0, fmt.Errorf("renaming segment file: %w", err)
	}
	return int64(HeaderSize + len(payload) + FooterSize), nil
}
