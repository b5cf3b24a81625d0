package fusion

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/fxamacker/cbor/v2"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/external"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/logger"
)

// DenseIndex is an HNSW graph over document embeddings keyed by the
// lexical index's document ordinals.
type DenseIndex struct {
	mu       sync.Mutex
	graph    *hnsw.Graph[uint32]
	ix       *index.Index
	embedder external.Embedder
	meta     DenseMeta
}

// DenseMeta records what a persisted graph was built from. Loading checks
// it against the index and the embedder in use.
type DenseMeta struct {
	Index     string `cbor:"1,keyasint"`
	Field     string `cbor:"2,keyasint"`
	Model     string `cbor:"3,keyasint"`
	Dims      int    `cbor:"4,keyasint"`
	Docs      int    `cbor:"5,keyasint"`
	CreatedAt int64  `cbor:"6,keyasint"`
}

// DenseFile is the artifact name of the graph over field, stored next to
// the index segment.
func DenseFile(field string) string {
	if field == "" {
		field = DefaultField
	}
	return "dense-" + field + ".hnsw"
}

// BuildDenseIndex embeds the stored field of every document in ix, in
// batches of batchSize.
func BuildDenseIndex(ctx context.Context, ix *index.Index, e external.Embedder, field string, batchSize int) (*DenseIndex, error) {
	if field == "" {
		field = DefaultField
	}
	if !hasMeta(ix, field) {
		return nil, apperrors.Newf(apperrors.ErrMissingField, "index %s does not store field %q needed for embedding", ix.Name(), field)
	}
	texts := make([]string, ix.DocCount())
	for doc := range texts {
		text, err := storedText(ix, ix.Docno(uint32(doc)), field)
		if err != nil {
			return nil, err
		}
		texts[doc] = text
	}
	vecs, err := EmbedBatched(ctx, e, texts, batchSize)
	if err != nil {
		return nil, err
	}

	g := hnsw.NewGraph[uint32]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 64
	g.Ml = 0.25
	nodes := make([]hnsw.Node[uint32], len(vecs))
	for doc, v := range vecs {
		nodes[doc] = hnsw.MakeNode(uint32(doc), external.Normalize(append([]float32(nil), v...)))
	}
	g.Add(nodes...)
	logger.WithComponent("fusion").Info("dense index built",
		"index", ix.Name(), "docs", len(nodes), "model", e.ModelName())
	meta := DenseMeta{
		Index:     ix.Name(),
		Field:     field,
		Model:     e.ModelName(),
		Dims:      e.Dimensions(),
		Docs:      len(nodes),
		CreatedAt: time.Now().Unix(),
	}
	return &DenseIndex{graph: g, ix: ix, embedder: e, meta: meta}, nil
}

// Meta describes the graph.
func (d *DenseIndex) Meta() DenseMeta { return d.meta }

// Save writes a length-prefixed CBOR DenseMeta followed by the exported
// graph.
func (d *DenseIndex) Save(w io.Writer) error {
	meta, err := cbor.Marshal(d.meta)
	if err != nil {
		return fmt.Errorf("encoding dense metadata: %w", err)
	}
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(meta)))
	if _, err := w.Write(n[:]); err != nil {
		return err
	}
	if _, err := w.Write(meta); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.graph.Export(w); err != nil {
		return fmt.Errorf("exporting dense graph: %w", err)
	}
	return nil
}

// LoadDenseIndex reads a graph written by Save for field of ix. The graph
// must have been built from ix with the same embedding model.
func LoadDenseIndex(r io.Reader, ix *index.Index, e external.Embedder, field string) (*DenseIndex, error) {
	if field == "" {
		field = DefaultField
	}
	br := bufio.NewReader(r)
	var n [4]byte
	if _, err := io.ReadFull(br, n[:]); err != nil {
		return nil, fmt.Errorf("reading dense metadata: %w", err)
	}
	raw := make([]byte, binary.BigEndian.Uint32(n[:]))
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("reading dense metadata: %w", err)
	}
	var meta DenseMeta
	if err := cbor.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decoding dense metadata: %w", err)
	}
	switch {
	case meta.Index != ix.Name() || meta.Field != field:
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter,
			"dense graph covers %s/%s, want %s/%s", meta.Index, meta.Field, ix.Name(), field)
	case meta.Model != e.ModelName() || meta.Dims != e.Dimensions():
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter,
			"dense graph of %s was embedded with %s (%d dims), not %s (%d dims)",
			ix.Name(), meta.Model, meta.Dims, e.ModelName(), e.Dimensions())
	case meta.Docs != ix.DocCount():
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter,
			"dense graph of %s holds %d documents but the index has %d; rebuild it", ix.Name(), meta.Docs, ix.DocCount())
	}

	g := hnsw.NewGraph[uint32]()
	g.Distance = hnsw.CosineDistance
	if err := g.Import(br); err != nil {
		return nil, fmt.Errorf("importing dense graph: %w", err)
	}
	return &DenseIndex{graph: g, ix: ix, embedder: e, meta: meta}, nil
}

// Len is the number of embedded documents.
func (d *DenseIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.graph.Len()
}

// Retrieve embeds the original query text and returns its k nearest
// documents scored by cosine similarity.
func (d *DenseIndex) Retrieve(ctx context.Context, q query.Query, k int) (ranker.Ranking, error) {
	if k <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "dense retrieval k must be positive, got %d", k)
	}
	vecs, err := d.embedder.Embed(ctx, []string{q.Original()})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, apperrors.Newf(apperrors.ErrExternalDependency, "embedder %s returned %d vectors for 1 text", d.embedder.ModelName(), len(vecs))
	}
	qv := external.Normalize(append([]float32(nil), vecs[0]...))

	d.mu.Lock()
	var nodes []hnsw.Node[uint32]
	if d.graph.Len() > 0 {
		nodes = d.graph.Search(qv, k)
	}
	d.mu.Unlock()

	out := make(ranker.Ranking, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, ranker.Result{Docno: d.ix.Docno(n.Key), Score: external.Cosine(qv, n.Value)})
	}
	ranker.Sort(out)
	return out, nil
}
