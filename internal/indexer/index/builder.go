package index

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

type analysedDoc struct {
	tfs     []map[string]uint32
	lengths []uint32
	meta    []string
}

// Builder accumulates documents in a single pass and produces an Index.
// A Builder is not safe for concurrent use; parallel builds use one
// Builder per partition and Merge the results.
type Builder struct {
	name       string
	analyzer   tokenizer.Analyzer
	fields     []string
	metaFields []string
	docs       map[string]*analysedDoc
}

// NewBuilder prepares a build of the given fields. metaFields are stored
// verbatim for later retrieval (e.g. passage text for dense fusion).
func NewBuilder(name string, analyzer tokenizer.Analyzer, fields, metaFields []string) (*Builder, error) {
	if len(fields) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "at least one field is required")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f == "" {
			return nil, apperrors.New(apperrors.ErrInvalidParameter, "empty field name")
		}
		if _, dup := seen[f]; dup {
			return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "field %q listed twice", f)
		}
		seen[f] = struct{}{}
	}
	return &Builder{
		name:       name,
		analyzer:   analyzer,
		fields:     append([]string(nil), fields...),
		metaFields: append([]string(nil), metaFields...),
		docs:       make(map[string]*analysedDoc),
	}, nil
}

// Add analyses doc. A field absent from doc is indexed as empty.
func (b *Builder) Add(doc Document) error {
	if doc.Docno == "" {
		return apperrors.New(apperrors.ErrMissingField, "document has no docno")
	}
	if _, dup := b.docs[doc.Docno]; dup {
		return apperrors.Newf(apperrors.ErrInvalidParameter, "duplicate docno %q", doc.Docno)
	}
	ad := &analysedDoc{
		tfs:     make([]map[string]uint32, len(b.fields)),
		lengths: make([]uint32, len(b.fields)),
		meta:    make([]string, len(b.metaFields)),
	}
	for i, f := range b.fields {
		tokens := b.analyzer.Analyze(doc.Fields[f])
		tf := make(map[string]uint32, len(tokens))
		for _, tok := range tokens {
			tf[tok.Term]++
		}
		ad.tfs[i] = tf
		ad.lengths[i] = uint32(len(tokens))
	}
	for i, f := range b.metaFields {
		if f == "docno" {
			ad.meta[i] = doc.Docno
			continue
		}
		ad.meta[i] = doc.Fields[f]
	}
	b.docs[doc.Docno] = ad
	return nil
}

// Len is the number of documents added so far.
func (b *Builder) Len() int { return len(b.docs) }

// Build assembles the Index. Postings come out sorted because documents
// are visited in docno order.
func (b *Builder) Build() *Index {
	docnos := make([]string, 0, len(b.docs))
	for d := range b.docs {
		docnos = append(docnos, d)
	}
	sort.Strings(docnos)

	ix := newIndex(b.name, b.analyzer.Name(), b.fields, docnos)
	for _, m := range b.metaFields {
		ix.meta[m] = make([]string, len(docnos))
	}
	for id, docno := range docnos {
		ad := b.docs[docno]
		for i, f := range b.fields {
			fd := ix.data[f]
			fd.lengths[id] = ad.lengths[i]
			fd.total += int64(ad.lengths[i])
			for term, tf := range ad.tfs[i] {
				fd.postings[term] = append(fd.postings[term], Posting{Doc: uint32(id), TF: tf})
			}
		}
		for i, m := range b.metaFields {
			ix.meta[m][id] = ad.meta[i]
		}
	}
	for _, fd := range ix.data {
		fd.buildForward(len(docnos))
	}
	return ix
}

func newIndex(name, analyzer string, fields, docnos []string) *Index {
	ix := &Index{
		name:     name,
		analyzer: analyzer,
		fields:   append([]string(nil), fields...),
		docnos:   docnos,
		byDocno:  make(map[string]uint32, len(docnos)),
		data:     make(map[string]*field, len(fields)),
		meta:     make(map[string][]string),
	}
	for i, d := range docnos {
		ix.byDocno[d] = uint32(i)
	}
	for _, f := range fields {
		ix.data[f] = &field{
			postings: make(map[string]PostingList),
			lengths:  make([]uint32, len(docnos)),
		}
	}
	return ix
}

// Merge combines partial indexes built over disjoint document partitions
// into one index with globally renumbered ordinals.
func Merge(name string, parts ...*Index) (*Index, error) {
	if len(parts) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParameter, "nothing to merge")
	}
	first := parts[0]
	var docnos []string
	for _, p := range parts {
		if p.analyzer != first.analyzer || !sameStrings(p.fields, first.fields) {
			return nil, apperrors.Newf(apperrors.ErrInvalidParameter,
				"partition %s has analyzer %s fields %v, want %s %v", p.name, p.analyzer, p.fields, first.analyzer, first.fields)
		}
		docnos = append(docnos, p.docnos...)
	}
	sort.Strings(docnos)
	for i := 1; i < len(docnos); i++ {
		if docnos[i] == docnos[i-1] {
			return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "docno %q appears in more than one partition", docnos[i])
		}
	}

	ix := newIndex(name, first.analyzer, first.fields, docnos)
	for m := range first.meta {
		ix.meta[m] = make([]string, len(docnos))
	}
	for _, p := range parts {
		remap := make([]uint32, len(p.docnos))
		for local, d := range p.docnos {
			remap[local] = ix.byDocno[d]
		}
		for f, src := range p.data {
			dst := ix.data[f]
			for local, l := range src.lengths {
				dst.lengths[remap[local]] = l
				dst.total += int64(l)
			}
			for term, pl := range src.postings {
				for _, posting := range pl {
					dst.postings[term] = append(dst.postings[term], Posting{Doc: remap[posting.Doc], TF: posting.TF})
				}
			}
		}
		for m, vals := range p.meta {
			if _, ok := ix.meta[m]; !ok {
				return nil, fmt.Errorf("partition %s stores meta field %q missing from %s", p.name, m, first.name)
			}
			for local, v := range vals {
				ix.meta[m][remap[local]] = v
			}
		}
	}
	for _, fd := range ix.data {
		for _, pl := range fd.postings {
			sort.Slice(pl, func(i, j int) bool { return pl[i].Doc < pl[j].Doc })
		}
		fd.buildForward(len(docnos))
	}
	return ix, nil
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
