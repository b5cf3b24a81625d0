package index

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

// Snapshot is the serialisable form of an Index. Forward vectors and
// term totals are derived on load.
type Snapshot struct {
	Name     string                            `cbor:"1,keyasint"`
	Analyzer string                            `cbor:"2,keyasint"`
	Fields   []string                          `cbor:"3,keyasint"`
	Docnos   []string                          `cbor:"4,keyasint"`
	Lengths  map[string][]uint32               `cbor:"5,keyasint"`
	Postings map[string]map[string]PostingList `cbor:"6,keyasint"`
	Meta     map[string][]string               `cbor:"7,keyasint,omitempty"`
}

// Snapshot exports ix. The result shares memory with ix and must be
// treated as read-only.
func (ix *Index) Snapshot() Snapshot {
	s := Snapshot{
		Name:     ix.name,
		Analyzer: ix.analyzer,
		Fields:   ix.fields,
		Docnos:   ix.docnos,
		Lengths:  make(map[string][]uint32, len(ix.data)),
		Postings: make(map[string]map[string]PostingList, len(ix.data)),
		Meta:     ix.meta,
	}
	for f, fd := range ix.data {
		s.Lengths[f] = fd.lengths
		s.Postings[f] = fd.postings
	}
	return s
}

// FromSnapshot rebuilds an Index, validating the posting invariants.
func FromSnapshot(s Snapshot) (*Index, error) {
	n := len(s.Docnos)
	for i := 1; i < n; i++ {
		if s.Docnos[i] <= s.Docnos[i-1] {
			return nil, apperrors.Newf(apperrors.ErrInternal, "index %s: docnos not strictly ascending at %d", s.Name, i)
		}
	}
	ix := newIndex(s.Name, s.Analyzer, s.Fields, s.Docnos)
	for _, f := range s.Fields {
		lengths := s.Lengths[f]
		if len(lengths) != n {
			return nil, apperrors.Newf(apperrors.ErrInternal, "index %s field %s: %d lengths for %d docs", s.Name, f, len(lengths), n)
		}
		fd := ix.data[f]
		fd.lengths = lengths
		for _, l := range lengths {
			fd.total += int64(l)
		}
		for term, pl := range s.Postings[f] {
			for i, p := range pl {
				if int(p.Doc) >= n || (i > 0 && p.Doc <= pl[i-1].Doc) {
					return nil, apperrors.Newf(apperrors.ErrInternal, "index %s field %s term %q: postings out of order", s.Name, f, term)
				}
			}
			fd.postings[term] = pl
		}
		fd.buildForward(n)
	}
	for m, vals := range s.Meta {
		if len(vals) != n {
			return nil, apperrors.Newf(apperrors.ErrInternal, "index %s meta %s: %d values for %d docs", s.Name, m, len(vals), n)
		}
		ix.meta[m] = vals
	}
	return ix, nil
}
