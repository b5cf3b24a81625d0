// Package index holds the immutable in-memory inverted index: per-field
// postings, document lengths and collection statistics, plus forward
// document vectors for pseudo-relevance feedback.
package index

import (
	"sort"
)

type field struct {
	postings map[string]PostingList
	ttf      map[string]int64
	lengths  []uint32
	total    int64
	// forward[doc] is the document's term vector, sorted by term.
	forward [][]TermFreq
}

// Index is read-only after construction and safe for concurrent use.
type Index struct {
	name     string
	analyzer string
	fields   []string
	docnos   []string
	byDocno  map[string]uint32
	data     map[string]*field
	meta     map[string][]string
}

// Name is the index identity under which it was built.
func (ix *Index) Name() string { return ix.name }

// Analyzer names the analyzer used at build time.
func (ix *Index) Analyzer() string { return ix.analyzer }

// Fields lists the indexed fields in build order.
func (ix *Index) Fields() []string { return append([]string(nil), ix.fields...) }

// HasField reports whether f is indexed.
func (ix *Index) HasField(f string) bool {
	_, ok := ix.data[f]
	return ok
}

// DocCount is the number of documents.
func (ix *Index) DocCount() int { return len(ix.docnos) }

// Docno maps an ordinal back to its docno.
func (ix *Index) Docno(doc uint32) string { return ix.docnos[doc] }

// DocID looks up the ordinal for a docno.
func (ix *Index) DocID(docno string) (uint32, bool) {
	id, ok := ix.byDocno[docno]
	return id, ok
}

// Lookup returns the postings for term in field. Unseen terms and unknown
// fields yield an empty list. The returned slice must not be modified.
func (ix *Index) Lookup(term, f string) PostingList {
	fd, ok := ix.data[f]
	if !ok {
		return nil
	}
	return fd.postings[term]
}

// TF returns the frequency of term in doc's field, using binary search
// over the postings.
func (ix *Index) TF(term, f string, doc uint32) uint32 {
	pl := ix.Lookup(term, f)
	i := sort.Search(len(pl), func(i int) bool { return pl[i].Doc >= doc })
	if i < len(pl) && pl[i].Doc == doc {
		return pl[i].TF
	}
	return 0
}

// Term returns statistics for term in field.
func (ix *Index) Term(term, f string) TermStats {
	fd, ok := ix.data[f]
	if !ok {
		return TermStats{}
	}
	return TermStats{
		DocumentFrequency:  len(fd.postings[term]),
		TotalTermFrequency: fd.ttf[term],
	}
}

// Stats returns field-level statistics.
func (ix *Index) Stats(f string) FieldStats {
	fd, ok := ix.data[f]
	if !ok {
		return FieldStats{}
	}
	st := FieldStats{
		DocCount:    len(ix.docnos),
		TotalLength: fd.total,
		UniqueTerms: len(fd.postings),
	}
	if st.DocCount > 0 {
		st.AvgLength = float64(fd.total) / float64(st.DocCount)
	}
	return st
}

// DocLength is the token count of doc's field.
func (ix *Index) DocLength(doc uint32, f string) int {
	fd, ok := ix.data[f]
	if !ok || int(doc) >= len(fd.lengths) {
		return 0
	}
	return int(fd.lengths[doc])
}

// DocVector returns doc's term vector for field, sorted by term.
func (ix *Index) DocVector(doc uint32, f string) []TermFreq {
	fd, ok := ix.data[f]
	if !ok || int(doc) >= len(fd.forward) {
		return nil
	}
	return fd.forward[doc]
}

// Meta returns a stored (unanalysed) field value for doc.
func (ix *Index) Meta(doc uint32, f string) (string, bool) {
	vals, ok := ix.meta[f]
	if !ok || int(doc) >= len(vals) {
		return "", false
	}
	return vals[doc], true
}

// MetaFields lists the stored fields.
func (ix *Index) MetaFields() []string {
	out := make([]string, 0, len(ix.meta))
	for f := range ix.meta {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Vocabulary returns the sorted terms of field.
func (ix *Index) Vocabulary(f string) []string {
	fd, ok := ix.data[f]
	if !ok {
		return nil
	}
	terms := make([]string, 0, len(fd.postings))
	for t := range fd.postings {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// buildForward derives document vectors and total term frequencies from
// the postings.
func (fd *field) buildForward(docCount int) {
	fd.forward = make([][]TermFreq, docCount)
	fd.ttf = make(map[string]int64, len(fd.postings))
	for term, pl := range fd.postings {
		var sum int64
		for _, p := range pl {
			fd.forward[p.Doc] = append(fd.forward[p.Doc], TermFreq{Term: term, TF: p.TF})
			sum += int64(p.TF)
		}
		fd.ttf[term] = sum
	}
	for _, vec := range fd.forward {
		sort.Slice(vec, func(i, j int) bool { return vec[i].Term < vec[j].Term })
	}
}
