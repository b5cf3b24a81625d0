package index

// Document is one unit of the collection: a unique docno and named text
// fields.
type Document struct {
	Docno  string            `json:"docno"`
	Fields map[string]string `json:"fields"`
}

// Posting records a term's occurrences in one document of one field. Doc
// is the document's ordinal; ordinals follow ascending docno order.
type Posting struct {
	Doc uint32 `cbor:"1,keyasint"`
	TF  uint32 `cbor:"2,keyasint"`
}

// PostingList is sorted by Doc with no repeats.
type PostingList []Posting

// TermStats are a term's collection statistics within one field.
type TermStats struct {
	DocumentFrequency  int
	TotalTermFrequency int64
}

// FieldStats are collection statistics for one field.
type FieldStats struct {
	DocCount    int
	AvgLength   float64
	TotalLength int64
	UniqueTerms int
}

// TermFreq is one entry of a document vector.
type TermFreq struct {
	Term string
	TF   uint32
}
