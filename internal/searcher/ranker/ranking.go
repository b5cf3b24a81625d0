package ranker

import (
	"sort"
)

// Result is one ranked document.
type Result struct {
	Docno string  `json:"docno" cbor:"1,keyasint"`
	Score float64 `json:"score" cbor:"2,keyasint"`
}

// Ranking is ordered by descending score, ties by ascending docno.
type Ranking []Result

// Better is the ranking order: higher score first, then lower docno.
func Better(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Docno < b.Docno
}

// Sort orders r in place.
func Sort(r Ranking) {
	sort.Slice(r, func(i, j int) bool { return Better(r[i], r[j]) })
}

// IsSorted reports whether r respects the ranking order with unique
// docnos.
func IsSorted(r Ranking) bool {
	for i := 1; i < len(r); i++ {
		if !Better(r[i-1], r[i]) {
			return false
		}
	}
	return true
}

// Cutoff returns the first k results; k <= 0 keeps all.
func (r Ranking) Cutoff(k int) Ranking {
	if k <= 0 || k >= len(r) {
		return r
	}
	return r[:k]
}

// Docnos lists the docnos in rank order.
func (r Ranking) Docnos() []string {
	out := make([]string, len(r))
	for i, res := range r {
		out[i] = res.Docno
	}
	return out
}
