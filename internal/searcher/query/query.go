// Package query defines the query entity that flows through a pipeline and
// its expansion state. Queries are values: every transition returns a new
// Query and leaves the receiver untouched.
package query

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/parser"
)

// State tracks where a query is in the expansion lifecycle.
type State int

const (
	Initial State = iota
	FirstPassRetrieved
	Expanded
	SecondPassRetrieved
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case FirstPassRetrieved:
		return "first_pass_retrieved"
	case Expanded:
		return "expanded"
	case SecondPassRetrieved:
		return "second_pass_retrieved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Query is one topic. Text is what the pipeline received; Query0 keeps the
// original wording when Text was rewritten before the run. An expansion
// sets ExpandedText and, for feedback models, the reweighted Terms that
// retrieval then uses as they are.
type Query struct {
	QID          string        `json:"qid"`
	Text         string        `json:"query"`
	Query0       string        `json:"query_0,omitempty"`
	ExpandedText string        `json:"expanded_query,omitempty"`
	Terms        []parser.Term `json:"terms,omitempty"`
	ExpandedBy   string        `json:"expanded_by,omitempty"`
	State        State         `json:"state"`
}

// New returns a query in the Initial state.
func New(qid, text string) Query {
	return Query{QID: qid, Text: text}
}

// Rewrite returns a new Initial query carrying text, with the current
// original wording kept as query_0.
func (q Query) Rewrite(text string) Query {
	return Query{QID: q.QID, Text: text, Query0: q.Original()}
}

// Effective is the text retrieval should use.
func (q Query) Effective() string {
	if q.ExpandedText != "" {
		return q.ExpandedText
	}
	return q.Text
}

// Original is the unexpanded query text (query_0).
func (q Query) Original() string {
	if q.Query0 != "" {
		return q.Query0
	}
	return q.Text
}

// Analyze returns the weighted terms retrieval should score: the expansion
// terms when a feedback model set them, otherwise the analysed effective
// text.
func (q Query) Analyze(a tokenizer.Analyzer) []parser.Term {
	if len(q.Terms) > 0 {
		return append([]parser.Term(nil), q.Terms...)
	}
	return parser.Parse(a, q.Effective())
}

// IsExpanded reports whether an expansion has already been applied.
func (q Query) IsExpanded() bool { return q.State >= Expanded }

// Expand returns a copy whose retrieval text is text. An already expanded
// query is returned unchanged.
func (q Query) Expand(text, by string) Query {
	if q.IsExpanded() {
		return q
	}
	q.ExpandedText = text
	q.ExpandedBy = by
	q.State = Expanded
	return q
}

// Reweight returns a copy that retrieves with terms as given. An already
// expanded query is returned unchanged.
func (q Query) Reweight(terms []parser.Term, by string) Query {
	if q.IsExpanded() {
		return q
	}
	q.Terms = append([]parser.Term(nil), terms...)
	q.ExpandedText = parser.Format(terms)
	q.ExpandedBy = by
	q.State = Expanded
	return q
}

// Retrieved advances the state after a retrieval pass.
func (q Query) Retrieved() Query {
	switch q.State {
	case Initial:
		q.State = FirstPassRetrieved
	case Expanded:
		q.State = SecondPassRetrieved
	}
	return q
}
