// Package collection loads the benchmark documents, queries and relevance
// judgments from JSON and prepares the document variants each index is
// built from.
package collection

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

// Source column names and the names they are renamed to.
var (
	documentColumns = map[string]string{"para_id": "docno", "context": "text"}
	queryColumns    = map[string]string{"query_id": "qid", "question": "query"}
	qrelColumns     = map[string]string{"query_id": "qid", "para_id": "docno"}
)

// Qrels maps qid to docno to graded relevance.
type Qrels map[string]map[string]int

// Judged reports whether qid has at least one judgment.
func (q Qrels) Judged(qid string) bool { return len(q[qid]) > 0 }

// Len is the number of judgments.
func (q Qrels) Len() int {
	n := 0
	for _, docs := range q {
		n += len(docs)
	}
	return n
}

// LoadDocuments reads documents with docno and text. Docnos must be unique.
func LoadDocuments(path string) ([]index.Document, error) {
	rows, err := readTable(path, documentColumns)
	if err != nil {
		return nil, err
	}
	docs := make([]index.Document, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for i, r := range rows {
		docno, text := r["docno"], r["text"]
		if docno == "" {
			return nil, apperrors.Newf(apperrors.ErrMissingField, "%s: document %d has no docno", path, i)
		}
		if _, dup := seen[docno]; dup {
			return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "%s: duplicate docno %q", path, docno)
		}
		seen[docno] = struct{}{}
		docs = append(docs, index.Document{Docno: docno, Fields: map[string]string{"text": text}})
	}
	return docs, nil
}

// LoadQueries reads queries with qid and query text, in file order.
func LoadQueries(path string) ([]query.Query, error) {
	rows, err := readTable(path, queryColumns)
	if err != nil {
		return nil, err
	}
	qs := make([]query.Query, 0, len(rows))
	for i, r := range rows {
		if r["qid"] == "" {
			return nil, apperrors.Newf(apperrors.ErrMissingField, "%s: query %d has no qid", path, i)
		}
		qs = append(qs, query.New(r["qid"], r["query"]))
	}
	return qs, nil
}

// LoadQrels reads judgments. A missing relevance column means relevance 1.
func LoadQrels(path string) (Qrels, error) {
	rows, err := readTable(path, qrelColumns)
	if err != nil {
		return nil, err
	}
	qrels := make(Qrels)
	for i, r := range rows {
		qid, docno := r["qid"], r["docno"]
		if qid == "" || docno == "" {
			return nil, apperrors.Newf(apperrors.ErrMissingField, "%s: judgment %d lacks qid or docno", path, i)
		}
		rel := 1
		if s, ok := r["relevance"]; ok && s != "" {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "%s: judgment %d has relevance %q", path, i, s)
			}
			rel = int(f)
		}
		if qrels[qid] == nil {
			qrels[qid] = make(map[string]int)
		}
		qrels[qid][docno] = rel
	}
	return qrels, nil
}

// Sample draws n queries without replacement, deterministically for a seed.
// n >= len(qs) returns every query in a seeded order.
func Sample(qs []query.Query, n int, seed int64) []query.Query {
	out := append([]query.Query(nil), qs...)
	n = min(max(n, 0), len(out))
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:n]
}

// QuerySetID identifies a query set by its qids and texts, independent of
// order.
func QuerySetID(qs []query.Query) string {
	keys := make([]string, len(qs))
	for i, q := range qs {
		keys[i] = q.QID + "\x00" + q.Text
	}
	sort.Strings(keys)
	h := blake3.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}

// readTable decodes a JSON table written either as a list of records or
// column-oriented (column -> list, or column -> {row -> value}), renames
// columns and stringifies every value.
func readTable(path string, rename map[string]string) ([]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, err, "file does not exist: %s", path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidParameter, err, "parsing %s", path)
	}

	var rows []map[string]string
	switch t := raw.(type) {
	case []any:
		for i, rec := range t {
			obj, ok := rec.(map[string]any)
			if !ok {
				return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "%s: row %d is not an object", path, i)
			}
			row := make(map[string]string, len(obj))
			for k, v := range obj {
				row[column(k, rename)] = stringify(v)
			}
			rows = append(rows, row)
		}
	case map[string]any:
		rows, err = fromColumns(t, rename)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "%s: expected a list or an object of columns", path)
	}
	return rows, nil
}

func fromColumns(cols map[string]any, rename map[string]string) ([]map[string]string, error) {
	var (
		rows  []map[string]string
		pos   = map[string]int{}
		order []string
	)
	row := func(key string) map[string]string {
		i, ok := pos[key]
		if !ok {
			i = len(rows)
			pos[key] = i
			order = append(order, key)
			rows = append(rows, map[string]string{})
		}
		return rows[i]
	}
	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		col := column(name, rename)
		switch vals := cols[name].(type) {
		case []any:
			for i, v := range vals {
				row(strconv.Itoa(i))[col] = stringify(v)
			}
		case map[string]any:
			keys := make([]string, 0, len(vals))
			for k := range vals {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool { return rowLess(keys[i], keys[j]) })
			for _, k := range keys {
				row(k)[col] = stringify(vals[k])
			}
		default:
			return nil, apperrors.Newf(apperrors.ErrInvalidParameter, "column %q is neither a list nor an object", name)
		}
	}
	// Rows were created in first-seen order per column; sort by row key so
	// the result follows the source's row order.
	perm := make([]int, len(order))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool { return rowLess(order[perm[a]], order[perm[b]]) })
	out := make([]map[string]string, len(perm))
	for i, p := range perm {
		out[i] = rows[p]
	}
	return out, nil
}

// rowLess orders numeric row keys numerically, others lexically.
func rowLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

func column(name string, rename map[string]string) string {
	if to, ok := rename[name]; ok {
		return to
	}
	return name
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
