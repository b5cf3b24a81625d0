package external

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/errors"
)

// MapThesaurus is an in-memory synonym table. Lookups are case-insensitive
// and the relation is symmetric.
type MapThesaurus struct {
	entries map[string][]string
}

// NewMapThesaurus builds a symmetric table from term -> synonyms.
func NewMapThesaurus(table map[string][]string) *MapThesaurus {
	sets := map[string]map[string]struct{}{}
	link := func(a, b string) {
		if a == b {
			return
		}
		if sets[a] == nil {
			sets[a] = map[string]struct{}{}
		}
		sets[a][b] = struct{}{}
	}
	for term, syns := range table {
		t := strings.ToLower(strings.TrimSpace(term))
		for _, s := range syns {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" || t == "" {
				continue
			}
			link(t, s)
			link(s, t)
		}
	}
	entries := make(map[string][]string, len(sets))
	for t, set := range sets {
		list := make([]string, 0, len(set))
		for s := range set {
			list = append(list, s)
		}
		sort.Strings(list)
		entries[t] = list
	}
	return &MapThesaurus{entries: entries}
}

// LoadThesaurus reads a YAML mapping of term to synonym list.
func LoadThesaurus(path string) (*MapThesaurus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, err, "thesaurus %s", path)
		}
		return nil, fmt.Errorf("reading thesaurus %s: %w", path, err)
	}
	var table map[string][]string
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing thesaurus %s: %w", path, err)
	}
	return NewMapThesaurus(table), nil
}

// Synonyms returns the sorted synonyms of term, or none.
func (t *MapThesaurus) Synonyms(_ context.Context, term string) ([]string, error) {
	return t.entries[strings.ToLower(strings.TrimSpace(term))], nil
}

// Len is the number of terms with at least one synonym.
func (t *MapThesaurus) Len() int { return len(t.entries) }
