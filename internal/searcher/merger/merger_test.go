package merger

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

type scored struct {
	id    string
	score float64
}

func better(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.id < b.id
}

func TestTopKTieBreak(t *testing.T) {
	items := []scored{{"d3", 1}, {"d1", 2}, {"d2", 1}, {"d0", 1}}
	got := TopK(items, 3, better)
	assert.Equal(t, []scored{{"d1", 2}, {"d0", 1}, {"d2", 1}}, got)
}

func TestTopKMatchesFullSort(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	items := make([]scored, 500)
	for i := range items {
		items[i] = scored{id: string(rune('a'+i%26)) + string(rune('a'+i/26)), score: float64(r.IntN(20))}
	}
	full := append([]scored(nil), items...)
	sort.Slice(full, func(i, j int) bool { return better(full[i], full[j]) })

	assert.Equal(t, full[:25], TopK(items, 25, better))
	assert.Equal(t, full, TopK(items, 0, better))
}
