// Package merger selects the best k items with a bounded min-heap.
package merger

import (
	"container/heap"
	"sort"
)

// TopK returns the k best items ordered best first. better must be a
// strict total order. k <= 0 keeps everything.
func TopK[T any](items []T, k int, better func(a, b T) bool) []T {
	if k <= 0 || k >= len(items) {
		out := append([]T(nil), items...)
		sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
		return out
	}
	h := &boundedHeap[T]{better: better}
	for _, it := range items {
		if h.Len() < k {
			heap.Push(h, it)
			continue
		}
		if better(it, h.items[0]) {
			h.items[0] = it
			heap.Fix(h, 0)
		}
	}
	out := make([]T, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(T)
	}
	return out
}

// boundedHeap keeps the worst retained item at the root.
type boundedHeap[T any] struct {
	items  []T
	better func(a, b T) bool
}

func (h *boundedHeap[T]) Len() int           { return len(h.items) }
func (h *boundedHeap[T]) Less(i, j int) bool { return h.better(h.items[j], h.items[i]) }
func (h *boundedHeap[T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *boundedHeap[T]) Push(x any)         { h.items = append(h.items, x.(T)) }
func (h *boundedHeap[T]) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items = h.items[:n-1]
	return it
}
