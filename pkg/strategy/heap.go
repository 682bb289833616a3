package strategy

import "container/heap"

// topKHeap keeps the K best-ranked Candidates seen so far, using the
// ranking key the scan's scorer assigns — a standard container/heap
// min-heap over ranking key so the worst-of-the-K sits at the root and is
// the one evicted when a better candidate arrives.
type topKHeap struct {
	items []rankedCandidate
	limit int
}

type rankedCandidate struct {
	Candidate
	key float64
}

func newTopKHeap(limit int) *topKHeap {
	return &topKHeap{limit: limit}
}

func (h *topKHeap) Len() int            { return len(h.items) }
func (h *topKHeap) Less(i, j int) bool  { return h.items[i].key < h.items[j].key }
func (h *topKHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topKHeap) Push(x any)          { h.items = append(h.items, x.(rankedCandidate)) }
func (h *topKHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// offer inserts c (with its precomputed ranking key) if the heap has room,
// or if c outranks the current worst member.
func (h *topKHeap) offer(c Candidate, key float64) {
	if h.limit <= 0 {
		return
	}
	if h.Len() < h.limit {
		heap.Push(h, rankedCandidate{Candidate: c, key: key})
		return
	}
	if h.Len() > 0 && key > h.items[0].key {
		heap.Pop(h)
		heap.Push(h, rankedCandidate{Candidate: c, key: key})
	}
}

// setLimit shrinks the heap to a new (smaller) limit, evicting the worst
// members first, used by the memory-budget capping pass.
func (h *topKHeap) setLimit(limit int) {
	h.limit = limit
	for h.Len() > limit {
		heap.Pop(h)
	}
}

// sorted returns every retained candidate, best first.
func (h *topKHeap) sorted() []Candidate {
	items := append([]rankedCandidate(nil), h.items...)
	result := make([]Candidate, len(items))
	for i := range items {
		best := 0
		for j := 1; j < len(items); j++ {
			if items[j].key > items[best].key {
				best = j
			}
		}
		result[i] = items[best].Candidate
		items = append(items[:best], items[best+1:]...)
	}
	return result
}
