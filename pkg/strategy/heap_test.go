package strategy

import "testing"

func TestTopKHeap_RetainsOnlyTheBestLimitEntries(t *testing.T) {
	h := newTopKHeap(3)
	for i, key := range []float64{1, 5, 3, 9, 2, 8} {
		h.offer(Candidate{N: int64(i)}, key)
	}
	sorted := h.sorted()
	if len(sorted) != 3 {
		t.Fatalf("expected 3 retained entries, got %d", len(sorted))
	}
	keys := map[int64]bool{}
	for _, c := range sorted {
		keys[c.N] = true
	}
	// indices 1 (key 5), 3 (key 9), 5 (key 8) are the top 3 keys.
	for _, want := range []int64{1, 3, 5} {
		if !keys[want] {
			t.Fatalf("expected index %d to survive in the top-3, got %v", want, sorted)
		}
	}
}

func TestTopKHeap_SortedReturnsBestFirst(t *testing.T) {
	h := newTopKHeap(5)
	h.offer(Candidate{N: 1}, 3)
	h.offer(Candidate{N: 2}, 9)
	h.offer(Candidate{N: 3}, 1)
	sorted := h.sorted()
	if sorted[0].N != 2 {
		t.Fatalf("expected best-first ordering to start with n=2, got %+v", sorted)
	}
}

func TestTopKHeap_SetLimitShrinksToWorstEvicted(t *testing.T) {
	h := newTopKHeap(5)
	h.offer(Candidate{N: 1}, 1)
	h.offer(Candidate{N: 2}, 5)
	h.offer(Candidate{N: 3}, 9)
	h.setLimit(2)
	sorted := h.sorted()
	if len(sorted) != 2 {
		t.Fatalf("expected 2 entries after shrinking limit, got %d", len(sorted))
	}
	for _, c := range sorted {
		if c.N == 1 {
			t.Fatal("expected the worst-ranked entry (n=1) to be evicted by setLimit")
		}
	}
}

func TestTopKHeap_ZeroLimitRetainsNothing(t *testing.T) {
	h := newTopKHeap(0)
	h.offer(Candidate{N: 1}, 10)
	if len(h.sorted()) != 0 {
		t.Fatal("expected a zero-limit heap to retain nothing")
	}
}
