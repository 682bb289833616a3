package strategy

// paretoFrontier maintains the set of (score, aux) points not dominated by
// any other point seen so far — c1 dominates c2 when c1.Score >= c2.Score
// and c1.Aux >= c2.Aux with at least one strict inequality.
type paretoFrontier struct {
	points []Candidate
	limit  int
}

func newParetoFrontier(limit int) *paretoFrontier {
	return &paretoFrontier{limit: limit}
}

func dominates(a, b Candidate) bool {
	return a.Score >= b.Score && a.Aux >= b.Aux && (a.Score > b.Score || a.Aux > b.Aux)
}

// offer inserts c into the frontier if nothing currently in it dominates c,
// removing any existing points c itself dominates.
func (f *paretoFrontier) offer(c Candidate) {
	if f.limit == 0 {
		return
	}
	for _, p := range f.points {
		if dominates(p, c) {
			return
		}
	}
	kept := f.points[:0]
	for _, p := range f.points {
		if !dominates(c, p) {
			kept = append(kept, p)
		}
	}
	f.points = append(kept, c)

	if f.limit > 0 && len(f.points) > f.limit {
		// Evict the weakest point (lowest score+aux) to stay within budget —
		// a deterministic, cheap proxy for frontier density rather than an
		// expensive hypervolume computation.
		worst := 0
		for i := 1; i < len(f.points); i++ {
			if f.points[i].Score+f.points[i].Aux < f.points[worst].Score+f.points[worst].Aux {
				worst = i
			}
		}
		f.points = append(f.points[:worst], f.points[worst+1:]...)
	}
}

func (f *paretoFrontier) setLimit(limit int) {
	f.limit = limit
	for limit >= 0 && len(f.points) > limit {
		worst := 0
		for i := 1; i < len(f.points); i++ {
			if f.points[i].Score+f.points[i].Aux < f.points[worst].Score+f.points[worst].Aux {
				worst = i
			}
		}
		f.points = append(f.points[:worst], f.points[worst+1:]...)
	}
}

func (f *paretoFrontier) all() []Candidate {
	return append([]Candidate(nil), f.points...)
}
