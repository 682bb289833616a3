package strategy

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// scorer ranks two Candidates, either by the default lexicographic rule
// (score desc, aux desc, n asc) or by a compiled custom_score_expr —
// grounded on the teacher's condition-evaluation pattern
// (pkg/engine/condition_cache.go: compile an expr-lang program once, run it
// against a small env map per call) generalized from a boolean condition to
// a float ranking key.
type scorer struct {
	program *vm.Program
}

// scoreEnv is the env a custom_score_expr is compiled and run against:
// "score" is the raw EvalOutcome.Score, "laux" is log2(aux+1) per spec.md
// §4.8's exact definition.
type scoreEnv struct {
	Score float64 `expr:"score"`
	Laux  float64 `expr:"laux"`
}

// newScorer compiles exprSrc once, if non-empty, and returns an error if it
// fails to compile against scoreEnv — fail fast at scan setup rather than on
// the first candidate.
func newScorer(exprSrc string) (*scorer, error) {
	if exprSrc == "" {
		return &scorer{}, nil
	}
	program, err := expr.Compile(exprSrc, expr.Env(scoreEnv{}))
	if err != nil {
		return nil, fmt.Errorf("strategy: compiling custom_score_expr: %w", err)
	}
	return &scorer{program: program}, nil
}

// rankingKey returns a single float64 a candidate is compared by (higher is
// better), plus the candidate's (score, aux) for lexicographic tie-breaking
// when no custom expression is configured.
func (s *scorer) rankingKey(c Candidate) (float64, error) {
	if s.program == nil {
		return c.Score, nil
	}
	laux := math.Log2(c.Aux + 1)
	out, err := expr.Run(s.program, scoreEnv{Score: c.Score, Laux: laux})
	if err != nil {
		return 0, fmt.Errorf("strategy: running custom_score_expr for n=%d: %w", c.N, err)
	}
	f, err := toFloat64(out)
	if err != nil {
		return 0, fmt.Errorf("strategy: custom_score_expr result: %w", err)
	}
	return f, nil
}

// better reports whether a should be preferred over b: by ranking key
// (desc, or asc when preferMinN flips a bool evaluator's 0/1 polarity —
// spec.md §4.8's "bool -> score 0/1 with prefer_min_n flipping ordering"),
// then (if no custom expr) aux desc, then n asc.
func (s *scorer) better(a, b Candidate, preferMinN bool) (bool, error) {
	ka, err := s.rankingKey(a)
	if err != nil {
		return false, err
	}
	kb, err := s.rankingKey(b)
	if err != nil {
		return false, err
	}
	if ka != kb {
		if preferMinN {
			return ka < kb, nil
		}
		return ka > kb, nil
	}
	if s.program == nil && a.Aux != b.Aux {
		return a.Aux > b.Aux, nil
	}
	return a.N < b.N, nil
}
