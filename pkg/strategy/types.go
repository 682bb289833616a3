// Package strategy is the Strategy Engine (C8): sharded/streaming integer
// range scans driven by a pluggable evaluator (a small rule DSL or a
// pkg/sandbox dynamic function), maintaining a running best, a bounded
// top-K heap, and a Pareto frontier, capped to a memory budget.
package strategy

import "fmt"

// StrategyPlan configures one scan pass.
type StrategyPlan struct {
	RangeStart int64 `json:"range_start"`
	RangeEnd   int64 `json:"range_end"`
	OddOnly    bool  `json:"odd_only,omitempty"`
	Shards     int   `json:"shards,omitempty"`
	Chunk      int64 `json:"chunk,omitempty"`

	EvaluatorID     string `json:"evaluator_id"`
	CustomScoreExpr string `json:"custom_score_expr,omitempty"`

	MemoryLimitMB         int     `json:"memory_limit_mb,omitempty"`
	TopK                  int     `json:"top_k,omitempty"`
	ProgressLogInterval   int64   `json:"progress_log_interval,omitempty"`
	EarlyStopNoImprove    int64   `json:"early_stop_no_improve,omitempty"`
	StageAdvanceMinImprove float64 `json:"stage_advance_min_improve,omitempty"`
	DSLStepBudget         int     `json:"dsl_step_budget,omitempty"`

	PreferMinN bool `json:"prefer_min_n,omitempty"`
}

// defaults fills in zero-valued knobs the same way sandbox.DefaultHealingPolicy
// fills in a usable zero-value policy, so callers can construct a
// StrategyPlan with only the fields they care about.
func (p StrategyPlan) defaults() StrategyPlan {
	if p.Shards <= 0 {
		p.Shards = 1
	}
	if p.Chunk <= 0 {
		p.Chunk = 1000
	}
	if p.TopK <= 0 {
		p.TopK = 10
	}
	if p.DSLStepBudget <= 0 {
		p.DSLStepBudget = 300_000
	}
	return p
}

func (p StrategyPlan) validate() error {
	if p.RangeEnd < p.RangeStart {
		return fmt.Errorf("strategy: range_end (%d) is before range_start (%d)", p.RangeEnd, p.RangeStart)
	}
	return nil
}

// EvalOutcome is one evaluator call's result (spec.md §4.8).
type EvalOutcome struct {
	Score     float64
	Aux       float64
	Notes     string
	Terminate bool
}

// Evaluator scores one candidate n, with an optional per-scan memo for
// evaluators that want to carry running state across calls (e.g. a DSL
// accumulator). memo is shared across all shards of one scan and must be
// safe for concurrent access by implementations that write to it.
type Evaluator interface {
	Eval(n int64, memo *Memo) (EvalOutcome, error)
}

// Candidate is one scored point, used for the running best, top-K, and the
// Pareto frontier.
type Candidate struct {
	N     int64
	Score float64
	Aux   float64
}
