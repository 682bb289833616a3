package planner

import "fmt"

// ConvergenceError is returned when the generate→repair loop exhausts both
// attempt budgets without producing a validating plan (spec.md §8 property
// 7: "the loop cannot run forever").
type ConvergenceError struct {
	PlanAttempts   int
	RepairAttempts int
	LastErr        error
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("planner: did not converge within %d plan attempt(s) and %d repair attempt(s): %v",
		e.PlanAttempts, e.RepairAttempts, e.LastErr)
}

func (e *ConvergenceError) Unwrap() error { return e.LastErr }

// NullResultError is returned when a preprocessed function keeps returning a
// null/out-of-envelope result past MaxNullRetries (spec.md §4.7's
// regeneration-vs-healing policy).
type NullResultError struct {
	Function string
	Attempts int
}

func (e *NullResultError) Error() string {
	return fmt.Sprintf("planner: function %q returned null/out-of-envelope results after %d attempts", e.Function, e.Attempts)
}
