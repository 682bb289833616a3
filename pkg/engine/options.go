package engine

import "time"

// SessionOptions configures a Session's dispatch behavior, generalized from
// pkg/engine/options.go's ExecutionOptions to the single-cursor Contract
// model: no per-wave concurrency knob, but ParallelExec branches still need
// a fan-out cap and a timeout.
type SessionOptions struct {
	// GasLimit bounds every Evaluate's bytecode execution.
	GasLimit uint64

	// MaxSteps bounds the number of block dispatches in one Run/Resume call,
	// guarding against a Contract with an unreachable Terminate.
	MaxSteps int

	// MaxParallelism limits how many ParallelExec branches run concurrently.
	MaxParallelism int

	// ParallelTimeout is used when a ParallelExec block sets no TimeoutSecs.
	ParallelTimeout time.Duration

	// BranchRetryPolicy wraps each branch's execution, retrying transient
	// branch failures before the branch is reported to the merge strategy.
	// Nil disables retries (first failure is final).
	BranchRetryPolicy *BranchRetryPolicy

	// MaxOutputSize mirrors ExecutionOptions.MaxOutputSize (0 = unlimited).
	// Session dispatch does not read it: Evaluate/Assign values are not
	// size-checked.
	MaxOutputSize int64
}

// DefaultSessionOptions returns sensible defaults for interactive use.
func DefaultSessionOptions() *SessionOptions {
	return &SessionOptions{
		GasLimit:        100_000,
		MaxSteps:        10_000,
		MaxParallelism:  8,
		ParallelTimeout: 30 * time.Second,
	}
}
