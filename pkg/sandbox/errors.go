package sandbox

import (
	"context"
	"errors"
	"fmt"
)

// SandboxFailure wraps a trap raised by the wazero runtime while invoking a
// compiled function — an out-of-bounds memory access, an unreachable
// instruction, or any other fault the WASM runtime itself detects. Distinct
// from a WATError, which is a static rejection before the module ever runs.
type SandboxFailure struct {
	Export string
	Err    error
}

func (e *SandboxFailure) Error() string {
	return fmt.Sprintf("sandbox: function %q trapped: %v", e.Export, e.Err)
}

func (e *SandboxFailure) Unwrap() error { return e.Err }

// OutOfFuelError is raised when a sandboxed invocation is cancelled by its
// caller-supplied context deadline before the WASM call returns — the
// runtime-level counterpart to pkg/vm's gas budget, bounding wall-clock
// execution of a compiled function rather than a bytecode instruction count.
type OutOfFuelError struct {
	Export string
}

func (e *OutOfFuelError) Error() string {
	return fmt.Sprintf("sandbox: function %q exceeded its execution deadline", e.Export)
}

// classifyInvokeError distinguishes a deadline-triggered trap (OutOfFuelError)
// from any other trap (SandboxFailure), so callers can retry or report each
// differently.
func classifyInvokeError(export string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &OutOfFuelError{Export: export}
	}
	return &SandboxFailure{Export: export, Err: err}
}
