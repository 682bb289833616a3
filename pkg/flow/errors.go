package flow

import "fmt"

// TranspileError is the base type for every structural failure the
// transpiler can detect. Concrete constructors below return one of these
// with a Kind discriminator rather than bare *TranspileError{} literals, so
// callers can type-switch on the Kind without string matching.
type TranspileError struct {
	Kind    string
	Message string
}

func (e *TranspileError) Error() string {
	return fmt.Sprintf("flow: %s: %s", e.Kind, e.Message)
}

func ErrBlockNotFound(id string) error {
	return &TranspileError{Kind: "block_not_found", Message: fmt.Sprintf("no block with id %q", id)}
}

func ErrDuplicateLoopID(id string) error {
	return &TranspileError{Kind: "duplicate_loop_id", Message: fmt.Sprintf("loop id %q is declared more than once", id)}
}

func ErrLoopJumpTargetNotFound(loopID, kind string) error {
	return &TranspileError{Kind: "loop_jump_target_not_found", Message: fmt.Sprintf("%s references unknown loop id %q", kind, loopID)}
}

func ErrInvalidTryCatchStructure(detail string) error {
	return &TranspileError{Kind: "invalid_try_catch_structure", Message: detail}
}
