package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/thinksystem/pddfr/pkg/flow"
	"github.com/thinksystem/pddfr/pkg/sandbox"
	"github.com/thinksystem/pddfr/pkg/vm"
)

// Outcome is what Run/Resume returns: either the session suspended waiting
// for external input, or it reached Terminate (or failed).
type Outcome struct {
	Status        string // "completed" | "awaiting_input" | "failed"
	ResultKey     string
	Result        any
	InteractionID string
	AgentID       string
	Prompt        any
	Err           error
}

// Session walks a flow.Contract one block at a time against an
// ExecutionContext, generalizing pkg/engine/dag_executor.go's DAGExecutor
// from wave-parallel DAG traversal to single-cursor Contract dispatch.
type Session struct {
	Contract *flow.Contract
	Context  *ExecutionContext
	Options  *SessionOptions
	Notifier ExecutionNotifier
	Interp   *vm.Interpreter

	cursor    string
	suspended bool
}

// NewSession constructs a Session ready to Run from the contract's start
// block. ffi may be nil to use the interpreter's built-in function set only.
func NewSession(contract *flow.Contract, ctx *ExecutionContext, opts *SessionOptions, notifier ExecutionNotifier, ffi *vm.FfiRegistry) *Session {
	if opts == nil {
		opts = DefaultSessionOptions()
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Session{
		Contract: contract,
		Context:  ctx,
		Options:  opts,
		Notifier: notifier,
		Interp:   vm.NewInterpreter(ffi),
	}
}

// Run starts dispatch from startBlockID. Callers invoke this once per
// session; subsequent suspend/resume cycles go through Resume.
func (s *Session) Run(startBlockID string) *Outcome {
	s.cursor = startBlockID
	return s.drive()
}

// Resume sets the pending input a suspended Await block is waiting on and
// re-enters the dispatch loop from the suspension point.
func (s *Session) Resume(input any) *Outcome {
	if !s.suspended {
		return &Outcome{Status: "failed", Err: fmt.Errorf("engine: session %s is not awaiting input", s.Context.SessionID)}
	}
	s.Context.setPendingInput(input)
	s.suspended = false
	safeNotify(s.Notifier, ExecutionEvent{Type: EventResumed, SessionID: s.Context.SessionID, FlowID: s.Context.FlowID, Timestamp: nowFn()})
	return s.drive()
}

// drive is the core inspect -> dispatch -> update -> repeat loop (spec
// §4.6's "loop: inspect current block id -> dispatch -> update context ->
// set next block -> repeat until terminal or AwaitingInput").
func (s *Session) drive() *Outcome {
	for steps := 0; steps < s.Options.MaxSteps; steps++ {
		node, ok := s.Contract.Nodes[s.cursor]
		if !ok {
			return s.fail(flow.ErrBlockNotFound(s.cursor))
		}

		start := time.Now()
		safeNotify(s.Notifier, ExecutionEvent{Type: EventBlockStarted, SessionID: s.Context.SessionID, FlowID: s.Context.FlowID, BlockID: s.cursor, Timestamp: start})
		s.Context.setBlockStatus(s.cursor, BlockRunning)

		res, err := s.execControl(node)
		if err != nil {
			s.Context.setBlockStatus(s.cursor, BlockFailed)
			s.Context.setBlockError(s.cursor, err)
			safeNotify(s.Notifier, ExecutionEvent{Type: EventBlockFailed, SessionID: s.Context.SessionID, FlowID: s.Context.FlowID, BlockID: s.cursor, Error: err, Timestamp: time.Now()})

			if isTerminalError(err) {
				safeNotify(s.Notifier, ExecutionEvent{Type: EventErrorOccurred, SessionID: s.Context.SessionID, FlowID: s.Context.FlowID, Error: err, Timestamp: time.Now()})
				return s.fail(err)
			}

			if catchID, ok := s.Context.popErrorHandler(); ok {
				s.cursor = catchID
				continue
			}
			safeNotify(s.Notifier, ExecutionEvent{Type: EventErrorOccurred, SessionID: s.Context.SessionID, FlowID: s.Context.FlowID, Error: err, Timestamp: time.Now()})
			return s.fail(err)
		}

		s.Context.setBlockStatus(s.cursor, BlockCompleted)
		safeNotify(s.Notifier, ExecutionEvent{Type: EventBlockCompleted, SessionID: s.Context.SessionID, FlowID: s.Context.FlowID, BlockID: s.cursor, DurationMs: time.Since(start).Milliseconds(), Timestamp: time.Now()})

		switch res.kind {
		case stepContinue:
			s.cursor = res.next
		case stepSuspend:
			s.suspended = true
			safeNotify(s.Notifier, ExecutionEvent{Type: EventAwaitingInput, SessionID: s.Context.SessionID, FlowID: s.Context.FlowID, BlockID: s.cursor, Timestamp: time.Now()})
			return &Outcome{
				Status:        "awaiting_input",
				InteractionID: res.suspend.InteractionID,
				AgentID:       res.suspend.AgentID,
				Prompt:        res.suspend.Prompt,
			}
		case stepTerminate:
			result, _ := s.resolveResultKey(res.resultKey)
			safeNotify(s.Notifier, ExecutionEvent{Type: EventSessionDone, SessionID: s.Context.SessionID, FlowID: s.Context.FlowID, Timestamp: time.Now()})
			return &Outcome{Status: "completed", ResultKey: res.resultKey, Result: result}
		default:
			return s.fail(fmt.Errorf("engine: block %q produced no control transfer", s.cursor))
		}
	}
	return s.fail(fmt.Errorf("engine: exceeded %d dispatch steps without reaching a terminal block", s.Options.MaxSteps))
}

// isTerminalError reports whether err belongs to the class of failures that
// must end a session outright, bypassing any installed TryCatch handler:
// running out of gas or sandbox fuel. Every other runtime error (divide/mod
// by zero, bad index, ...) is ordinary and catchable.
func isTerminalError(err error) bool {
	var outOfGas *vm.OutOfGasError
	var outOfFuel *sandbox.OutOfFuelError
	return errors.As(err, &outOfGas) || errors.As(err, &outOfFuel)
}

func (s *Session) resolveResultKey(key string) (any, error) {
	if key == "" {
		return nil, nil
	}
	return s.Context.fetch(flow.ParsePath(key))
}

func (s *Session) fail(err error) *Outcome {
	return &Outcome{Status: "failed", Err: err}
}

// nowFn exists so tests can see deterministic-enough timestamps without this
// package depending on a clock abstraction the rest of the module doesn't
// have either.
func nowFn() time.Time { return time.Now() }
