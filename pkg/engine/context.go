// Package engine is the Orchestration Coordinator: it walks a pkg/flow
// Contract one block at a time, maintaining a thread-safe ExecutionContext,
// suspending on AwaitInput and resuming on demand, and fanning out
// ParallelExecution branches with isolated per-branch state until merge.
package engine

import (
	"fmt"
	"sync"

	"github.com/thinksystem/pddfr/pkg/flow"
)

// BlockStatus mirrors the teacher's per-node status tracking
// (pkg/engine/execution_state.go's NodeStatus map), narrowed to the
// single-cursor model: at most one block is ever "running" at a time outside
// of a ParallelExec fan-out.
type BlockStatus string

const (
	BlockPending   BlockStatus = "pending"
	BlockRunning   BlockStatus = "running"
	BlockCompleted BlockStatus = "completed"
	BlockFailed    BlockStatus = "failed"
	BlockSkipped   BlockStatus = "skipped"
)

// ExecutionContext is the mutable state a Session threads through dispatch:
// the state/input root maps Evaluate/Fetch/Assign nodes address via
// flow.PathSegment, plus per-block bookkeeping for events and errors.
// Thread-safe via RWMutex, generalized from
// pkg/engine/execution_state.go's ExecutionState.
type ExecutionContext struct {
	SessionID string
	FlowID    string

	mu    sync.RWMutex
	state map[string]any
	input map[string]any

	blockStatus map[string]BlockStatus
	blockErrors map[string]error

	pendingInput  any
	hasPending    bool
	errorHandlers []string // stack of catch block ids, innermost last
}

// NewExecutionContext seeds state/input from a flow's declared initial state
// and the caller-supplied input for this run.
func NewExecutionContext(sessionID, flowID string, initialState, input map[string]any) *ExecutionContext {
	state := make(map[string]any, len(initialState))
	for k, v := range initialState {
		state[k] = v
	}
	in := make(map[string]any, len(input))
	for k, v := range input {
		in[k] = v
	}
	return &ExecutionContext{
		SessionID:   sessionID,
		FlowID:      flowID,
		state:       state,
		input:       in,
		blockStatus: make(map[string]BlockStatus),
		blockErrors: make(map[string]error),
	}
}

// vmVars returns the variable environment pkg/vm.Interpreter.Run evaluates
// compiled expressions against: "state" and "input" bound to their root
// maps, matching pkg/compiler's convention that a bare path defaults to the
// state root.
func (c *ExecutionContext) vmVars() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vars := make(map[string]any, len(c.state)+2)
	for k, v := range c.state {
		vars[k] = v
	}
	vars["state"] = c.state
	vars["input"] = c.input
	return vars
}

func (c *ExecutionContext) setBlockStatus(blockID string, status BlockStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockStatus[blockID] = status
}

func (c *ExecutionContext) setBlockError(blockID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockErrors[blockID] = err
}

// takePendingInput consumes and clears the input set by Resume, if any.
func (c *ExecutionContext) takePendingInput() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasPending {
		return nil, false
	}
	v := c.pendingInput
	c.pendingInput = nil
	c.hasPending = false
	return v, true
}

func (c *ExecutionContext) setPendingInput(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingInput = v
	c.hasPending = true
}

func (c *ExecutionContext) pushErrorHandler(catchBlockID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandlers = append(c.errorHandlers, catchBlockID)
}

func (c *ExecutionContext) popErrorHandler() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.errorHandlers)
	if n == 0 {
		return "", false
	}
	top := c.errorHandlers[n-1]
	c.errorHandlers = c.errorHandlers[:n-1]
	return top, true
}

// fork returns an independent ExecutionContext seeded from a deep-ish copy of
// the current state/input, used to give ParallelExecution branches isolated
// mutation scope until merge (spec: "branches do not share context mutations
// until merge").
func (c *ExecutionContext) fork(branchSessionID string) *ExecutionContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return NewExecutionContext(branchSessionID, c.FlowID, cloneMap(c.state), cloneMap(c.input))
}

// merge applies a branch's final state back onto the parent. runBranch calls
// it for every branch that finishes successfully, as soon as that branch
// finishes, under every merge strategy.
func (c *ExecutionContext) merge(branch *ExecutionContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	branch.mu.RLock()
	defer branch.mu.RUnlock()
	for k, v := range branch.state {
		c.state[k] = v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (c *ExecutionContext) fetch(path []flow.PathSegment) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return walkGet(c.rootFor(path), path[1:])
}

func (c *ExecutionContext) assign(path []flow.PathSegment, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(path) == 0 {
		return fmt.Errorf("engine: cannot assign to an empty path")
	}
	root := c.rootFor(path)
	return walkSet(root, path[1:], value)
}

// assignDotted is a convenience for StateKey-style bare strings (no "state."/
// "input." prefix parsed yet) used by Await's StateKey field.
func (c *ExecutionContext) assignDotted(key string, value any) error {
	return c.assign(flow.ParsePath(key), value)
}

func (c *ExecutionContext) rootFor(path []flow.PathSegment) map[string]any {
	if len(path) > 0 && path[0].Kind == flow.PathInput {
		return c.input
	}
	return c.state
}
