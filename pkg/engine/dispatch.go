package engine

import (
	"fmt"

	"github.com/thinksystem/pddfr/pkg/flow"
)

type stepKind int

const (
	stepNone stepKind = iota
	stepContinue
	stepSuspend
	stepTerminate
)

// suspendInfo carries everything an Await block needs to hand back to the
// caller when it has no pending input to consume.
type suspendInfo struct {
	InteractionID string
	AgentID       string
	Prompt        any
	StateKey      string
	Next          string
}

// stepResult is execControl's return value: which control transfer the
// dispatched node produced.
type stepResult struct {
	kind      stepKind
	next      string
	resultKey string
	suspend   *suspendInfo
}

// evalValue computes the value a value-producing ContractNode represents,
// per spec §4.5/§4.6's Evaluate semantics: bytecode runs against the
// context's state/input roots, and an Evaluate with a non-empty OutputPath
// also assigns its result before returning it.
func (s *Session) evalValue(node flow.ContractNode) (any, error) {
	switch n := node.(type) {
	case flow.Literal:
		return n.Value, nil
	case flow.Fetch:
		return s.Context.fetch(n.Path)
	case flow.Evaluate:
		res, err := s.Interp.Run(n.Program, s.Context.vmVars(), s.Options.GasLimit)
		if err != nil {
			return nil, err
		}
		if len(n.OutputPath) > 0 {
			if err := s.Context.assign(n.OutputPath, res.Value); err != nil {
				return nil, err
			}
		}
		return res.Value, nil
	default:
		return nil, fmt.Errorf("engine: %T is not a value-producing node", node)
	}
}

// execControl dispatches one control-flow ContractNode, matching spec
// §4.6's per-block-type dispatch rules.
func (s *Session) execControl(node flow.ContractNode) (stepResult, error) {
	switch n := node.(type) {
	case flow.Sequence:
		var last stepResult
		for _, step := range n.Steps {
			res, err := s.execControl(step)
			if err != nil {
				return stepResult{}, err
			}
			if res.kind == stepSuspend || res.kind == stepTerminate {
				return res, nil
			}
			last = res
		}
		return last, nil

	case flow.Assign:
		val, err := s.evalValue(n.Value)
		if err != nil {
			return stepResult{}, err
		}
		if err := s.Context.assign(n.Path, val); err != nil {
			return stepResult{}, err
		}
		return stepResult{kind: stepNone}, nil

	case flow.Evaluate:
		if _, err := s.evalValue(n); err != nil {
			return stepResult{}, err
		}
		return stepResult{kind: stepNone}, nil

	case flow.Fetch:
		if _, err := s.evalValue(n); err != nil {
			return stepResult{}, err
		}
		return stepResult{kind: stepNone}, nil

	case flow.If:
		val, err := s.evalValue(n.Cond)
		if err != nil {
			return stepResult{}, err
		}
		if truthy(val) {
			return s.execControl(n.Then)
		}
		return s.execControl(n.Else)

	case flow.SetNextBlock:
		return stepResult{kind: stepContinue, next: n.BlockID}, nil

	case flow.Await:
		if input, ok := s.Context.takePendingInput(); ok {
			if n.StateKey != "" {
				if err := s.Context.assignDotted(n.StateKey, input); err != nil {
					return stepResult{}, err
				}
			}
			return stepResult{kind: stepContinue, next: n.NextBlockID}, nil
		}
		prompt, err := s.evalValue(n.Prompt)
		if err != nil {
			return stepResult{}, err
		}
		return stepResult{kind: stepSuspend, suspend: &suspendInfo{
			InteractionID: n.InteractionID,
			AgentID:       n.AgentID,
			Prompt:        prompt,
			StateKey:      n.StateKey,
			Next:          n.NextBlockID,
		}}, nil

	case flow.Terminate:
		return stepResult{kind: stepTerminate, resultKey: n.ResultKey}, nil

	case flow.PushErrorHandler:
		s.Context.pushErrorHandler(n.CatchBlockID)
		return stepResult{kind: stepNone}, nil

	case flow.PopErrorHandler:
		s.Context.popErrorHandler()
		return stepResult{kind: stepNone}, nil

	case flow.ParallelExec:
		return s.execParallel(n)

	default:
		return stepResult{}, fmt.Errorf("engine: %T is not a dispatchable control node", node)
	}
}

// truthy mirrors the condition-evaluation rules spec §4.6's Conditional
// dispatch relies on: bool passes through, numeric zero/empty-string/nil/
// empty-collection are false, anything else is true.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
