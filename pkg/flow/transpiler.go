package flow

import (
	"fmt"

	"github.com/thinksystem/pddfr/pkg/compiler"
)

// loopInfo is the bookkeeping Pass 1 collects per ForEach block, generalized
// from the teacher's loop-edge bookkeeping (pkg/engine/dag_executor.go's
// processLoopEdges/LoopIterations/resetWaveRange: reserved counters that
// reset per loop iteration) into synthetic block ids the lowering pass
// injects directly into the Contract rather than re-deriving at dispatch
// time.
type loopInfo struct {
	block         ForEachBlock
	continuePoint string // synthetic increment block id
	breakPoint    string // == block.ExitID
}

// tryScope is the bookkeeping Pass 1 collects per TryCatch block: the set of
// block ids reachable from TryID without passing through CatchID, and the
// subset of those whose outgoing edges escape the scope (where a
// PopErrorHandler must be injected before the block's terminal
// SetNextBlock).
type tryScope struct {
	catchID  string
	inScope  map[string]bool
	exitBlks map[string]bool
}

// Transpiler lowers a FlowDefinition into a Contract. Schema is optional and
// is forwarded to pkg/compiler's static analysis pass for every Compute/
// Conditional expression compiled.
type Transpiler struct {
	Schema *compiler.Schema
}

// Transpile runs both passes and returns the completed Contract, or the
// first structural error encountered.
func (t *Transpiler) Transpile(flowDef *FlowDefinition) (*Contract, error) {
	loops, scopes, err := t.collectScopes(flowDef)
	if err != nil {
		return nil, err
	}

	contract := &Contract{Nodes: make(map[string]ContractNode, len(flowDef.Blocks)*2)}
	for i := range flowDef.Blocks {
		block := &flowDef.Blocks[i]
		if err := t.lowerBlock(flowDef, block, loops, scopes, contract); err != nil {
			return nil, err
		}
	}
	return contract, nil
}

// collectScopes is Pass 1: duplicate-loop-id detection, synthetic
// continue/break point reservation, and try/catch reachability analysis.
func (t *Transpiler) collectScopes(flowDef *FlowDefinition) (map[string]*loopInfo, []*tryScope, error) {
	loops := make(map[string]*loopInfo)
	var scopes []*tryScope

	for _, block := range flowDef.Blocks {
		if block.ForEach == nil {
			continue
		}
		fe := block.ForEach
		if _, dup := loops[fe.LoopID]; dup {
			return nil, nil, ErrDuplicateLoopID(fe.LoopID)
		}
		loops[fe.LoopID] = &loopInfo{
			block:         *fe,
			continuePoint: syntheticID(block.ID, "increment"),
			breakPoint:    fe.ExitID,
		}
	}

	for _, block := range flowDef.Blocks {
		if block.Continue != nil {
			if _, ok := loops[block.Continue.LoopID]; !ok {
				return nil, nil, ErrLoopJumpTargetNotFound(block.Continue.LoopID, "continue")
			}
		}
		if block.Break != nil {
			if _, ok := loops[block.Break.LoopID]; !ok {
				return nil, nil, ErrLoopJumpTargetNotFound(block.Break.LoopID, "break")
			}
		}
	}

	for _, block := range flowDef.Blocks {
		if block.TryCatch == nil {
			continue
		}
		scope, err := buildTryScope(flowDef, block.TryCatch)
		if err != nil {
			return nil, nil, err
		}
		scopes = append(scopes, scope)
	}

	return loops, scopes, nil
}

func syntheticID(loopBlockID, suffix string) string {
	return loopBlockID + "__" + suffix
}

// buildTryScope walks forward from TryID, excluding CatchID itself from
// expansion, to compute the try scope and the subset of in-scope blocks
// whose successors escape it.
func buildTryScope(flowDef *FlowDefinition, tc *TryCatchBlock) (*tryScope, error) {
	if _, ok := flowDef.BlockByID(tc.TryID); !ok {
		return nil, ErrBlockNotFound(tc.TryID)
	}
	if _, ok := flowDef.BlockByID(tc.CatchID); !ok {
		return nil, ErrInvalidTryCatchStructure(fmt.Sprintf("catch block %q does not exist", tc.CatchID))
	}

	inScope := map[string]bool{}
	queue := []string{tc.TryID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if inScope[id] || id == tc.CatchID {
			continue
		}
		block, ok := flowDef.BlockByID(id)
		if !ok {
			continue
		}
		inScope[id] = true
		queue = append(queue, blockTargets(block)...)
	}

	exitBlks := map[string]bool{}
	for id := range inScope {
		block, _ := flowDef.BlockByID(id)
		for _, target := range blockTargets(block) {
			if target == "" {
				continue
			}
			if !inScope[target] && target != tc.CatchID {
				exitBlks[id] = true
			}
		}
	}

	return &tryScope{catchID: tc.CatchID, inScope: inScope, exitBlks: exitBlks}, nil
}

// blockTargets returns every block id a block may transfer control to, used
// for both the try/catch reachability walk and loop-jump validation.
func blockTargets(block *BlockDefinition) []string {
	switch {
	case block.Compute != nil:
		return []string{block.Compute.Next}
	case block.Conditional != nil:
		return []string{block.Conditional.TrueID, block.Conditional.FalseID}
	case block.AwaitInput != nil:
		return []string{block.AwaitInput.Next}
	case block.ForEach != nil:
		return []string{block.ForEach.BodyID, block.ForEach.ExitID}
	case block.TryCatch != nil:
		return []string{block.TryCatch.TryID}
	case block.Parallel != nil:
		targets := append([]string{}, block.Parallel.Branches...)
		return append(targets, block.Parallel.Next)
	default:
		return nil
	}
}

func (t *Transpiler) findScopeForBlock(scopes []*tryScope, blockID string) *tryScope {
	for _, s := range scopes {
		if s.exitBlks[blockID] {
			return s
		}
	}
	return nil
}

func (t *Transpiler) lowerBlock(flowDef *FlowDefinition, block *BlockDefinition, loops map[string]*loopInfo, scopes []*tryScope, contract *Contract) error {
	sm := SourceMap{BlockID: block.ID, BlockType: block.Type}

	var node ContractNode
	var err error

	switch {
	case block.Compute != nil:
		node, err = t.lowerCompute(block.ID, block.Compute, sm)
	case block.Conditional != nil:
		node, err = t.lowerConditional(block.Conditional, sm)
	case block.AwaitInput != nil:
		node, err = t.lowerAwaitInput(block.AwaitInput, sm)
	case block.ForEach != nil:
		return t.lowerForEach(block, loops[block.ForEach.LoopID], sm, contract)
	case block.Parallel != nil:
		node = ParallelExec{
			baseNode:    baseNode{sm},
			Branches:    block.Parallel.Branches,
			Merge:       block.Parallel.Merge,
			TimeoutSecs: block.Parallel.TimeoutSecs,
			OutputPath:  ParsePath(block.Parallel.OutputKey),
			NextBlockID: block.Parallel.Next,
		}
	case block.Continue != nil:
		node = SetNextBlock{baseNode: baseNode{sm}, BlockID: loops[block.Continue.LoopID].continuePoint}
	case block.Break != nil:
		node = SetNextBlock{baseNode: baseNode{sm}, BlockID: loops[block.Break.LoopID].breakPoint}
	case block.TryCatch != nil:
		node = Sequence{baseNode: baseNode{sm}, Steps: []ContractNode{
			PushErrorHandler{baseNode: baseNode{sm}, CatchBlockID: block.TryCatch.CatchID},
			SetNextBlock{baseNode: baseNode{sm}, BlockID: block.TryCatch.TryID},
		}}
	case block.Terminate != nil:
		node = Terminate{baseNode: baseNode{sm}, ResultKey: block.Terminate.ResultKey}
	default:
		return fmt.Errorf("flow: block %q has no recognised variant set", block.ID)
	}
	if err != nil {
		return err
	}

	if scope := t.findScopeForBlock(scopes, block.ID); scope != nil {
		node = injectPop(node, sm, scope)
	}

	contract.Nodes[block.ID] = node
	return nil
}

func (t *Transpiler) lowerCompute(blockID string, c *ComputeBlock, sm SourceMap) (ContractNode, error) {
	prog, err := compiler.Compile(c.Expr, t.Schema)
	if err != nil {
		return nil, err
	}
	return Sequence{baseNode: baseNode{sm}, Steps: []ContractNode{
		Evaluate{baseNode: baseNode{sm}, Program: prog, OutputPath: ParsePath(c.OutputKey)},
		SetNextBlock{baseNode: baseNode{sm}, BlockID: c.Next},
	}}, nil
}

func (t *Transpiler) lowerConditional(c *ConditionalBlock, sm SourceMap) (ContractNode, error) {
	prog, err := compiler.CompileCondition(c.Expr, t.Schema)
	if err != nil {
		return nil, err
	}
	return If{
		baseNode: baseNode{sm},
		Cond:     Evaluate{baseNode: baseNode{sm}, Program: prog},
		Then:     SetNextBlock{baseNode: baseNode{sm}, BlockID: c.TrueID},
		Else:     SetNextBlock{baseNode: baseNode{sm}, BlockID: c.FalseID},
	}, nil
}

func (t *Transpiler) lowerAwaitInput(a *AwaitInputBlock, sm SourceMap) (ContractNode, error) {
	prompt, err := compiler.Compile(quoteIfBare(a.Prompt), t.Schema)
	if err != nil {
		return nil, err
	}
	return Sequence{baseNode: baseNode{sm}, Steps: []ContractNode{
		Await{
			baseNode:      baseNode{sm},
			InteractionID: a.InteractionID,
			AgentID:       a.AgentID,
			Prompt:        Evaluate{baseNode: baseNode{sm}, Program: prompt},
			StateKey:      a.StateKey,
			NextBlockID:   a.Next,
		},
	}}, nil
}

// quoteIfBare treats a prompt that is not already a compilable expression as
// a literal string by wrapping it in quotes, so flow authors can write a
// plain prompt without needing expression syntax for the common case.
func quoteIfBare(s string) string {
	if _, err := compiler.Parse(s); err == nil {
		return s
	}
	return `"` + s + `"`
}

func (t *Transpiler) lowerForEach(block *BlockDefinition, loop *loopInfo, sm SourceMap, contract *Contract) error {
	fe := block.ForEach
	condID := syntheticID(block.ID, "cond")
	bodySetupID := syntheticID(block.ID, "body_setup")
	exitCleanupID := syntheticID(block.ID, "exit_cleanup")

	counterPath := ParsePath(fmt.Sprintf("__loop_%s_index", fe.LoopID))
	arraySnapshotPath := ParsePath(fmt.Sprintf("__loop_%s_array", fe.LoopID))

	// init: counter = 0, snapshot the array, jump to cond.
	contract.Nodes[block.ID] = Sequence{baseNode: baseNode{sm}, Steps: []ContractNode{
		Assign{baseNode: baseNode{sm}, Path: counterPath, Value: Literal{Value: int64(0)}},
		Assign{baseNode: baseNode{sm}, Path: arraySnapshotPath, Value: Fetch{baseNode: baseNode{sm}, Path: ParsePath(fe.ArrayPath)}},
		SetNextBlock{baseNode: baseNode{sm}, BlockID: condID},
	}}

	// cond: counter < len(array) ? body_setup : exit_cleanup.
	lenProg, err := compiler.Compile(fmt.Sprintf("__loop_%s_index < len(__loop_%s_array)", fe.LoopID, fe.LoopID), nil)
	if err != nil {
		return err
	}
	contract.Nodes[condID] = If{
		baseNode: baseNode{sm},
		Cond:     Evaluate{baseNode: baseNode{sm}, Program: lenProg},
		Then:     SetNextBlock{baseNode: baseNode{sm}, BlockID: bodySetupID},
		Else:     SetNextBlock{baseNode: baseNode{sm}, BlockID: exitCleanupID},
	}

	// exit_cleanup: clear the synthetic loop-bookkeeping keys to null before
	// handing control to the user's exit block, so a completed loop leaves no
	// observable trace of its counter/array snapshot.
	contract.Nodes[exitCleanupID] = Sequence{baseNode: baseNode{sm}, Steps: []ContractNode{
		Assign{baseNode: baseNode{sm}, Path: counterPath, Value: Literal{Value: nil}},
		Assign{baseNode: baseNode{sm}, Path: arraySnapshotPath, Value: Literal{Value: nil}},
		SetNextBlock{baseNode: baseNode{sm}, BlockID: fe.ExitID},
	}}

	// body_setup: iterator_var = array[counter], jump to the user's body.
	iterExprProg, err := compiler.Compile(fmt.Sprintf("__loop_%s_array[__loop_%s_index]", fe.LoopID, fe.LoopID), nil)
	if err != nil {
		return err
	}
	contract.Nodes[bodySetupID] = Sequence{baseNode: baseNode{sm}, Steps: []ContractNode{
		Assign{baseNode: baseNode{sm}, Path: ParsePath(fe.IteratorVar), Value: Evaluate{baseNode: baseNode{sm}, Program: iterExprProg}},
		SetNextBlock{baseNode: baseNode{sm}, BlockID: fe.BodyID},
	}}

	// increment: counter += 1, jump back to cond.
	incProg, err := compiler.Compile(fmt.Sprintf("__loop_%s_index + 1", fe.LoopID), nil)
	if err != nil {
		return err
	}
	contract.Nodes[loop.continuePoint] = Sequence{baseNode: baseNode{sm}, Steps: []ContractNode{
		Assign{baseNode: baseNode{sm}, Path: counterPath, Value: Evaluate{baseNode: baseNode{sm}, Program: incProg}},
		SetNextBlock{baseNode: baseNode{sm}, BlockID: condID},
	}}

	return nil
}

// injectPop appends a PopErrorHandler immediately before the final
// SetNextBlock in a Sequence, or wraps a bare non-Sequence terminal node
// (e.g. an If whose Then/Else are themselves SetNextBlock) by threading the
// pop into both branches.
func injectPop(node ContractNode, sm SourceMap, scope *tryScope) ContractNode {
	pop := PopErrorHandler{baseNode: baseNode{sm}}
	switch n := node.(type) {
	case Sequence:
		steps := append([]ContractNode{}, n.Steps...)
		if len(steps) == 0 {
			return Sequence{baseNode: n.baseNode, Steps: []ContractNode{pop}}
		}
		last := steps[len(steps)-1]
		if _, ok := last.(SetNextBlock); ok {
			steps = append(steps[:len(steps)-1], pop, last)
		} else {
			steps = append(steps, pop)
		}
		return Sequence{baseNode: n.baseNode, Steps: steps}
	case If:
		n.Then = injectPop(n.Then, sm, scope)
		n.Else = injectPop(n.Else, sm, scope)
		return n
	case SetNextBlock:
		return Sequence{baseNode: n.baseNode, Steps: []ContractNode{pop, n}}
	default:
		return Sequence{baseNode: baseNode{sm}, Steps: []ContractNode{node, pop}}
	}
}
