package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleFlow() *FlowDefinition {
	return &FlowDefinition{
		ID:           "f1",
		StartBlockID: "b1",
		Blocks: []BlockDefinition{
			{ID: "b1", Type: BlockTypeCompute, Compute: &ComputeBlock{Expr: "1 + 1", OutputKey: "state.total", Next: "b2"}},
			{ID: "b2", Type: BlockTypeConditional, Conditional: &ConditionalBlock{Expr: "state.total > 1", TrueID: "b3", FalseID: "b4"}},
			{ID: "b3", Type: BlockTypeTerminate, Terminate: &TerminateBlock{ResultKey: "state.total"}},
			{ID: "b4", Type: BlockTypeTerminate, Terminate: &TerminateBlock{ResultKey: "state.total"}},
		},
	}
}

func TestTranspile_ComputeLowersToEvaluateThenSetNextBlock(t *testing.T) {
	c, err := (&Transpiler{}).Transpile(simpleFlow())
	require.NoError(t, err)

	node, ok := c.Nodes["b1"].(Sequence)
	require.True(t, ok)
	require.Len(t, node.Steps, 2)

	_, ok = node.Steps[0].(Evaluate)
	assert.True(t, ok)
	next, ok := node.Steps[1].(SetNextBlock)
	require.True(t, ok)
	assert.Equal(t, "b2", next.BlockID)
}

func TestTranspile_ConditionalLowersToIf(t *testing.T) {
	c, err := (&Transpiler{}).Transpile(simpleFlow())
	require.NoError(t, err)

	node, ok := c.Nodes["b2"].(If)
	require.True(t, ok)
	then, ok := node.Then.(SetNextBlock)
	require.True(t, ok)
	assert.Equal(t, "b3", then.BlockID)
	els, ok := node.Else.(SetNextBlock)
	require.True(t, ok)
	assert.Equal(t, "b4", els.BlockID)
}

func TestTranspile_TerminateLowersDirectly(t *testing.T) {
	c, err := (&Transpiler{}).Transpile(simpleFlow())
	require.NoError(t, err)

	node, ok := c.Nodes["b3"].(Terminate)
	require.True(t, ok)
	assert.Equal(t, "state.total", node.ResultKey)
}

func TestTranspile_ParallelLowersToParallelExecNode(t *testing.T) {
	f := &FlowDefinition{
		ID:           "par",
		StartBlockID: "p1",
		Blocks: []BlockDefinition{
			{ID: "p1", Type: BlockTypeParallel, Parallel: &ParallelBlock{
				Branches: []string{"a", "b"}, Merge: MergeWaitAll, TimeoutSecs: 5, OutputKey: "state.out", Next: "done",
			}},
			{ID: "a", Type: BlockTypeTerminate, Terminate: &TerminateBlock{}},
			{ID: "b", Type: BlockTypeTerminate, Terminate: &TerminateBlock{}},
			{ID: "done", Type: BlockTypeTerminate, Terminate: &TerminateBlock{}},
		},
	}
	c, err := (&Transpiler{}).Transpile(f)
	require.NoError(t, err)

	node, ok := c.Nodes["p1"].(ParallelExec)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, node.Branches)
	assert.Equal(t, MergeWaitAll, node.Merge)
	assert.Equal(t, 5, node.TimeoutSecs)
	assert.Equal(t, "done", node.NextBlockID)
	assert.Equal(t, ParsePath("state.out"), node.OutputPath)
}

func forEachFlow() *FlowDefinition {
	return &FlowDefinition{
		ID:           "loopy",
		StartBlockID: "loop1",
		Blocks: []BlockDefinition{
			{ID: "loop1", Type: BlockTypeForEach, ForEach: &ForEachBlock{
				LoopID: "l1", ArrayPath: "state.items", IteratorVar: "state.item", BodyID: "body", ExitID: "done",
			}},
			{ID: "body", Type: BlockTypeContinue, Continue: &ContinueBlock{LoopID: "l1"}},
			{ID: "done", Type: BlockTypeTerminate, Terminate: &TerminateBlock{}},
		},
	}
}

func TestTranspile_ForEachExpandsToFourSyntheticBlocks(t *testing.T) {
	c, err := (&Transpiler{}).Transpile(forEachFlow())
	require.NoError(t, err)

	// init (the ForEach block id itself)
	init, ok := c.Nodes["loop1"].(Sequence)
	require.True(t, ok)
	lastStep := init.Steps[len(init.Steps)-1]
	setNext, ok := lastStep.(SetNextBlock)
	require.True(t, ok)
	condID := setNext.BlockID
	assert.Contains(t, condID, "loop1__cond")

	// cond
	cond, ok := c.Nodes[condID].(If)
	require.True(t, ok)
	bodySetup, ok := cond.Then.(SetNextBlock)
	require.True(t, ok)
	assert.Contains(t, bodySetup.BlockID, "loop1__body_setup")
	exit, ok := cond.Else.(SetNextBlock)
	require.True(t, ok)
	assert.Equal(t, "loop1__exit_cleanup", exit.BlockID)

	// exit_cleanup hands control to the user's exit block
	cleanup, ok := c.Nodes[exit.BlockID].(Sequence)
	require.True(t, ok)
	toExit, ok := cleanup.Steps[len(cleanup.Steps)-1].(SetNextBlock)
	require.True(t, ok)
	assert.Equal(t, "done", toExit.BlockID)

	// body_setup
	setup, ok := c.Nodes[bodySetup.BlockID].(Sequence)
	require.True(t, ok)
	finalStep := setup.Steps[len(setup.Steps)-1]
	toBody, ok := finalStep.(SetNextBlock)
	require.True(t, ok)
	assert.Equal(t, "body", toBody.BlockID)

	// increment (continue point)
	incID := "loop1__increment"
	inc, ok := c.Nodes[incID].(Sequence)
	require.True(t, ok)
	backToCond := inc.Steps[len(inc.Steps)-1].(SetNextBlock)
	assert.Equal(t, condID, backToCond.BlockID)

	// the Continue block resolves to the increment block (the continue point)
	continueNode, ok := c.Nodes["body"].(SetNextBlock)
	require.True(t, ok)
	assert.Equal(t, incID, continueNode.BlockID)
}

func TestTranspile_DuplicateLoopIDFailsFast(t *testing.T) {
	f := &FlowDefinition{
		Blocks: []BlockDefinition{
			{ID: "a", ForEach: &ForEachBlock{LoopID: "dup", BodyID: "a", ExitID: "z"}},
			{ID: "b", ForEach: &ForEachBlock{LoopID: "dup", BodyID: "b", ExitID: "z"}},
			{ID: "z", Terminate: &TerminateBlock{}},
		},
	}
	_, err := (&Transpiler{}).Transpile(f)
	require.Error(t, err)
	var te *TranspileError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "duplicate_loop_id", te.Kind)
}

func TestTranspile_BreakLowersToExitID(t *testing.T) {
	f := forEachFlow()
	f.Blocks = append(f.Blocks, BlockDefinition{ID: "break1", Type: BlockTypeBreak, Break: &BreakBlock{LoopID: "l1"}})

	c, err := (&Transpiler{}).Transpile(f)
	require.NoError(t, err)
	node, ok := c.Nodes["break1"].(SetNextBlock)
	require.True(t, ok)
	assert.Equal(t, "done", node.BlockID)
}

func TestTranspile_UnknownLoopIDInContinueErrors(t *testing.T) {
	f := &FlowDefinition{
		Blocks: []BlockDefinition{
			{ID: "c1", Type: BlockTypeContinue, Continue: &ContinueBlock{LoopID: "ghost"}},
		},
	}
	_, err := (&Transpiler{}).Transpile(f)
	require.Error(t, err)
	var te *TranspileError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "loop_jump_target_not_found", te.Kind)
}

func tryCatchFlow() *FlowDefinition {
	return &FlowDefinition{
		Blocks: []BlockDefinition{
			{ID: "tc1", Type: BlockTypeTryCatch, TryCatch: &TryCatchBlock{TryID: "t1", CatchID: "c1"}},
			{ID: "t1", Type: BlockTypeCompute, Compute: &ComputeBlock{Expr: "1", OutputKey: "state.x", Next: "t2"}},
			{ID: "t2", Type: BlockTypeCompute, Compute: &ComputeBlock{Expr: "2", OutputKey: "state.y", Next: "after"}},
			{ID: "c1", Type: BlockTypeTerminate, Terminate: &TerminateBlock{ResultKey: "state.err"}},
			{ID: "after", Type: BlockTypeTerminate, Terminate: &TerminateBlock{ResultKey: "state.y"}},
		},
	}
}

func TestTranspile_TryCatchLowersToPushHandlerThenTry(t *testing.T) {
	c, err := (&Transpiler{}).Transpile(tryCatchFlow())
	require.NoError(t, err)

	node, ok := c.Nodes["tc1"].(Sequence)
	require.True(t, ok)
	require.Len(t, node.Steps, 2)
	push, ok := node.Steps[0].(PushErrorHandler)
	require.True(t, ok)
	assert.Equal(t, "c1", push.CatchBlockID)
	setNext, ok := node.Steps[1].(SetNextBlock)
	require.True(t, ok)
	assert.Equal(t, "t1", setNext.BlockID)
}

func TestTranspile_ScopeExitNodeGetsPopErrorHandlerInjected(t *testing.T) {
	c, err := (&Transpiler{}).Transpile(tryCatchFlow())
	require.NoError(t, err)

	// t2's Next ("after") escapes the try scope, so its lowered Sequence must
	// contain a PopErrorHandler immediately before the final SetNextBlock.
	node, ok := c.Nodes["t2"].(Sequence)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(node.Steps), 2)

	last := node.Steps[len(node.Steps)-1]
	setNext, ok := last.(SetNextBlock)
	require.True(t, ok)
	assert.Equal(t, "after", setNext.BlockID)

	secondLast := node.Steps[len(node.Steps)-2]
	_, ok = secondLast.(PopErrorHandler)
	assert.True(t, ok, "expected PopErrorHandler injected before the scope-exit SetNextBlock")

	// t1's Next ("t2") stays inside scope, so no pop should be injected there.
	t1Node, ok := c.Nodes["t1"].(Sequence)
	require.True(t, ok)
	for _, step := range t1Node.Steps {
		_, isPop := step.(PopErrorHandler)
		assert.False(t, isPop, "t1 stays in scope and should not receive a PopErrorHandler")
	}
}

func TestTranspile_TryCatchUnknownCatchBlockErrors(t *testing.T) {
	f := &FlowDefinition{
		Blocks: []BlockDefinition{
			{ID: "tc1", Type: BlockTypeTryCatch, TryCatch: &TryCatchBlock{TryID: "t1", CatchID: "ghost"}},
			{ID: "t1", Type: BlockTypeTerminate, Terminate: &TerminateBlock{}},
		},
	}
	_, err := (&Transpiler{}).Transpile(f)
	require.Error(t, err)
	var te *TranspileError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "invalid_try_catch_structure", te.Kind)
}

func TestTranspile_ConditionalEqLiteralCompilesToSubstringMatch(t *testing.T) {
	f := &FlowDefinition{
		Blocks: []BlockDefinition{
			{ID: "b2", Type: BlockTypeConditional, Conditional: &ConditionalBlock{Expr: `intent == "refinement"`, TrueID: "yes", FalseID: "no"}},
			{ID: "yes", Type: BlockTypeTerminate, Terminate: &TerminateBlock{}},
			{ID: "no", Type: BlockTypeTerminate, Terminate: &TerminateBlock{}},
		},
	}
	c, err := (&Transpiler{}).Transpile(f)
	require.NoError(t, err)

	node, ok := c.Nodes["b2"].(If)
	require.True(t, ok)
	eval, ok := node.Cond.(Evaluate)
	require.True(t, ok)
	disasm := eval.Program.Disassemble()
	assert.Contains(t, disasm, "ci_substr_match")
}

func TestParsePath_HandlesStateInputAndIndexSegments(t *testing.T) {
	segs := ParsePath("input.items[2].name")
	require.Len(t, segs, 4)
	assert.Equal(t, PathInput, segs[0].Kind)
	assert.Equal(t, PathKeySeg, segs[1].Kind)
	assert.Equal(t, "items", segs[1].Key)
	assert.Equal(t, PathIndexSeg, segs[2].Kind)
	assert.Equal(t, 2, segs[2].Index)
	assert.Equal(t, PathKeySeg, segs[3].Kind)
	assert.Equal(t, "name", segs[3].Key)
}

func TestParsePath_BarePathDefaultsToState(t *testing.T) {
	segs := ParsePath("total")
	require.Len(t, segs, 2)
	assert.Equal(t, PathState, segs[0].Kind)
	assert.Equal(t, "total", segs[1].Key)
}
