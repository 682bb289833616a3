package planner

import "testing"

func validPlan() *Plan {
	return &Plan{
		Functions: []FunctionSpec{{
			Name:   "is_even",
			Export: "is_even",
			WAT:    `(module (func $is_even (export "is_even") (param $n i32) (result i32) (i32.eq (i32.rem_u (local.get $n) (i32.const 2)) (i32.const 0))))`,
		}},
		Flow: FlowSpec{
			ID:    "f1",
			Start: "a",
			Blocks: []PlanBlock{
				{ID: "a", Type: PlanBlockCompute, Next: "b", Expression: "1 + 1"},
				{ID: "b", Type: PlanBlockTerminal},
			},
		},
		Evaluators: []EvaluatorSpec{
			{ID: "ev1", Type: EvaluatorFunction, FunctionName: "is_even"},
		},
		ExecutionGraph: &ExecutionGraph{
			Nodes: []ScanNode{
				{Kind: "range_scan", ID: "scan1", RangeScan: &RangeScan{EvaluatorID: "ev1", RangeStart: 0, RangeEnd: 100}},
			},
		},
	}
}

func TestValidate_AcceptsWellFormedPlan(t *testing.T) {
	if err := Validate(validPlan()); err != nil {
		t.Fatalf("expected valid plan, got: %v", err)
	}
}

func TestValidate_RejectsEmptyFunctionName(t *testing.T) {
	p := validPlan()
	p.Functions[0].Name = ""
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for empty function name")
	}
}

func TestValidate_RejectsDualBodyFunction(t *testing.T) {
	p := validPlan()
	p.Functions[0].IR = &IR{Root: IRNode{Kind: IRConst, Value: 1}}
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for function with both wat and ir")
	}
}

func TestValidate_RejectsUnresolvedFlowStart(t *testing.T) {
	p := validPlan()
	p.Flow.Start = "missing"
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for unresolved flow.start")
	}
}

func TestValidate_RejectsUnresolvedBlockNext(t *testing.T) {
	p := validPlan()
	p.Flow.Blocks[0].Next = "missing"
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for unresolved block.next")
	}
}

func TestValidate_RejectsEvaluatorReferencingUnknownFunction(t *testing.T) {
	p := validPlan()
	p.Evaluators[0].FunctionName = "does_not_exist"
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for unresolved evaluator function_name")
	}
}

func TestValidate_RejectsScanNodeMissingPayload(t *testing.T) {
	p := validPlan()
	p.ExecutionGraph.Nodes[0].RangeScan = nil
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for range_scan node without a range_scan payload")
	}
}

func TestValidate_RejectsScanNodeUnresolvedEvaluator(t *testing.T) {
	p := validPlan()
	p.ExecutionGraph.Nodes[0].RangeScan.EvaluatorID = "missing"
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for scan node referencing unknown evaluator")
	}
}

func TestValidate_RejectsUnknownScanKind(t *testing.T) {
	p := validPlan()
	p.ExecutionGraph.Nodes[0].Kind = "bogus_scan"
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for unknown scan kind")
	}
}

func TestValidate_AcceptsSwitchScanWithMultipleStages(t *testing.T) {
	p := validPlan()
	p.ExecutionGraph.Nodes[0] = ScanNode{
		Kind: "switch_scan",
		ID:   "scan1",
		SwitchScan: &SwitchScan{
			Stages: []RangeScan{
				{EvaluatorID: "ev1", RangeStart: 0, RangeEnd: 50},
				{EvaluatorID: "ev1", RangeStart: 50, RangeEnd: 100},
			},
		},
	}
	if err := Validate(p); err != nil {
		t.Fatalf("expected valid switch_scan plan, got: %v", err)
	}
}
