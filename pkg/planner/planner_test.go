package planner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/thinksystem/pddfr/pkg/sandbox"
)

// fakePlanAdapter scripts a sequence of GeneratePlan/RepairPlan responses so
// tests can exercise the convergence loop deterministically.
type fakePlanAdapter struct {
	generations []string
	genCalls    int
	repairs     []string
	repairCalls int
	dualStage   bool
	feasible    FeasibilityVerdict
	feasErr     error
}

func (f *fakePlanAdapter) GeneratePlan(context.Context, string) (string, error) {
	if f.genCalls >= len(f.generations) {
		return "", errNoMoreScriptedResponses
	}
	r := f.generations[f.genCalls]
	f.genCalls++
	return r, nil
}

func (f *fakePlanAdapter) RepairPlan(context.Context, string, string) (string, error) {
	if f.repairCalls >= len(f.repairs) {
		return "", errNoMoreScriptedResponses
	}
	r := f.repairs[f.repairCalls]
	f.repairCalls++
	return r, nil
}

func (f *fakePlanAdapter) ClassifyDualStage(context.Context, string) (bool, error) {
	return f.dualStage, nil
}

func (f *fakePlanAdapter) AssessFeasibility(context.Context, string, *Plan) (FeasibilityVerdict, error) {
	if f.feasErr != nil {
		return FeasibilityVerdict{}, f.feasErr
	}
	return f.feasible, nil
}

var errNoMoreScriptedResponses = &ValidationError{Field: "test", Message: "no more scripted responses"}

func validPlanJSON(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(validPlan())
	if err != nil {
		t.Fatalf("marshalling valid plan: %v", err)
	}
	return string(raw)
}

func TestPlanner_GenerateValidated_SucceedsOnFirstGeneration(t *testing.T) {
	adapter := &fakePlanAdapter{generations: []string{validPlanJSON(t)}, feasible: FeasibilityVerdict{Feasible: true}}
	p := NewPlanner(Adapters{Plan: adapter}, sandbox.NewRegistry(), DefaultOptions(), nil)

	plan, result, err := p.Run(context.Background(), "count even numbers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan == nil {
		t.Fatal("expected a plan")
	}
	if result.PlanAttempts != 1 {
		t.Fatalf("expected 1 plan attempt, got %d", result.PlanAttempts)
	}
	if len(result.RegisteredFuncs) != 1 || result.RegisteredFuncs[0] != "is_even" {
		t.Fatalf("expected is_even registered, got %v", result.RegisteredFuncs)
	}
	if _, err := p.Registry.Current("is_even"); err != nil {
		t.Fatalf("expected is_even to be registered in the registry: %v", err)
	}
}

func TestPlanner_GenerateValidated_RepairsAnInvalidFirstAttempt(t *testing.T) {
	adapter := &fakePlanAdapter{
		generations: []string{`{"functions":[],"flow":{"id":"f","start":"missing","blocks":[]}}`},
		repairs:     []string{validPlanJSON(t)},
		feasible:    FeasibilityVerdict{Feasible: true},
	}
	p := NewPlanner(Adapters{Plan: adapter}, sandbox.NewRegistry(), DefaultOptions(), nil)

	plan, result, err := p.Run(context.Background(), "count even numbers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan == nil {
		t.Fatal("expected a plan after repair")
	}
	if result.RepairAttempts != 1 {
		t.Fatalf("expected 1 repair attempt, got %d", result.RepairAttempts)
	}
}

func TestPlanner_GenerateValidated_ReturnsConvergenceErrorWhenExhausted(t *testing.T) {
	bad := `{"functions":[],"flow":{"id":"f","start":"missing","blocks":[]}}`
	adapter := &fakePlanAdapter{
		generations: []string{bad, bad, bad},
		repairs:     []string{bad, bad, bad, bad, bad, bad, bad, bad, bad},
	}
	opts := DefaultOptions()
	p := NewPlanner(Adapters{Plan: adapter}, sandbox.NewRegistry(), opts, nil)

	_, _, err := p.Run(context.Background(), "impossible directive")
	if err == nil {
		t.Fatal("expected a convergence error")
	}
	if _, ok := err.(*ConvergenceError); !ok {
		t.Fatalf("expected *ConvergenceError, got %T: %v", err, err)
	}
}

func TestPlanner_EnforceDualStage_UpgradesRangeScanToSwitchScan(t *testing.T) {
	adapter := &fakePlanAdapter{generations: []string{validPlanJSON(t)}, dualStage: true, feasible: FeasibilityVerdict{Feasible: true}}
	p := NewPlanner(Adapters{Plan: adapter}, sandbox.NewRegistry(), DefaultOptions(), nil)

	plan, result, err := p.Run(context.Background(), "count even numbers in two stages")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.DualStageUpgraded {
		t.Fatal("expected DualStageUpgraded to be true")
	}
	if plan.ExecutionGraph.Nodes[0].Kind != "switch_scan" {
		t.Fatalf("expected node upgraded to switch_scan, got %q", plan.ExecutionGraph.Nodes[0].Kind)
	}
	if len(plan.ExecutionGraph.Nodes[0].SwitchScan.Stages) != 1 {
		t.Fatalf("expected 1 stage carried over from the original range_scan")
	}
}

func TestPlanner_FeasibilityGate_NeverBlocksOnAdapterError(t *testing.T) {
	adapter := &fakePlanAdapter{
		generations: []string{validPlanJSON(t)},
		feasErr:     errNoMoreScriptedResponses,
	}
	opts := DefaultOptions()
	opts.MaxFeasibilityAttempts = 1
	p := NewPlanner(Adapters{Plan: adapter}, sandbox.NewRegistry(), opts, nil)

	_, result, err := p.Run(context.Background(), "count even numbers")
	if err != nil {
		t.Fatalf("feasibility adapter failure must not block the run: %v", err)
	}
	if !result.Feasibility.Feasible {
		t.Fatal("expected feasibility gate to fail open (advisory pass) on adapter error")
	}
}

func TestPlanner_PreprocessAndRegister_TranslatesIRFunctions(t *testing.T) {
	plan := validPlan()
	plan.Functions[0] = FunctionSpec{
		Name:   "is_even",
		Export: "is_even",
		IR: &IR{Root: IRNode{
			Kind: IREq,
			Args: []IRNode{
				{Kind: IRMod, Args: []IRNode{{Kind: IRVar, Name: "n"}, {Kind: IRConst, Value: 2}}},
				{Kind: IRConst, Value: 0},
			},
		}},
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("marshalling plan: %v", err)
	}

	adapter := &fakePlanAdapter{generations: []string{string(raw)}, feasible: FeasibilityVerdict{Feasible: true}}
	p := NewPlanner(Adapters{Plan: adapter}, sandbox.NewRegistry(), DefaultOptions(), nil)

	_, result, err := p.Run(context.Background(), "is a number even")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.RegisteredFuncs) != 1 {
		t.Fatalf("expected is_even registered from translated IR, got %v", result.RegisteredFuncs)
	}
}

func TestPlanner_ArtifactPersistence_StoresPlanWhenRequested(t *testing.T) {
	adapter := &fakePlanAdapter{generations: []string{validPlanJSON(t)}, feasible: FeasibilityVerdict{Feasible: true}}
	opts := DefaultOptions()
	opts.PersistPlan = true
	store := NewMemoryArtifactStore()
	p := NewPlanner(Adapters{Plan: adapter}, sandbox.NewRegistry(), opts, store)

	_, result, err := p.Run(context.Background(), "count even numbers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path, ok := result.ArtifactPaths["plan"]
	if !ok {
		t.Fatal("expected a plan artifact path to be recorded")
	}
	if _, ok := store.Get(path); !ok {
		t.Fatalf("expected artifact %q to be present in the store", path)
	}
}

func TestPlanner_RunFromJSON_SkipsGeneration(t *testing.T) {
	adapter := &fakePlanAdapter{feasible: FeasibilityVerdict{Feasible: true}}
	p := NewPlanner(Adapters{Plan: adapter}, sandbox.NewRegistry(), DefaultOptions(), nil)

	plan, _, err := p.RunFromJSON(context.Background(), "count even numbers", validPlanJSON(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan == nil {
		t.Fatal("expected a plan")
	}
	if adapter.genCalls != 0 {
		t.Fatalf("expected GeneratePlan never called when a plan file is supplied, got %d calls", adapter.genCalls)
	}
}

// rejectingConsensusHook always refuses, so tests can tell whether the
// planner actually consulted it.
type rejectingConsensusHook struct{ consulted bool }

func (h *rejectingConsensusHook) Consult(context.Context, AnomalyReport) (bool, error) {
	h.consulted = true
	return false, nil
}

func TestPlanner_ConsensusHook_ConsultedOnlyWhenFeasibilityRaisesConcerns(t *testing.T) {
	adapter := &fakePlanAdapter{
		generations: []string{validPlanJSON(t)},
		feasible:    FeasibilityVerdict{Feasible: true, Concerns: []string{"unbounded recursion risk"}},
	}
	hook := &rejectingConsensusHook{}
	p := NewPlanner(Adapters{Plan: adapter}, sandbox.NewRegistry(), DefaultOptions(), nil)
	p.Options.EnableConsensus = true
	p.Consensus = hook

	_, result, err := p.Run(context.Background(), "count even numbers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hook.consulted {
		t.Fatal("expected the consensus hook to be consulted when feasibility reports concerns")
	}
	if result.ConsensusAccepted {
		t.Fatal("expected ConsensusAccepted to reflect the hook's rejection")
	}
}

func TestPlanner_ConsensusHook_NotConsultedWhenDisabled(t *testing.T) {
	adapter := &fakePlanAdapter{
		generations: []string{validPlanJSON(t)},
		feasible:    FeasibilityVerdict{Feasible: true, Concerns: []string{"unbounded recursion risk"}},
	}
	hook := &rejectingConsensusHook{}
	p := NewPlanner(Adapters{Plan: adapter}, sandbox.NewRegistry(), DefaultOptions(), nil)
	p.Consensus = hook

	_, _, err := p.Run(context.Background(), "count even numbers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hook.consulted {
		t.Fatal("expected the consensus hook not to be consulted when EnableConsensus is false")
	}
}
