package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thinksystem/pddfr/pkg/sandbox"
)

// Planner drives the generate→validate→repair→upgrade→feasibility→
// preprocess→register loop (spec.md §4.7) against a Plan produced from a
// directive, registering every function with Registry before returning.
type Planner struct {
	Adapters Adapters
	Registry *sandbox.Registry
	Options  *Options
	Store    ArtifactStore
	Consensus ConsensusHook

	healing *sandbox.HealingPolicy
}

// NewPlanner constructs a Planner with the given collaborators. A nil
// registry/store/options falls back to a fresh registry, an in-memory store,
// and DefaultOptions respectively; Consensus starts as NoopConsensusHook.
func NewPlanner(adapters Adapters, registry *sandbox.Registry, opts *Options, store ArtifactStore) *Planner {
	if registry == nil {
		registry = sandbox.NewRegistry()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if store == nil {
		store = NewMemoryArtifactStore()
	}
	return &Planner{
		Adapters:  adapters,
		Registry:  registry,
		Options:   opts,
		Store:     store,
		Consensus: NoopConsensusHook{},
		healing: &sandbox.HealingPolicy{
			MaxAttempts:  opts.MaxWATRepairs,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Strategy:     sandbox.BackoffExponential,
		},
	}
}

// RunResult reports what the planner did, beyond the Plan itself, so a CLI
// caller can print per-function artifact paths and the feasibility verdict.
type RunResult struct {
	PlanAttempts       int
	RepairAttempts     int
	DualStageUpgraded  bool
	Feasibility        FeasibilityVerdict
	RegisteredFuncs    []string
	ArtifactPaths      map[string]string
	ConsensusAccepted  bool
}

// Run executes the full C7 loop against a freshly generated plan.
func (p *Planner) Run(ctx context.Context, directive string) (*Plan, *RunResult, error) {
	return p.run(ctx, directive, "")
}

// RunFromJSON skips generation (spec.md §6's --plan-file path) and runs
// every subsequent step (dual-stage upgrade, feasibility, preprocessing,
// registration) against a caller-supplied plan document.
func (p *Planner) RunFromJSON(ctx context.Context, directive, planJSON string) (*Plan, *RunResult, error) {
	return p.run(ctx, directive, planJSON)
}

func (p *Planner) run(ctx context.Context, directive, presuppliedJSON string) (*Plan, *RunResult, error) {
	result := &RunResult{ArtifactPaths: make(map[string]string)}

	plan, err := p.generateValidated(ctx, directive, presuppliedJSON, result)
	if err != nil {
		return nil, result, err
	}

	if upgraded, err := p.enforceDualStage(ctx, directive, plan); err != nil {
		// Classification failure is advisory, not fatal — spec.md §4.7 step 4
		// only upgrades "if yes"; an adapter error means "don't upgrade".
		_ = err
	} else {
		result.DualStageUpgraded = upgraded
	}

	verdict, _ := p.feasibilityGate(ctx, directive, plan)
	result.Feasibility = verdict
	if len(verdict.Concerns) > 0 {
		accepted := maybeConsult(ctx, p.Options.EnableConsensus, p.Consensus, AnomalyReport{
			Kind:    "feasibility_concern",
			Detail:  directive,
			Context: map[string]any{"concerns": verdict.Concerns},
		})
		result.ConsensusAccepted = accepted
	}

	if p.Options.PersistPlan {
		ts := artifactTimestamp()
		name := ArtifactName("plan", "json", ts)
		raw, _ := json.MarshalIndent(plan, "", "  ")
		if path, err := p.Store.Store(name, raw); err == nil {
			result.ArtifactPaths["plan"] = path
		}
	}

	registered, err := p.preprocessAndRegister(ctx, plan, result)
	if err != nil {
		return plan, result, err
	}
	result.RegisteredFuncs = registered

	return plan, result, nil
}

// generateValidated implements spec.md §4.7 steps 1-3: generate, validate,
// repair — nested budgets, grounded on the original system's
// Planner.generate_validated(directive, max_plan_attempts, max_repair_attempts)
// facade: each of up to MaxPlanAttempts fresh generations is followed by up
// to MaxRepairAttempts repair attempts against the same generation before
// falling through to the next fresh generation.
func (p *Planner) generateValidated(ctx context.Context, directive, presuppliedJSON string, result *RunResult) (*Plan, error) {
	var lastErr error

	if presuppliedJSON != "" {
		plan, verr := parseAndValidate(presuppliedJSON)
		if verr == nil {
			return plan, nil
		}
		return nil, &ConvergenceError{LastErr: verr}
	}

	for planAttempt := 1; planAttempt <= p.Options.MaxPlanAttempts; planAttempt++ {
		result.PlanAttempts = planAttempt
		raw, err := p.Adapters.Plan.GeneratePlan(ctx, directive)
		if err != nil {
			lastErr = err
			continue
		}
		plan, verr := parseAndValidate(raw)
		if verr == nil {
			return plan, nil
		}
		lastErr = verr

		for repairAttempt := 1; repairAttempt <= p.Options.MaxRepairAttempts; repairAttempt++ {
			result.RepairAttempts++
			raw, err = p.Adapters.Plan.RepairPlan(ctx, raw, verr.Error())
			if err != nil {
				lastErr = err
				break
			}
			plan, verr = parseAndValidate(raw)
			if verr == nil {
				return plan, nil
			}
			lastErr = verr
		}
	}

	return nil, &ConvergenceError{PlanAttempts: result.PlanAttempts, RepairAttempts: result.RepairAttempts, LastErr: lastErr}
}

func parseAndValidate(raw string) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("planner: plan is not valid JSON: %w", err)
	}
	for i := range plan.Flow.Blocks {
		plan.Flow.Blocks[i].NormaliseOutputKey()
	}
	if err := Validate(&plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// enforceDualStage implements spec.md §4.7 step 4: ask a classifier whether
// the directive needs a multi-stage scan, and if so, upgrade every
// single-stage range_scan node into a one-stage switch_scan (the upgrade
// point where further stages would be appended by a later planning pass).
func (p *Planner) enforceDualStage(ctx context.Context, directive string, plan *Plan) (bool, error) {
	if p.Options.ForcePlanPath {
		return false, nil
	}
	needsUpgrade, err := p.Adapters.Plan.ClassifyDualStage(ctx, directive)
	if err != nil || !needsUpgrade || plan.ExecutionGraph == nil {
		return false, err
	}

	upgraded := false
	for i, node := range plan.ExecutionGraph.Nodes {
		if node.Kind != "range_scan" || node.RangeScan == nil {
			continue
		}
		plan.ExecutionGraph.Nodes[i] = ScanNode{
			Kind: "switch_scan",
			ID:   node.ID,
			SwitchScan: &SwitchScan{
				Stages: []RangeScan{*node.RangeScan},
			},
		}
		upgraded = true
	}
	return upgraded, nil
}

// feasibilityGate implements spec.md §4.7 step 5: advisory only, never
// blocks, retried up to MaxFeasibilityAttempts on adapter error.
func (p *Planner) feasibilityGate(ctx context.Context, directive string, plan *Plan) (FeasibilityVerdict, error) {
	var lastErr error
	for attempt := 1; attempt <= p.Options.MaxFeasibilityAttempts; attempt++ {
		verdict, err := p.Adapters.Plan.AssessFeasibility(ctx, directive, plan)
		if err == nil {
			if p.Options.PersistFeasibility {
				raw, _ := json.MarshalIndent(verdict, "", "  ")
				_, _ = p.Store.Store(ArtifactName("feasibility", "json", artifactTimestamp()), raw)
			}
			return verdict, nil
		}
		lastErr = err
	}
	return FeasibilityVerdict{Feasible: true, Concerns: []string{"feasibility gate failed; treated as advisory pass"}}, lastErr
}

// preprocessAndRegister implements spec.md §4.7 steps 6-7: translate IR
// bodies to WAT locally, synthesise missing bodies via the function
// adapter, then register each with Registry, healing compile failures up
// to MaxWATRepairs times.
func (p *Planner) preprocessAndRegister(ctx context.Context, plan *Plan, result *RunResult) ([]string, error) {
	var registered []string

	for i := range plan.Functions {
		fn := &plan.Functions[i]

		if fn.WAT == "" && fn.IR != nil {
			translated, err := TranslateIR(fn.Name, fn.Export, fn.IR)
			if err != nil {
				return registered, err
			}
			fn.WAT = translated
		}

		if fn.WAT == "" {
			synthesised, err := p.synthesiseWAT(ctx, fn)
			if err != nil {
				return registered, fmt.Errorf("planner: synthesising %q: %w", fn.Name, err)
			}
			fn.WAT = synthesised
		}

		handle, finalSource, err := p.registerWithHealing(ctx, fn)
		if err != nil {
			return registered, fmt.Errorf("planner: registering %q: %w", fn.Name, err)
		}

		handle, finalSource, err = p.retryOnNullResult(ctx, fn, handle, finalSource)
		if err != nil {
			return registered, err
		}

		if err := p.Registry.Register(&sandbox.DynamicFunction{
			Name:      fn.Name,
			Version:   1,
			Mode:      p.synthesisMode(),
			Source:    finalSource,
			CreatedAt: artifactTimestamp(),
			Handle:    handle,
		}); err != nil {
			return registered, err
		}
		registered = append(registered, fn.Name)

		if p.Options.PersistRustFn {
			name := ArtifactName(fmt.Sprintf("wat_%s", fn.Name), "wat", artifactTimestamp())
			if path, err := p.Store.Store(name, []byte(finalSource)); err == nil {
				result.ArtifactPaths[fn.Name] = path
			}
		}
	}

	return registered, nil
}

// synthesisMode reports which sandbox.Mode this run targets for any function
// body it has to generate or compile itself (spec.md §6's --llm-rust-fn
// flag forces sandbox.ModeNative; --use-wasi selects sandbox.ModeWASM, the
// same compiled artifact as ModeWAT but instantiated against the stub
// WASI host imports; the default is plain sandbox.ModeWAT).
func (p *Planner) synthesisMode() sandbox.Mode {
	if p.Options.ForceNativeFn {
		return sandbox.ModeNative
	}
	if p.Options.UseWASI {
		return sandbox.ModeWASM
	}
	return sandbox.ModeWAT
}

func (p *Planner) synthesiseWAT(ctx context.Context, fn *FunctionSpec) (string, error) {
	if p.Adapters.Fn == nil {
		return "", fmt.Errorf("no function adapter configured to synthesise a missing body")
	}
	req := sandbox.GenerationRequest{Directive: fn.Name, TargetMode: p.synthesisMode()}
	src, err := p.Adapters.Fn.GenerateSource(ctx, req)
	if err != nil {
		return "", err
	}
	return src, nil
}

// registerWithHealing compiles fn.WAT, driving sandbox.HealingPolicy's
// regenerate-on-failure loop with the function adapter as Regenerator, up to
// MaxWATRepairs attempts (spec.md §4.7 step 7).
func (p *Planner) registerWithHealing(ctx context.Context, fn *FunctionSpec) (sandbox.Handle, string, error) {
	mode := p.synthesisMode()
	compile := func(src string) (sandbox.Handle, error) {
		if mode == sandbox.ModeNative {
			return sandbox.CompileNative(src, p.Options.NativeBuildDir)
		}
		sanitised, err := sandbox.Sanitise(src)
		if err != nil {
			return nil, err
		}
		return sandbox.CompileWAT(ctx, sanitised, mode == sandbox.ModeWASM)
	}

	var regen sandbox.Regenerator
	if p.Adapters.Fn != nil {
		regen = func(ctx context.Context, previousSource string, compileErr error) (string, error) {
			return p.Adapters.Fn.GenerateSource(ctx, sandbox.GenerationRequest{
				Directive:      fn.Name,
				TargetMode:     mode,
				PreviousSource: previousSource,
				PreviousError:  compileErr.Error(),
			})
		}
	} else {
		regen = func(context.Context, string, error) (string, error) {
			return "", fmt.Errorf("no function adapter configured to regenerate a failed compile")
		}
	}

	handle, err := p.healing.Heal(ctx, fn.WAT, compile, regen)
	if err != nil {
		return nil, "", err
	}
	return handle, fn.WAT, nil
}

// retryOnNullResult implements spec.md §4.7's "a post-execution null/
// degenerate result also triggers regeneration up to the cap" policy: a
// function that compiles cleanly but returns null on a canonical probe call
// is indistinguishable from one the directive never actually solved, so it
// gets the same regenerate-and-recompile treatment as a compile failure,
// bounded by MaxNullRetries.
func (p *Planner) retryOnNullResult(ctx context.Context, fn *FunctionSpec, handle sandbox.Handle, source string) (sandbox.Handle, string, error) {
	attempts := 0
	for probeForNullResult(handle) {
		attempts++
		if attempts > p.Options.MaxNullRetries {
			return nil, "", &NullResultError{Function: fn.Name, Attempts: attempts - 1}
		}
		regenerated, err := p.synthesiseWAT(ctx, fn)
		if err != nil {
			return nil, "", fmt.Errorf("planner: regenerating %q after a null result: %w", fn.Name, err)
		}
		fn.WAT = regenerated
		handle, source, err = p.registerWithHealing(ctx, fn)
		if err != nil {
			return nil, "", fmt.Errorf("planner: registering %q after a null-result regeneration: %w", fn.Name, err)
		}
	}
	return handle, source, nil
}

// probeForNullResult invokes handle with the canonical single-argument
// probe (n=1) every synthesised function's "n"-bound IR/WAT body accepts,
// reporting whether the result is null. A probe that errors (wrong arity,
// a trap) is not this policy's concern — it is compile-healthy and any
// runtime fault is handled by the ordinary TryCatch/terminal-error paths,
// not by regeneration.
func probeForNullResult(handle sandbox.Handle) bool {
	result, err := handle.Invoke([]any{int64(1)})
	if err != nil {
		return false
	}
	return result == nil
}

// artifactTimestamp exists so every caller stamps artifacts the same way;
// workflow scripts calling into this package cannot call time.Now()
// themselves, but pkg/planner is a plain library, not a workflow script, so
// this is just a one-line indirection for readability at call sites.
func artifactTimestamp() time.Time { return time.Now() }
