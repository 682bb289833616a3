// Command plannerhost drives one directive through the full planner
// (generate/validate/repair/upgrade/feasibility/register) and then runs the
// resulting plan's execution graph against the strategy engine, printing
// the machine-parseable token stream spec.md §6 describes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/thinksystem/pddfr/internal/config"
	"github.com/thinksystem/pddfr/internal/infrastructure/logger"
	"github.com/thinksystem/pddfr/pkg/planner"
	"github.com/thinksystem/pddfr/pkg/runner"
	"github.com/thinksystem/pddfr/pkg/sandbox"
	"github.com/thinksystem/pddfr/pkg/strategy"
	"github.com/thinksystem/pddfr/pkg/vm"
)

var (
	directive              string
	llmRustFn              bool
	llmPlan                bool
	planFile               string
	offline                bool
	persistPlan            bool
	persistRustFn          bool
	persistFeasibility     bool
	maxPlanAttempts        int
	maxRepairAttempts      int
	maxWATRepairs          int
	maxNullRetries         int
	maxFeasibilityAttempts int
	artifactsDir           string
	useWASI                bool
	debug                  bool
)

var rootCmd = &cobra.Command{
	Use:   "plannerhost",
	Short: "Turn a natural-language directive into a registered plan and run its scans",
	RunE:  runPlannerHost,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&directive, "directive", "", "natural-language directive describing what to plan (required)")
	flags.BoolVar(&llmRustFn, "llm-rust-fn", false, "force the native (Go-plugin) function synthesis path instead of WAT")
	flags.BoolVar(&llmPlan, "llm-plan", false, "force a single-stage plan, skipping dual-stage classification")
	flags.StringVar(&planFile, "plan-file", "", "path to a pre-generated plan JSON document, skipping generation")
	flags.BoolVar(&offline, "offline", false, "disable every LLM call; requires --plan-file or a plan with no missing bodies")
	flags.BoolVar(&persistPlan, "persist-plan", false, "persist the generated plan JSON as an artifact")
	flags.BoolVar(&persistRustFn, "persist-rust-fn", false, "persist every registered function's source as an artifact")
	flags.BoolVar(&persistFeasibility, "persist-feasibility", false, "persist the feasibility verdict as an artifact")
	flags.IntVar(&maxPlanAttempts, "max-plan-attempts", 0, "maximum fresh plan generations (0 uses the built-in default)")
	flags.IntVar(&maxRepairAttempts, "max-repair-attempts", 0, "maximum repair attempts per generation (0 uses the built-in default)")
	flags.IntVar(&maxWATRepairs, "max-wat-repairs", 0, "maximum WAT/native healing attempts per function (0 uses the built-in default)")
	flags.IntVar(&maxNullRetries, "max-null-retries", 0, "maximum regenerations of a function whose probe call returns null (0 uses the built-in default)")
	flags.IntVar(&maxFeasibilityAttempts, "max-feasibility-attempts", 0, "maximum feasibility-gate attempts (0 uses the built-in default)")
	flags.StringVar(&artifactsDir, "artifacts-dir", "", "directory persisted artifacts are written under (overrides PDDFR_ARTIFACTS_DIR)")
	flags.BoolVar(&useWASI, "use-wasi", false, "instantiate compiled WAT functions with WASI preview1 imports")
	flags.BoolVar(&debug, "debug", false, "enable debug-level logging")

	if err := rootCmd.MarkFlagRequired("directive"); err != nil {
		panic(err)
	}
}

// exitCodeError carries the process exit code a failure should surface as,
// distinguishing spec.md §6's out-of-gas/timeout exit code 2 from a plain
// error's exit code 1.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var outOfGas *vm.OutOfGasError
	var outOfFuel *sandbox.OutOfFuelError
	if errors.As(err, &outOfGas) || errors.As(err, &outOfFuel) || errors.Is(err, context.DeadlineExceeded) {
		return &exitCodeError{code: 2, err: err}
	}
	return &exitCodeError{code: 1, err: err}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) {
			fmt.Fprintln(os.Stderr, "plannerhost:", ec.Error())
			os.Exit(ec.code)
		}
		fmt.Fprintln(os.Stderr, "plannerhost:", err)
		os.Exit(1)
	}
}

func runPlannerHost(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return classifyErr(fmt.Errorf("loading configuration: %w", err))
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// runID correlates every log line from this invocation the way the
	// teacher's grpc handlers correlate a request to a workflow/execution
	// uuid, generalised to one id per planner run rather than per stored
	// entity (this run's plan/functions are not independently addressable
	// the way a workflow or execution row is). It rides the context rather
	// than a direct .With so every collaborator invoked with ctx can recover
	// it via logger.WithContext without threading *Logger everywhere.
	runID := uuid.New().String()
	ctx = logger.WithRunID(ctx, runID)
	appLogger = appLogger.WithContext(ctx)

	if artifactsDir != "" {
		cfg.Planner.ArtifactsDir = artifactsDir
	}

	registry := sandbox.NewRegistry()

	adapters, err := buildAdapters(cfg)
	if err != nil {
		return classifyErr(err)
	}

	opts := planner.DefaultOptions()
	if maxPlanAttempts > 0 {
		opts.MaxPlanAttempts = maxPlanAttempts
	}
	if maxRepairAttempts > 0 {
		opts.MaxRepairAttempts = maxRepairAttempts
	}
	if maxWATRepairs > 0 {
		opts.MaxWATRepairs = maxWATRepairs
	}
	if maxNullRetries > 0 {
		opts.MaxNullRetries = maxNullRetries
	}
	if maxFeasibilityAttempts > 0 {
		opts.MaxFeasibilityAttempts = maxFeasibilityAttempts
	}
	opts.PersistPlan = persistPlan
	opts.PersistRustFn = persistRustFn
	opts.PersistFeasibility = persistFeasibility
	opts.UseWASI = useWASI
	opts.EnableConsensus = cfg.Planner.EnableConsensus
	opts.ForcePlanPath = llmPlan
	opts.ForceNativeFn = llmRustFn

	store, err := buildArtifactStore(cfg, opts)
	if err != nil {
		return classifyErr(err)
	}

	p := planner.NewPlanner(adapters, registry, opts, store)

	var plan *planner.Plan
	var result *planner.RunResult
	if planFile != "" {
		raw, err := os.ReadFile(planFile)
		if err != nil {
			return classifyErr(fmt.Errorf("reading --plan-file %q: %w", planFile, err))
		}
		plan, result, err = p.RunFromJSON(ctx, directive, string(raw))
		if err != nil {
			return classifyErr(fmt.Errorf("running plan from %q: %w", planFile, err))
		}
	} else {
		plan, result, err = p.Run(ctx, directive)
		if err != nil {
			return classifyErr(fmt.Errorf("running planner: %w", err))
		}
	}

	appLogger.Info("plan registered",
		"functions", result.RegisteredFuncs,
		"plan_attempts", result.PlanAttempts,
		"dual_stage_upgraded", result.DualStageUpgraded,
		"feasible", result.Feasibility.Feasible,
	)

	if plan.ExecutionGraph == nil {
		fmt.Println(`FINAL_RESULT {"status":"error","message":"plan has no execution_graph to run"}`)
		return nil
	}

	progress := func(scanned int64) {
		appLogger.Debug("scan progress", "scanned", scanned)
	}

	nodeResults, err := runner.RunExecutionGraph(ctx, plan, registry, progress)
	if err != nil {
		return classifyErr(fmt.Errorf("running execution graph: %w", err))
	}

	printResults(nodeResults)
	return nil
}

func printResults(nodeResults []runner.NodeResult) {
	for _, nr := range nodeResults {
		switch {
		case nr.Scan != nil:
			printScanResult(nr.Scan)
		case nr.Switch != nil:
			for i, stage := range nr.Switch.Stages {
				if stage == nil {
					continue
				}
				fmt.Printf("SWITCH_STAGE %d %d %g\n", i, stage.BestN, stage.BestScore)
			}
			if len(nr.Switch.Stages) > 0 {
				last := nr.Switch.Stages[len(nr.Switch.Stages)-1]
				if last != nil {
					printScanResult(last)
				}
			}
		}
	}
}

func printScanResult(res *strategy.ScanResult) {
	if !res.Found {
		fmt.Println(`FINAL_RESULT {"status":"error","message":"no candidate satisfied the evaluator"}`)
		return
	}
	fmt.Printf("RESULT %d\n", res.BestN)
	for _, c := range res.Top {
		fmt.Printf("TOP_ITEM %d %g\n", c.N, c.Score)
	}
	for _, c := range res.Pareto {
		fmt.Printf("PARETO_ITEM %d %g %g\n", c.N, c.Score, c.Aux)
	}
}

// buildAdapters selects the plan- and function-level LLM collaborators per
// --offline and the LLM_PROVIDER/PLAN_LLM_*/FN_LLM_* configuration: only
// the openai provider has a concrete adapter today, matching the rest of
// the tree's single-bound-provider shape (pkg/sandbox.OpenAIAdapter,
// pkg/planner.OpenAIPlanAdapter).
func buildAdapters(cfg *config.Config) (planner.Adapters, error) {
	if offline {
		return planner.Adapters{Plan: planner.OfflineAdapter{}}, nil
	}

	if cfg.LLM.PlanProvider != "openai" {
		return planner.Adapters{}, fmt.Errorf("unsupported plan LLM provider %q (only openai is wired)", cfg.LLM.PlanProvider)
	}
	planAdapter := planner.NewOpenAIPlanAdapter(cfg.LLM.PlanAPIKey, cfg.LLM.PlanModel)

	if cfg.LLM.FnProvider != "openai" {
		return planner.Adapters{}, fmt.Errorf("unsupported function LLM provider %q (only openai is wired)", cfg.LLM.FnProvider)
	}
	fnAdapter := sandbox.NewOpenAIAdapter(cfg.LLM.FnAPIKey, cfg.LLM.FnModel)

	return planner.Adapters{Plan: planAdapter, Fn: fnAdapter}, nil
}

// buildArtifactStore returns a FileArtifactStore rooted at cfg.Planner.ArtifactsDir
// when any --persist-* flag is set, and an in-memory store otherwise.
func buildArtifactStore(cfg *config.Config, opts *planner.Options) (planner.ArtifactStore, error) {
	if !opts.PersistPlan && !opts.PersistRustFn && !opts.PersistFeasibility {
		return planner.NewMemoryArtifactStore(), nil
	}
	store, err := planner.NewFileArtifactStore(cfg.Planner.ArtifactsDir, time.Now())
	if err != nil {
		return nil, fmt.Errorf("creating file artifact store under %q: %w", cfg.Planner.ArtifactsDir, err)
	}
	return store, nil
}
