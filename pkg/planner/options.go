package planner

// Options bounds the generate→validate→repair→upgrade→feasibility→
// preprocess→register loop, per spec.md §4.7/§6's CLI flag set.
type Options struct {
	MaxPlanAttempts        int
	MaxRepairAttempts      int
	MaxWATRepairs          int
	MaxNullRetries         int
	MaxFeasibilityAttempts int

	// PersistPlan/PersistFeasibility/PersistRustFn gate ArtifactStore writes
	// for each artifact kind; false means the run never calls Store for it.
	PersistPlan        bool
	PersistFeasibility bool
	PersistRustFn      bool

	// UseWASI selects sandbox.ModeWASM over the default sandbox.ModeWAT: the
	// compiled artifact is identical, but CompileWAT instantiates it against
	// the no-op wasi_snapshot_preview1 stub host module instead of no WASI
	// imports at all.
	UseWASI bool

	// EnableConsensus gates the optional anomaly/consensus hook (spec.md §9,
	// FLOW_ENABLE_CONSENSUS), off by default.
	EnableConsensus bool

	// ForcePlanPath corresponds to the CLI's --llm-plan flag: it skips the
	// dual-stage classification call and always keeps a plan's execution
	// graph single-stage, regardless of what ClassifyDualStage would answer.
	ForcePlanPath bool

	// ForceNativeFn corresponds to the CLI's --llm-rust-fn flag: it routes
	// function synthesis and registration through sandbox.ModeNative/
	// CompileNative instead of the default sandbox.ModeWAT/CompileWAT path.
	ForceNativeFn bool

	// NativeBuildDir is the scratch directory sandbox.CompileNative uses to
	// materialise and build a synthesised Go source file, only consulted
	// when ForceNativeFn is set.
	NativeBuildDir string
}

// DefaultOptions mirrors the teacher's Default*Policy constructors: sensible
// bounds for interactive use, never unbounded.
func DefaultOptions() *Options {
	return &Options{
		MaxPlanAttempts:        3,
		MaxRepairAttempts:      3,
		MaxWATRepairs:          3,
		MaxNullRetries:         2,
		MaxFeasibilityAttempts: 1,
	}
}
