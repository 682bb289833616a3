package strategy

import (
	"context"
	"fmt"
)

// SwitchStage is one stage of a SwitchScan: its own scan plan plus the
// evaluator it scans with (stages may use different evaluators, e.g. a
// cheap DSL filter followed by an expensive registered function).
type SwitchStage struct {
	Plan      StrategyPlan
	Evaluator Evaluator
}

// SwitchScanResult reports every stage's outcome plus which stage the chain
// stopped at.
type SwitchScanResult struct {
	Stages       []*ScanResult
	StoppedEarly bool
	StoppedAt    int
}

// RunSwitchScan chains stages in order, feeding stage i's best score into
// the early-advance check before stage i+1 runs: if the improvement from
// one stage's best to the next fails to clear StageAdvanceMinImprove, the
// chain stops rather than running the remaining stages (spec.md §4.8:
// "stop early when stage_advance_min_improve is not met").
func RunSwitchScan(ctx context.Context, stages []SwitchStage, progress ProgressFunc) (*SwitchScanResult, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("strategy: switch scan requires at least one stage")
	}

	result := &SwitchScanResult{}
	var previousBest float64
	havePrevious := false

	for i, stage := range stages {
		r, err := Scan(ctx, stage.Plan, stage.Evaluator, progress)
		if err != nil {
			return nil, fmt.Errorf("strategy: switch scan stage %d: %w", i, err)
		}
		result.Stages = append(result.Stages, r)

		if havePrevious && r.Found {
			improve := r.BestScore - previousBest
			if improve < stage.Plan.StageAdvanceMinImprove {
				result.StoppedEarly = true
				result.StoppedAt = i
				return result, nil
			}
		}
		if r.Found {
			previousBest = r.BestScore
			havePrevious = true
		}
	}

	result.StoppedAt = len(stages) - 1
	return result, nil
}
