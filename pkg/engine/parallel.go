package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thinksystem/pddfr/pkg/flow"
)

// branchOutcome is one ParallelExec branch's result, grounded on
// pkg/engine/sub_workflow.go's subWorkflowItemResult shape (Index/Status/
// Output/Error/DurationMs), generalized from sub-workflow items to branch
// block ids.
type branchOutcome struct {
	BranchID   string
	Value      any
	Err        error
	DurationMs int64
}

// execParallel fans out to every ParallelExec branch with an isolated,
// forked ExecutionContext (branches "do not share context mutations until
// merge" per spec §4.6), bounded by SessionOptions.MaxParallelism, then
// merges per the node's MergeStrategy and writes the merged value at
// OutputPath before continuing at NextBlockID. Grounded on
// pkg/engine/sub_workflow.go's semaphore + WaitGroup fan-out idiom.
func (s *Session) execParallel(n flow.ParallelExec) (stepResult, error) {
	timeout := s.Options.ParallelTimeout
	if n.TimeoutSecs > 0 {
		timeout = time.Duration(n.TimeoutSecs) * time.Second
	}

	maxPar := s.Options.MaxParallelism
	if maxPar <= 0 {
		maxPar = len(n.Branches)
	}
	semaphore := make(chan struct{}, maxPar)

	results := make([]branchOutcome, len(n.Branches))
	var wg sync.WaitGroup

	for i, branchID := range n.Branches {
		wg.Add(1)
		go func(i int, branchID string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			results[i] = s.runBranch(branchID, timeout)
		}(i, branchID)

		safeNotify(s.Notifier, ExecutionEvent{
			Type: EventBranchStarted, SessionID: s.Context.SessionID, FlowID: s.Context.FlowID,
			BlockID: n.Source.BlockID, BranchID: branchID, Timestamp: nowFn(),
		})
	}
	wg.Wait()

	for _, r := range results {
		safeNotify(s.Notifier, ExecutionEvent{
			Type: EventBranchDone, SessionID: s.Context.SessionID, FlowID: s.Context.FlowID,
			BlockID: n.Source.BlockID, BranchID: r.BranchID, Error: r.Err, DurationMs: r.DurationMs, Timestamp: nowFn(),
		})
	}

	merged, err := mergeBranches(n.Merge, results)
	if err != nil {
		return stepResult{}, err
	}

	if len(n.OutputPath) > 0 {
		if err := s.Context.assign(n.OutputPath, merged); err != nil {
			return stepResult{}, err
		}
	}
	return stepResult{kind: stepContinue, next: n.NextBlockID}, nil
}

// runBranch walks branchID to completion (a Terminate block) against a
// forked context, optionally wrapped in SessionOptions.BranchRetryPolicy.
// Branch timeouts surface as a branch-level error, per spec §4.6 ("timeout
// surfaces branch-level error").
func (s *Session) runBranch(branchID string, timeout time.Duration) branchOutcome {
	start := time.Now()
	branchCtx := s.Context.fork(fmt.Sprintf("%s/%s", s.Context.SessionID, branchID))
	branch := &Session{
		Contract: s.Contract,
		Context:  branchCtx,
		Options:  s.Options,
		Notifier: NoopNotifier{},
		Interp:   s.Interp,
	}

	var outcome *Outcome
	run := func() error {
		outcome = branch.Run(branchID)
		if outcome.Status == "failed" {
			return outcome.Err
		}
		return nil
	}

	done := make(chan error, 1)
	go func() {
		if s.Options.BranchRetryPolicy != nil {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			done <- s.Options.BranchRetryPolicy.Execute(ctx, run)
			return
		}
		done <- run()
	}()

	select {
	case err := <-done:
		if err != nil {
			return branchOutcome{BranchID: branchID, Err: err, DurationMs: time.Since(start).Milliseconds()}
		}
		if outcome.Status == "awaiting_input" {
			return branchOutcome{
				BranchID:   branchID,
				Err:        fmt.Errorf("engine: branch %q suspended on AwaitInput, which parallel branches do not support", branchID),
				DurationMs: time.Since(start).Milliseconds(),
			}
		}
		s.Context.merge(branchCtx)
		return branchOutcome{BranchID: branchID, Value: outcome.Result, DurationMs: time.Since(start).Milliseconds()}
	case <-time.After(timeout):
		return branchOutcome{
			BranchID:   branchID,
			Err:        fmt.Errorf("engine: branch %q exceeded timeout %s", branchID, timeout),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
}

// mergeBranches implements the four merge strategies spec §4.6 names.
// "merge overwrites with a map keyed by branch id" governs WaitAll/Majority/
// Custom; FirstComplete instead surfaces a single winning branch's value.
func mergeBranches(strategy flow.MergeStrategy, results []branchOutcome) (any, error) {
	switch strategy {
	case flow.MergeWaitAll:
		merged := make(map[string]any, len(results))
		for _, r := range results {
			if r.Err != nil {
				return nil, fmt.Errorf("engine: parallel branch %q failed: %w", r.BranchID, r.Err)
			}
			merged[r.BranchID] = r.Value
		}
		return merged, nil

	case flow.MergeFirstComplete:
		var fastest *branchOutcome
		for i := range results {
			r := &results[i]
			if r.Err != nil {
				continue
			}
			if fastest == nil || r.DurationMs < fastest.DurationMs {
				fastest = r
			}
		}
		if fastest == nil {
			return nil, fmt.Errorf("engine: all parallel branches failed")
		}
		return fastest.Value, nil

	case flow.MergeMajority, flow.MergeCustom:
		merged := make(map[string]any, len(results))
		succeeded := 0
		for _, r := range results {
			if r.Err == nil {
				merged[r.BranchID] = r.Value
				succeeded++
			}
		}
		if succeeded*2 <= len(results) {
			return nil, fmt.Errorf("engine: parallel branches did not reach a majority (%d/%d succeeded)", succeeded, len(results))
		}
		return merged, nil

	default:
		return nil, fmt.Errorf("engine: unknown merge strategy %q", strategy)
	}
}
