package strategy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ScanResult is one scan pass's output (spec.md §4.8: "{best_n, best_score,
// top?, pareto?}").
type ScanResult struct {
	BestN     int64
	BestScore float64
	BestAux   float64
	Found     bool
	Top       []Candidate
	Pareto    []Candidate
	Scanned   int64
}

// ProgressFunc is invoked every plan.ProgressLogInterval items scanned, from
// an arbitrary worker goroutine — implementations must be safe for
// concurrent use.
type ProgressFunc func(scanned int64)

type chunk struct {
	start, end int64 // inclusive
}

// Scan runs plan against evaluator: shards workers pulling chunk-sized
// contiguous windows from a shared channel (grounded on the teacher's
// executeWave semaphore/WaitGroup pattern, generalized from a bounded
// goroutine count per DAG wave to a bounded worker pool over a work-item
// channel), maintaining a running best, a bounded top-K heap, and a Pareto
// frontier, capped by memory_limit_mb.
func Scan(ctx context.Context, plan StrategyPlan, evaluator Evaluator, progress ProgressFunc) (*ScanResult, error) {
	plan = plan.defaults()
	if err := plan.validate(); err != nil {
		return nil, err
	}

	score, err := newScorer(plan.CustomScoreExpr)
	if err != nil {
		return nil, err
	}
	topKLimit, paretoLimit := capSizesForMemoryLimit(plan.MemoryLimitMB, plan.TopK)

	state := &scanState{
		scorer: score,
		top:    newTopKHeap(topKLimit),
		pareto: newParetoFrontier(paretoLimit),
	}
	memo := NewMemo()

	chunks := make(chan chunk)
	stop := make(chan struct{})
	var stopOnce sync.Once
	requestStop := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		defer close(chunks)
		for start := plan.RangeStart; start <= plan.RangeEnd; start += plan.Chunk {
			end := start + plan.Chunk - 1
			if end > plan.RangeEnd {
				end = plan.RangeEnd
			}
			select {
			case chunks <- chunk{start: start, end: end}:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex
	var scanned int64
	var sinceImprove int64

	worker := func() {
		defer wg.Done()
		for c := range chunks {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			default:
			}
			for n := c.start; n <= c.end; n++ {
				if plan.OddOnly && n%2 == 0 {
					continue
				}
				outcome, err := evaluator.Eval(n, memo)
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("strategy: evaluating n=%d: %w", n, err)
					}
					errMu.Unlock()
					requestStop()
					return
				}

				improved, err := state.offer(Candidate{N: n, Score: outcome.Score, Aux: outcome.Aux}, plan.PreferMinN)
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
					requestStop()
					return
				}

				total := atomic.AddInt64(&scanned, 1)
				if improved {
					atomic.StoreInt64(&sinceImprove, 0)
				} else if plan.EarlyStopNoImprove > 0 {
					if atomic.AddInt64(&sinceImprove, 1) >= plan.EarlyStopNoImprove {
						requestStop()
					}
				}
				if progress != nil && plan.ProgressLogInterval > 0 && total%plan.ProgressLogInterval == 0 {
					progress(total)
				}
				if outcome.Terminate {
					requestStop()
					return
				}

				select {
				case <-stop:
					return
				case <-ctx.Done():
					return
				default:
				}
			}
		}
	}

	wg.Add(plan.Shards)
	for i := 0; i < plan.Shards; i++ {
		go worker()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("strategy: scan cancelled: %w", ctx.Err())
	}

	result := state.result()
	result.Scanned = atomic.LoadInt64(&scanned)
	return result, nil
}

// scanState holds the mutable ranking structures a scan's workers update
// concurrently, behind a single mutex — contention is bounded by eval cost
// per n, which for any real evaluator (DSL step budget, sandboxed function
// call) dwarfs the lock hold time.
type scanState struct {
	mu        sync.Mutex
	scorer    *scorer
	hasBest   bool
	best      Candidate
	top       *topKHeap
	pareto    *paretoFrontier
}

// offer updates the running best/top-K/Pareto frontier with c, returning
// whether it became the new running best.
func (s *scanState) offer(c Candidate, preferMinN bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	improved := false
	if !s.hasBest {
		s.best = c
		s.hasBest = true
		improved = true
	} else {
		better, err := s.scorer.better(c, s.best, preferMinN)
		if err != nil {
			return false, err
		}
		if better {
			s.best = c
			improved = true
		}
	}

	key, err := s.scorer.rankingKey(c)
	if err != nil {
		return false, err
	}
	s.top.offer(c, key)
	s.pareto.offer(c)

	return improved, nil
}

func (s *scanState) result() *ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &ScanResult{
		Found:  s.hasBest,
		Top:    s.top.sorted(),
		Pareto: s.pareto.all(),
	}
	if s.hasBest {
		r.BestN = s.best.N
		r.BestScore = s.best.Score
		r.BestAux = s.best.Aux
	}
	return r
}
