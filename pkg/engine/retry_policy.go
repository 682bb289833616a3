package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// BranchBackoffStrategy selects how BranchRetryPolicy spaces out repeated
// attempts at a failed parallel branch, adapted from the teacher's
// InternalBackoffStrategy enum (pkg/sandbox/heal.go's BackoffStrategy is the
// same adaptation applied to the sandbox's compile-healing loop instead).
type BranchBackoffStrategy string

const (
	BranchBackoffConstant    BranchBackoffStrategy = "constant"
	BranchBackoffLinear      BranchBackoffStrategy = "linear"
	BranchBackoffExponential BranchBackoffStrategy = "exponential"
)

// BranchRetryPolicy governs SessionOptions.BranchRetryPolicy: how many times
// and how aggressively a Session re-runs a parallel branch that failed with
// a retryable error, adapted from the teacher's InternalRetryPolicy.
type BranchRetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Strategy        BranchBackoffStrategy
	RetryableErrors []string // substrings of error text worth retrying; empty means "always retry"
	OnRetry         func(attempt int, err error)
}

// DefaultBranchRetryPolicy returns a sensible default for interactive runs.
func DefaultBranchRetryPolicy() *BranchRetryPolicy {
	return &BranchRetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Strategy:     BranchBackoffExponential,
	}
}

// NoBranchRetryPolicy returns a policy that runs a branch exactly once.
func NoBranchRetryPolicy() *BranchRetryPolicy {
	return &BranchRetryPolicy{MaxAttempts: 1}
}

// ShouldRetry reports whether err's text matches one of the configured
// RetryableErrors patterns, or is always true if none were configured.
func (rp *BranchRetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if len(rp.RetryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, pattern := range rp.RetryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Delay computes the backoff before the given attempt number (1-indexed).
func (rp *BranchRetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	var delay time.Duration
	switch rp.Strategy {
	case BranchBackoffConstant:
		delay = rp.InitialDelay
	case BranchBackoffLinear:
		delay = rp.InitialDelay * time.Duration(attempt)
	case BranchBackoffExponential:
		delay = time.Duration(float64(rp.InitialDelay) * math.Pow(2, float64(attempt-1)))
	default:
		delay = rp.InitialDelay
	}
	if delay > rp.MaxDelay {
		delay = rp.MaxDelay
	}
	return delay
}

// Execute runs fn under this policy, retrying on a retryable error until
// MaxAttempts is reached or ctx is done.
func (rp *BranchRetryPolicy) Execute(ctx context.Context, fn func() error) error {
	if rp.MaxAttempts <= 0 {
		rp.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= rp.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("engine: branch cancelled: %w", ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= rp.MaxAttempts || !rp.ShouldRetry(err) {
			break
		}

		if rp.OnRetry != nil {
			rp.OnRetry(attempt, err)
		}

		delay := rp.Delay(attempt)
		if delay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("engine: branch cancelled during retry delay: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("engine: branch exhausted %d attempt(s): %w", rp.MaxAttempts, lastErr)
}

// IsRetryableBranchError reports whether err looks transient (neither a
// cancellation/deadline nor an explicitly non-temporary/non-timeout error).
func IsRetryableBranchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var temporaryErr interface{ Temporary() bool }
	if errors.As(err, &temporaryErr) {
		return temporaryErr.Temporary()
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Timeout()
	}
	return true
}
