package sandbox

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// BackoffStrategy selects how HealingPolicy spaces out repair attempts,
// adapted from the teacher's InternalBackoffStrategy enum.
type BackoffStrategy string

const (
	BackoffConstant    BackoffStrategy = "constant"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// HealingPolicy governs how many times and how aggressively the sandbox
// retries a compile failure by regenerating source through an LLMAdapter,
// adapted from the teacher's InternalRetryPolicy/ShouldRetry/GetDelay/
// Execute (pkg/engine/retry_policy.go), generalized from "retry a failed
// node execution" to "heal then regenerate a failed compile".
type HealingPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Strategy        BackoffStrategy
	RetryableErrors []string // substrings of compile error text worth retrying; empty means "always retry"
	OnRetry         func(attempt int, err error)
}

// DefaultHealingPolicy mirrors the teacher's DefaultInternalRetryPolicy.
func DefaultHealingPolicy() *HealingPolicy {
	return &HealingPolicy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Strategy:     BackoffExponential,
	}
}

// ShouldRetry reports whether err's text matches one of the configured
// RetryableErrors patterns, or is always true if none were configured.
func (p *HealingPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if len(p.RetryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, pattern := range p.RetryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Delay computes the backoff before the given attempt number (1-indexed).
func (p *HealingPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	var delay time.Duration
	switch p.Strategy {
	case BackoffConstant:
		delay = p.InitialDelay
	case BackoffLinear:
		delay = p.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		delay = time.Duration(float64(p.InitialDelay) * math.Pow(2, float64(attempt-1)))
	default:
		delay = p.InitialDelay
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Regenerator produces a fresh source candidate given the previous attempt's
// source and the compile error it produced. Implementations call an
// LLMAdapter to ask for a corrected version.
type Regenerator func(ctx context.Context, previousSource string, compileErr error) (string, error)

// Heal runs compile repeatedly, regenerating the source via regen after each
// retryable failure, up to MaxAttempts total attempts. It returns the last
// successful Handle, or the final error if every attempt failed.
func (p *HealingPolicy) Heal(ctx context.Context, source string, compile func(src string) (Handle, error), regen Regenerator) (Handle, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	var lastErr error
	src := source

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("sandbox: healing cancelled: %w", ctx.Err())
		default:
		}

		handle, err := compile(src)
		if err == nil {
			return handle, nil
		}
		lastErr = err

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if !p.ShouldRetry(err) || attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("sandbox: healing cancelled: %w", ctx.Err())
		case <-time.After(p.Delay(attempt)):
		}

		if regen == nil {
			continue
		}
		newSrc, regenErr := regen(ctx, src, err)
		if regenErr != nil {
			lastErr = fmt.Errorf("sandbox: regeneration failed after compile error %w: %w", err, regenErr)
			break
		}
		src = newSrc
	}

	return nil, fmt.Errorf("sandbox: healing exhausted after %d attempts: %w", p.MaxAttempts, lastErr)
}
