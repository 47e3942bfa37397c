// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transport wraps a single remote call with exponential backoff
// retry on transient failure.
//
// What counts as transient is decided by the caller-supplied classifier:
// typically rate-limit responses, server errors, and network failures.
// Precondition failures (stale version tokens) are never retried here;
// they need a token refresh first, which is the resource mutator's job.
package transport

import (
	"context"
	"math/rand"
	"time"
)

// Policy configures retry behavior with exponential backoff.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	// Default: 500ms
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries.
	// Default: 8s
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied after each retry.
	// Default: 2.0
	BackoffFactor float64

	// JitterFactor is the maximum jitter as a fraction of backoff (0-1).
	// Adds randomness to prevent thundering herd. Default: 0.2
	JitterFactor float64
}

// DefaultPolicy returns the forward-path retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

// RollbackPolicy returns the retry policy for compensating writes.
//
// Rollback favors certainty over speed: one initial attempt plus three
// retries at 1s, 2s, 4s, no jitter. Kept separate from DefaultPolicy by
// design; the two paths are tuned independently.
func RollbackPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     4 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0,
	}
}

// Validate checks that the policy is internally consistent.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrInvalidPolicy
	}
	if p.InitialBackoff <= 0 {
		return ErrInvalidPolicy
	}
	if p.MaxBackoff < p.InitialBackoff {
		return ErrInvalidPolicy
	}
	if p.BackoffFactor < 1.0 {
		return ErrInvalidPolicy
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		return ErrInvalidPolicy
	}
	return nil
}

// Classifier reports whether an error is transient and worth retrying.
type Classifier func(error) bool

// Operation is a single remote call. It should respect ctx cancellation.
type Operation func(ctx context.Context) error

// Retrier executes operations under a Policy.
//
// # Thread Safety
//
// Safe for concurrent use; Retrier holds no per-call state.
type Retrier struct {
	policy    Policy
	retryable Classifier
}

// NewRetrier creates a Retrier.
//
// # Inputs
//
//   - policy: Backoff configuration. Zero-value fields are not defaulted;
//     use DefaultPolicy or RollbackPolicy as a starting point.
//   - retryable: Classifier for transient errors. Must not be nil.
//
// # Outputs
//
//   - *Retrier: Ready-to-use retrier.
//   - error: ErrInvalidPolicy if the policy fails validation.
func NewRetrier(policy Policy, retryable Classifier) (*Retrier, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if retryable == nil {
		return nil, ErrNilClassifier
	}
	return &Retrier{policy: policy, retryable: retryable}, nil
}

// Do executes op, retrying transient failures with exponential backoff.
//
// Non-retryable errors return immediately and unchanged, so callers can
// inspect them with errors.As. When all attempts fail with transient
// errors, the last error is wrapped in a *RetryExhaustedError; it is
// never swallowed.
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	backoff := r.policy.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !r.retryable(lastErr) {
			return lastErr
		}

		if attempt == r.policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(backoff, r.policy.JitterFactor)):
		}

		backoff = nextBackoff(backoff, r.policy.BackoffFactor, r.policy.MaxBackoff)
	}

	return &RetryExhaustedError{
		Attempts: r.policy.MaxAttempts,
		LastErr:  lastErr,
	}
}

// jittered applies random jitter to a backoff duration.
//
// The result is in [base*(1-jitter), base*(1+jitter)].
func jittered(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return base
	}
	multiplier := 1.0 + (rand.Float64()*2-1)*jitterFactor
	return time.Duration(float64(base) * multiplier)
}

// nextBackoff grows the backoff, capped at max.
func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
