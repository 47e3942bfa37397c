// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway provides a bounded-concurrency admission queue for
// outbound remote calls.
//
// Every call to the remote resource API goes through a Gateway so that at
// most N requests are in flight at once, regardless of how many callers
// submit work. Waiters are admitted in FIFO order. The gateway imposes no
// timeout of its own; callers carry their own deadlines via context.
package gateway

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultLimit is the default number of concurrent in-flight calls.
// Sized to stay under typical per-user API rate limits.
const DefaultLimit = 10

// Option configures a Gateway.
type Option func(*Gateway)

// WithRateLimit adds request pacing on top of the concurrency bound.
//
// Even when fewer than N calls are in flight, admissions are spaced so
// that no more than rps requests start per second, with the given burst
// allowance. Useful against APIs that rate-limit on request starts rather
// than concurrency.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Gateway) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Gateway admits at most N concurrent tasks.
//
// # Thread Safety
//
// Safe for concurrent use. Admission order for blocked callers is FIFO
// (semaphore.Weighted queues waiters in arrival order). Failure of one
// task has no effect on the scheduling of others.
type Gateway struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	limit   int

	inFlight atomic.Int64
}

// New creates a Gateway admitting at most limit concurrent tasks.
//
// A limit below 1 is coerced to 1.
func New(limit int, opts ...Option) *Gateway {
	if limit < 1 {
		limit = 1
	}
	g := &Gateway{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do runs task once a slot is free, blocking until then.
//
// # Inputs
//
//   - ctx: Context for cancellation. A caller cancelled while queued
//     never runs its task.
//   - task: The work to execute. Receives the caller's context.
//
// # Outputs
//
//   - error: The task's error, or ctx.Err() if cancelled while waiting.
//
// The slot is held for the duration of the task only; backoff waits
// belong outside the gateway so a sleeping retry does not starve other
// callers.
func (g *Gateway) Do(ctx context.Context, task func(context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	return task(ctx)
}

// InFlight returns the number of tasks currently running.
func (g *Gateway) InFlight() int64 {
	return g.inFlight.Load()
}

// Limit returns the configured concurrency bound.
func (g *Gateway) Limit() int {
	return g.limit
}
