// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates label mutations as pseudo-atomic units.
//
// The remote API offers no multi-resource transaction primitive, so
// atomicity here is an illusion constructed by the client: optimistic
// concurrency detects interference per resource, and compensating
// writes approximate rollback. The design accepts that rollback itself
// can fail and reports that loudly instead of claiming a clean revert.
package engine

import (
	"context"

	"github.com/AleutianAI/labelops/services/labeler/cloud"
)

// TxState is the lifecycle state of a batch transaction.
//
// Transitions are monotone: Running→Committed is terminal success,
// Running→RollingBack→Aborted is terminal failure. No other transitions
// exist.
type TxState int

const (
	// StateRunning is the initial state; chunks are being processed.
	StateRunning TxState = iota

	// StateCommitted means every item succeeded. Terminal.
	StateCommitted

	// StateRollingBack means at least one item failed and compensating
	// writes are in flight.
	StateRollingBack

	// StateAborted means all compensating writes have been attempted,
	// successfully or not. Terminal.
	StateAborted
)

// String returns the human-readable state name.
func (s TxState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCommitted:
		return "committed"
	case StateRollingBack:
		return "rolling-back"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// validNext enumerates the legal state machine edges.
var validNext = map[TxState][]TxState{
	StateRunning:     {StateCommitted, StateRollingBack},
	StateRollingBack: {StateAborted},
}

// Phase labels a progress update's stage.
type Phase string

const (
	// PhaseUpdating covers the forward pass.
	PhaseUpdating Phase = "updating"

	// PhaseRollingBack covers compensating writes.
	PhaseRollingBack Phase = "rolling-back"
)

// Progress is one progress-reporting tuple. During the forward pass
// Processed counts completed items, success or failure. During rollback
// it counts successful compensating writes and Total the number of
// items that had committed before the failure.
type Progress struct {
	BatchID   string `json:"batchId"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Phase     Phase  `json:"phase"`
}

// ProgressSink receives progress updates from the coordinator. A UI
// binding typically renders these as a progress bar. Updates carry the
// batch id so a sink serving several concurrent batches can keep their
// displays apart.
type ProgressSink interface {
	// Publish reports the latest progress tuple.
	Publish(p Progress)

	// Clear resets the named batch's display to "no operation in
	// progress". Called a short delay after a terminal state.
	Clear(batchID string)
}

// Severity classifies notifications.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notifier receives user-facing messages. The coordinator emits exactly
// one terminal notification per transaction, plus an informational one
// when rollback begins.
type Notifier interface {
	Notify(message string, severity Severity)
}

// LabelMutator is the per-resource mutation dependency; satisfied by
// *cloud.Mutator.
type LabelMutator interface {
	UpdateLabels(ctx context.Context, r *cloud.ManagedResource, desired map[string]string) error
}

// ItemFailure records one forward-pass item failure.
type ItemFailure struct {
	ResourceID string
	Err        error
}

// BatchResult summarizes a finished batch transaction.
type BatchResult struct {
	// TransactionID is the batch's unique id.
	TransactionID string

	// State is the terminal state (Committed or Aborted).
	State TxState

	// Attempted is the number of items admitted at start.
	Attempted int

	// Succeeded is the number of forward writes that committed.
	Succeeded int

	// Reverted is the number of successful compensating writes.
	Reverted int

	// Failures holds the forward-pass failures that triggered rollback.
	Failures []ItemFailure

	// Inconsistencies holds resources whose compensating write
	// exhausted its retries: their true remote state no longer matches
	// what this client believes. Never safe to treat as reverted.
	Inconsistencies []*RollbackInconsistencyError
}

// batchTransaction is the coordinator-owned mutable transaction state.
// Exclusively owned by one Run invocation; no other component mutates
// it.
type batchTransaction struct {
	id             string
	items          []cloud.LabelUpdateRequest
	originalLabels map[string]map[string]string
	successfulIDs  map[string]struct{}
	failed         []ItemFailure
	state          TxState
	processed      int
}

// committedOrder returns the committed resource IDs in batch item
// order, so compensation and reporting are deterministic.
func (tx *batchTransaction) committedOrder() []string {
	ids := make([]string, 0, len(tx.successfulIDs))
	for _, it := range tx.items {
		if _, ok := tx.successfulIDs[it.Resource.ID]; ok {
			ids = append(ids, it.Resource.ID)
		}
	}
	return ids
}

// transition advances the state machine, enforcing monotonicity.
func (tx *batchTransaction) transition(to TxState) error {
	for _, next := range validNext[tx.state] {
		if next == to {
			tx.state = to
			return nil
		}
	}
	return &StateTransitionError{From: tx.state, To: to}
}
