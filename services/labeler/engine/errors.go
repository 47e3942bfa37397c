// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for batch admission and the single-update path.
var (
	// ErrNoItems indicates a batch with zero items.
	ErrNoItems = errors.New("batch contains no items")

	// ErrDuplicateResource indicates the same resource appears more than
	// once in a batch. Two writes to one resource inside one batch would
	// race on its version token.
	ErrDuplicateResource = errors.New("resource appears more than once in batch")

	// ErrUpdateInFlight indicates a single update was requested for a
	// resource that already has one in progress.
	ErrUpdateInFlight = errors.New("an update for this resource is already in flight")
)

// RollbackInconsistencyError reports a resource whose compensating
// write exhausted all retries. The resource's remote labels no longer
// match either the original or the desired state from this client's
// point of view; an operator must inspect it.
type RollbackInconsistencyError struct {
	// ResourceID is the resource left in an unknown state.
	ResourceID string

	// Cause is the final error from the last compensation attempt.
	Cause error
}

// Error implements the error interface.
func (e *RollbackInconsistencyError) Error() string {
	return fmt.Sprintf("rollback failed for resource %s: %v", e.ResourceID, e.Cause)
}

// Unwrap returns the final compensation error.
func (e *RollbackInconsistencyError) Unwrap() error {
	return e.Cause
}

// StateTransitionError reports an illegal transaction state change.
// Seeing one means a coordinator bug, not an operational failure.
type StateTransitionError struct {
	From TxState
	To   TxState
}

// Error implements the error interface.
func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("illegal transaction state transition %s -> %s", e.From, e.To)
}
