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
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/labelops/services/labeler/cloud"
	"github.com/AleutianAI/labelops/services/labeler/history"
)

// SingleUpdater applies one-off label updates outside any batch
// transaction. It guards each resource with an in-flight marker so two
// interactive edits of the same resource cannot race on its version
// token.
//
// # Thread Safety
//
// Safe for concurrent use.
type SingleUpdater struct {
	mutator LabelMutator
	hist    history.Store
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewSingleUpdater creates a SingleUpdater.
func NewSingleUpdater(mutator LabelMutator, hist history.Store, logger *slog.Logger) *SingleUpdater {
	if logger == nil {
		logger = slog.Default()
	}
	return &SingleUpdater{
		mutator:  mutator,
		hist:     hist,
		logger:   logger.With("component", "engine.SingleUpdater"),
		inFlight: make(map[string]struct{}),
	}
}

// Apply replaces one resource's label set and records the change.
//
// # Outputs
//
//   - error: ErrUpdateInFlight when the resource already has an update
//     in progress; otherwise whatever the mutation surfaced. Nil on
//     success.
func (u *SingleUpdater) Apply(ctx context.Context, actor string, r *cloud.ManagedResource, desired map[string]string) error {
	if err := r.Validate(); err != nil {
		return err
	}

	u.mu.Lock()
	if _, busy := u.inFlight[r.ID]; busy {
		u.mu.Unlock()
		return ErrUpdateInFlight
	}
	u.inFlight[r.ID] = struct{}{}
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		delete(u.inFlight, r.ID)
		u.mu.Unlock()
	}()

	previous := cloud.CloneLabels(r.Labels)
	err := u.mutator.UpdateLabels(ctx, r, desired)
	recordSingleUpdate(ctx, err == nil)
	if err != nil {
		return err
	}

	rec := history.ChangeRecord{
		ResourceID:     r.ID,
		Timestamp:      time.Now().UTC(),
		Actor:          actor,
		ChangeType:     "update",
		PreviousLabels: previous,
		NewLabels:      cloud.CloneLabels(r.Labels),
	}
	if histErr := u.hist.Append(ctx, rec); histErr != nil {
		u.logger.Error("recording update history failed",
			"resource_id", r.ID,
			"error", histErr,
		)
	}
	return nil
}
