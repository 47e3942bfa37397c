// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the console's HTTP and websocket
// endpoints: batch transactions, single updates, inventory views, and
// change history.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/labelops/services/console/datatypes"
	"github.com/AleutianAI/labelops/services/labeler/cloud"
	"github.com/AleutianAI/labelops/services/labeler/engine"
	"github.com/AleutianAI/labelops/services/labeler/history"
)

// Service bundles the handler dependencies.
type Service struct {
	coordinator *engine.Coordinator
	single      *engine.SingleUpdater
	inventory   cloud.Inventory
	history     history.Store
	logger      *slog.Logger
	tracker     *batchTracker
}

// NewService creates a Service. A nil logger falls back to
// slog.Default.
func NewService(coordinator *engine.Coordinator, single *engine.SingleUpdater, inventory cloud.Inventory, hist history.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		coordinator: coordinator,
		single:      single,
		inventory:   inventory,
		history:     hist,
		logger:      logger.With("component", "console.handlers"),
		tracker:     newBatchTracker(),
	}
}

// batchTracker remembers every batch started through this console so
// clients can poll terminal results after the websocket stream ends.
type batchTracker struct {
	mu      sync.RWMutex
	batches map[string]*datatypes.BatchStatus
}

func newBatchTracker() *batchTracker {
	return &batchTracker{batches: make(map[string]*datatypes.BatchStatus)}
}

func (t *batchTracker) start(batchID, actor string, items int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches[batchID] = &datatypes.BatchStatus{
		BatchID:   batchID,
		State:     engine.StateRunning.String(),
		Actor:     actor,
		StartedAt: time.Now().UTC(),
		Attempted: items,
	}
}

func (t *batchTracker) finish(batchID string, result *engine.BatchResult, runErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.batches[batchID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	status.FinishedAt = &now
	if runErr != nil {
		status.Error = runErr.Error()
	}
	if result == nil {
		status.State = engine.StateAborted.String()
		return
	}
	status.State = result.State.String()
	status.Succeeded = result.Succeeded
	status.Reverted = result.Reverted
	for _, f := range result.Failures {
		status.Failures = append(status.Failures, datatypes.ItemFailureView{
			ResourceID: f.ResourceID,
			Error:      f.Err.Error(),
		})
	}
	for _, inc := range result.Inconsistencies {
		status.Inconsistencies = append(status.Inconsistencies, datatypes.InconsistencyView{
			ResourceID: inc.ResourceID,
			Error:      inc.Error(),
		})
	}
}

func (t *batchTracker) get(batchID string) (*datatypes.BatchStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, ok := t.batches[batchID]
	if !ok {
		return nil, false
	}
	out := *status
	return &out, true
}

// statusForError maps the mutation error taxonomy to HTTP status codes
// for the single-update surface.
func statusForError(err error) int {
	switch {
	case errors.Is(err, cloud.ErrResourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUpdateInFlight):
		return http.StatusConflict
	case errors.Is(err, cloud.ErrNilResource), errors.Is(err, cloud.ErrInvalidResource):
		return http.StatusBadRequest
	case cloud.IsConflict(err):
		return http.StatusConflict
	case isRateLimited(err):
		return http.StatusTooManyRequests
	default:
		// Auth failures, server errors, exhausted retries: the remote
		// side refused us.
		return http.StatusBadGateway
	}
}

func isRateLimited(err error) bool {
	var rle *cloud.RateLimitError
	return errors.As(err, &rle)
}
