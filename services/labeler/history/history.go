// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history persists per-resource label change records.
//
// Records are append-only and ordered per resource. The bulk
// transaction coordinator appends once per committed batch, never per
// item; the single-update path appends one record per successful write.
package history

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEmptyAppend indicates a bulk append with no records.
var ErrEmptyAppend = errors.New("no history records to append")

// ChangeRecord captures one label mutation on one resource.
type ChangeRecord struct {
	// ResourceID identifies the mutated resource.
	ResourceID string `json:"resourceId"`

	// BatchID groups records committed by one bulk transaction; empty
	// for single updates.
	BatchID string `json:"batchId,omitempty"`

	// Timestamp is when the mutation committed.
	Timestamp time.Time `json:"timestamp"`

	// Actor is who requested the change.
	Actor string `json:"actor"`

	// ChangeType is "update" for single writes, "bulk-update" for batch
	// commits, "rollback" is never recorded (reverts restore state, they
	// do not extend history).
	ChangeType string `json:"changeType"`

	// PreviousLabels is the label set before the write.
	PreviousLabels map[string]string `json:"previousLabels"`

	// NewLabels is the label set after the write.
	NewLabels map[string]string `json:"newLabels"`
}

// Store is the history/persistence collaborator contract.
type Store interface {
	// Append records one change.
	Append(ctx context.Context, rec ChangeRecord) error

	// BulkAppend records a committed batch atomically where the backend
	// allows it. Called once per committed transaction.
	BulkAppend(ctx context.Context, recs []ChangeRecord) error

	// ForResource returns a resource's records, oldest first.
	ForResource(ctx context.Context, resourceID string) ([]ChangeRecord, error)
}

// MemoryStore is an in-memory Store. Used in tests and as the default
// when no durable backend is configured.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]ChangeRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]ChangeRecord)}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, rec ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ResourceID] = append(s.records[rec.ResourceID], rec)
	return nil
}

// BulkAppend implements Store.
func (s *MemoryStore) BulkAppend(ctx context.Context, recs []ChangeRecord) error {
	if len(recs) == 0 {
		return ErrEmptyAppend
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.records[rec.ResourceID] = append(s.records[rec.ResourceID], rec)
	}
	return nil
}

// ForResource implements Store.
func (s *MemoryStore) ForResource(ctx context.Context, resourceID string) ([]ChangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.records[resourceID]
	out := make([]ChangeRecord, len(recs))
	copy(out, recs)
	return out, nil
}
