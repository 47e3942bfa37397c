// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the console API's request and response
// shapes.
package datatypes

import "time"

// BatchItem is one resource's target label set within a batch request.
// Labels is the complete replacement set, not a diff.
type BatchItem struct {
	ResourceID string            `json:"resourceId" binding:"required"`
	Labels     map[string]string `json:"labels" binding:"required,labelset"`
}

// BatchRequest starts a bulk label update.
type BatchRequest struct {
	Actor string      `json:"actor" binding:"required"`
	Items []BatchItem `json:"items" binding:"required,min=1,dive"`
}

// BatchAccepted is the 202 response to a started batch.
type BatchAccepted struct {
	BatchID string `json:"batchId"`
	State   string `json:"state"`
	Items   int    `json:"items"`
}

// ItemFailureView is one forward-pass failure in a batch status.
type ItemFailureView struct {
	ResourceID string `json:"resourceId"`
	Error      string `json:"error"`
}

// InconsistencyView is one resource left in an unknown remote state.
type InconsistencyView struct {
	ResourceID string `json:"resourceId"`
	Error      string `json:"error"`
}

// BatchStatus is the current view of a batch transaction.
type BatchStatus struct {
	BatchID         string              `json:"batchId"`
	State           string              `json:"state"`
	Actor           string              `json:"actor"`
	StartedAt       time.Time           `json:"startedAt"`
	FinishedAt      *time.Time          `json:"finishedAt,omitempty"`
	Attempted       int                 `json:"attempted"`
	Succeeded       int                 `json:"succeeded"`
	Reverted        int                 `json:"reverted"`
	Failures        []ItemFailureView   `json:"failures,omitempty"`
	Inconsistencies []InconsistencyView `json:"inconsistencies,omitempty"`
	Error           string              `json:"error,omitempty"`
}

// UpdateRequest applies a single-resource label replacement.
type UpdateRequest struct {
	Actor  string            `json:"actor" binding:"required"`
	Labels map[string]string `json:"labels" binding:"required,labelset"`
}

// ChangeRecordView is one history entry in API form.
type ChangeRecordView struct {
	ResourceID     string            `json:"resourceId"`
	BatchID        string            `json:"batchId,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Actor          string            `json:"actor"`
	ChangeType     string            `json:"changeType"`
	PreviousLabels map[string]string `json:"previousLabels"`
	NewLabels      map[string]string `json:"newLabels"`
}

// Event is one websocket frame pushed to connected consoles.
type Event struct {
	// Type is "progress", "clear", or "notification".
	Type string `json:"type"`

	// BatchID scopes progress and clear frames to one batch, so clients
	// watching concurrent batches can keep the streams apart.
	BatchID string `json:"batchId,omitempty"`

	// Progress fields, present when Type is "progress".
	Processed int    `json:"processed,omitempty"`
	Total     int    `json:"total,omitempty"`
	Phase     string `json:"phase,omitempty"`

	// Notification fields, present when Type is "notification".
	Message  string `json:"message,omitempty"`
	Severity string `json:"severity,omitempty"`
}
