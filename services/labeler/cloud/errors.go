// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cloud

import (
	"errors"
	"net"
	"net/http"
	"strconv"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNilResource indicates a nil *ManagedResource was passed.
	ErrNilResource = errors.New("resource must not be nil")

	// ErrInvalidResource indicates a resource that cannot be addressed remotely.
	ErrInvalidResource = errors.New("invalid resource")

	// ErrResourceNotFound indicates an inventory lookup miss.
	ErrResourceNotFound = errors.New("resource not found")
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// AuthError indicates the remote system rejected the call as
// unauthenticated or unauthorized (401/403). Fatal to the entire
// enclosing operation; never retried, never compensated. The caller is
// expected to force re-authentication.
type AuthError struct {
	// StatusCode is 401 or 403.
	StatusCode int
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return "remote call rejected: HTTP " + strconv.Itoa(e.StatusCode)
}

// ConflictError indicates a version-token mismatch (412): the resource
// changed remotely since our last read. Recoverable once via
// refresh-and-retry at the Mutator; a second conflict is fatal for the
// item.
type ConflictError struct {
	// ResourceID identifies the conflicted resource.
	ResourceID string

	// StaleToken is the token the rejected write carried.
	StaleToken string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return "version conflict on resource " + e.ResourceID
}

// RateLimitError indicates the remote system throttled the call (429).
// Transient; handled by the retry transport.
type RateLimitError struct {
	// ResourceID identifies the throttled call's target.
	ResourceID string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return "rate limited updating resource " + e.ResourceID
}

// ServerError indicates a 5xx from the remote system. Transient;
// handled by the retry transport.
type ServerError struct {
	ResourceID string
	StatusCode int
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return "server error HTTP " + strconv.Itoa(e.StatusCode) + " updating resource " + e.ResourceID
}

// RemoteError is any other non-2xx outcome. Fatal for the item.
type RemoteError struct {
	ResourceID string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	msg := "remote error HTTP " + strconv.Itoa(e.StatusCode) + " on resource " + e.ResourceID
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// classifyStatus maps a non-2xx HTTP status to the error taxonomy.
func classifyStatus(resourceID, staleToken string, status int, message string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{StatusCode: status}
	case status == http.StatusPreconditionFailed:
		return &ConflictError{ResourceID: resourceID, StaleToken: staleToken}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{ResourceID: resourceID}
	case status >= 500:
		return &ServerError{ResourceID: resourceID, StatusCode: status}
	default:
		return &RemoteError{ResourceID: resourceID, StatusCode: status, Message: message}
	}
}

// IsTransient reports whether an error is worth retrying blindly:
// rate limits, server errors, and transport-level network failures.
//
// Conflicts (412) are deliberately excluded. Retrying a stale-token
// write without refreshing the token would fail again; that recovery
// belongs to the Mutator.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var se *ServerError
	if errors.As(err, &se) {
		return true
	}

	// Connection-level failures: server restarting, transient partition.
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsAuth reports whether err is an authentication/authorization failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
