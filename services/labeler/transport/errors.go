// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"errors"
	"strconv"
)

var (
	// ErrInvalidPolicy indicates a retry policy that fails validation.
	ErrInvalidPolicy = errors.New("invalid retry policy")

	// ErrNilClassifier indicates a Retrier constructed without a classifier.
	ErrNilClassifier = errors.New("retry classifier must not be nil")
)

// RetryExhaustedError is returned when every attempt failed with a
// transient error.
type RetryExhaustedError struct {
	// Attempts is the number of attempts made.
	Attempts int

	// LastErr is the error from the final attempt.
	LastErr error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return "retries exhausted after " + strconv.Itoa(e.Attempts) + " attempts: " + e.LastErr.Error()
}

// Unwrap returns the last attempt's error.
func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}
