// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	// MaxLabelsPerResource caps one resource's label set. Cloud label
	// APIs cap at 64; we inherit that limit.
	MaxLabelsPerResource = 64

	// MaxLabelLength caps both keys and values.
	MaxLabelLength = 63
)

// labelKeyPattern follows cloud label key rules: lowercase letter
// first, then lowercase letters, digits, underscores, and hyphens.
var labelKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("labelset", validateLabelSet)
	}
}

// validateLabelSet checks a map[string]string against the label rules
// the remote API enforces, so malformed requests fail at binding time
// instead of mid-batch.
func validateLabelSet(fl validator.FieldLevel) bool {
	labels, ok := fl.Field().Interface().(map[string]string)
	if !ok {
		return false
	}
	if len(labels) > MaxLabelsPerResource {
		return false
	}
	for k, v := range labels {
		if len(k) > MaxLabelLength || len(v) > MaxLabelLength {
			return false
		}
		if !labelKeyPattern.MatchString(k) {
			return false
		}
	}
	return true
}
