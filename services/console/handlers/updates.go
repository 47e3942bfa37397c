// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/labelops/services/console/datatypes"
)

// UpdateLabels applies a single-resource label replacement
// synchronously. Unlike batches, the caller waits for the outcome.
func (s *Service) UpdateLabels() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("resourceId")
		var req datatypes.UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resource, err := s.inventory.Get(id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "resource not found", "resourceId": id})
			return
		}

		if err := s.single.Apply(c.Request.Context(), req.Actor, resource, req.Labels); err != nil {
			s.logger.Warn("single update failed",
				"resource_id", id,
				"error", err,
			)
			c.JSON(statusForError(err), gin.H{"error": err.Error(), "resourceId": id})
			return
		}

		c.JSON(http.StatusOK, resource)
	}
}
