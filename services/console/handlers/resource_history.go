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

// GetHistory returns a resource's change records, oldest first.
func (s *Service) GetHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("resourceId")
		if _, err := s.inventory.Get(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "resource not found", "resourceId": id})
			return
		}

		recs, err := s.history.ForResource(c.Request.Context(), id)
		if err != nil {
			s.logger.Error("reading history failed", "resource_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
			return
		}

		views := make([]datatypes.ChangeRecordView, 0, len(recs))
		for _, rec := range recs {
			views = append(views, datatypes.ChangeRecordView{
				ResourceID:     rec.ResourceID,
				BatchID:        rec.BatchID,
				Timestamp:      rec.Timestamp,
				Actor:          rec.Actor,
				ChangeType:     rec.ChangeType,
				PreviousLabels: rec.PreviousLabels,
				NewLabels:      rec.NewLabels,
			})
		}
		c.JSON(http.StatusOK, gin.H{"resourceId": id, "records": views})
	}
}
