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
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/labelops/services/console/datatypes"
	"github.com/AleutianAI/labelops/services/labeler/cloud"
)

// StartBatch accepts a bulk label update and runs it asynchronously.
//
// The response is 202 with the batch id; progress streams over the
// websocket and the terminal result is available via GetBatch. Items
// are resolved against the inventory before the batch starts, so an
// unknown resource id fails the request without any remote write.
func (s *Service) StartBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		seen := make(map[string]struct{}, len(req.Items))
		items := make([]cloud.LabelUpdateRequest, 0, len(req.Items))
		for _, item := range req.Items {
			if _, dup := seen[item.ResourceID]; dup {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":      "resource appears more than once in batch",
					"resourceId": item.ResourceID,
				})
				return
			}
			seen[item.ResourceID] = struct{}{}

			resource, err := s.inventory.Get(item.ResourceID)
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{
					"error":      "resource not found",
					"resourceId": item.ResourceID,
				})
				return
			}
			items = append(items, cloud.LabelUpdateRequest{
				Resource:      resource,
				DesiredLabels: item.Labels,
			})
		}

		batchID := uuid.NewString()
		s.tracker.start(batchID, req.Actor, len(items))
		s.logger.Info("batch accepted",
			"batch_id", batchID,
			"item_count", len(items),
			"actor", req.Actor,
		)

		// The request context dies with this response; the batch must
		// not.
		go func() {
			result, err := s.coordinator.Run(context.Background(), batchID, req.Actor, items)
			if err != nil {
				s.logger.Error("batch finished with error",
					"batch_id", batchID,
					"error", err,
				)
			}
			s.tracker.finish(batchID, result, err)
		}()

		c.JSON(http.StatusAccepted, datatypes.BatchAccepted{
			BatchID: batchID,
			State:   "running",
			Items:   len(items),
		})
	}
}

// GetBatch returns a batch's current status by id.
func (s *Service) GetBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batchId")
		status, ok := s.tracker.get(batchID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found", "batchId": batchID})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}
