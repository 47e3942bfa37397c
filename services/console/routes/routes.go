// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/labelops/services/console/handlers"
)

// SetupRoutes wires the console API onto the router.
func SetupRoutes(router *gin.Engine, svc *handlers.Service, hub *handlers.Hub) {
	router.GET("/health", handlers.HealthCheck)

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/batches", svc.StartBatch())
		v1.GET("/batches/:batchId", svc.GetBatch())

		resources := v1.Group("/resources")
		{
			resources.GET("", svc.ListResources())
			resources.GET("/:resourceId", svc.GetResource())
			resources.PUT("/:resourceId/labels", svc.UpdateLabels())
			resources.GET("/:resourceId/history", svc.GetHistory())
		}

		v1.GET("/events/ws", hub.Handle())
	}
}
