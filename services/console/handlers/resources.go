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
	"sort"

	"github.com/gin-gonic/gin"
)

// ListResources returns the known inventory, sorted by id for stable
// output.
func (s *Service) ListResources() gin.HandlerFunc {
	return func(c *gin.Context) {
		resources := s.inventory.List()
		sort.Slice(resources, func(i, j int) bool {
			return resources[i].ID < resources[j].ID
		})
		c.JSON(http.StatusOK, gin.H{"resources": resources, "count": len(resources)})
	}
}

// GetResource returns one resource by id.
func (s *Service) GetResource() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("resourceId")
		resource, err := s.inventory.Get(id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "resource not found", "resourceId": id})
			return
		}
		c.JSON(http.StatusOK, resource)
	}
}
