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
)

// ReadinessFunc reports whether the knowledge cache has been populated.
type ReadinessFunc func() bool

// HandleHealth answers GET /health. The service is healthy as soon as it
// serves requests; knowledge_cache only reports whether the snapshot has
// been fetched yet.
func HandleHealth(cacheLoaded ReadinessFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		cache := "cold"
		if cacheLoaded != nil && cacheLoaded() {
			cache = "warm"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "knowledge_cache": cache})
	}
}
