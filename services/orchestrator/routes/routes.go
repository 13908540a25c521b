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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/mlab-assistant/services/orchestrator/datatypes"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/handlers"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/middleware"
)

// Deps carries what the routes need.
type Deps struct {
	Assistant      handlers.Assistant
	CacheLoaded    handlers.ReadinessFunc
	Limiter        *middleware.ClientLimiter
	AllowedOrigins []string

	// MetricsHandler serves GET /metrics. Defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

// SetupRoutes registers the assistant API on router.
//
// Only the two chat endpoints pass through the rate limiter; health,
// greeting and metrics stay reachable while clients are being throttled.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(middleware.CORS(deps.AllowedOrigins))

	metrics := deps.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	router.GET("/health", handlers.HandleHealth(deps.CacheLoaded))
	router.GET("/metrics", gin.WrapH(metrics))
	router.GET("/greeting", handlers.HandleGreeting(datatypes.DefaultGreeting()))

	limited := router.Group("/", middleware.RateLimit(deps.Limiter))
	{
		limited.POST("/chat", handlers.HandleChat(deps.Assistant))
		limited.POST("/category", handlers.HandleCategory(deps.Assistant))
	}
}
