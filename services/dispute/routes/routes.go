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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/michaelwaves/coinchase/services/dispute/conversation"
	"github.com/michaelwaves/coinchase/services/dispute/handlers"
	"github.com/michaelwaves/coinchase/services/dispute/middleware"
	"github.com/michaelwaves/coinchase/services/dispute/observability"
	"github.com/michaelwaves/coinchase/services/dispute/session"
)

// SetupRoutes registers every endpoint of the dispute service. The /v1 group
// is guarded by the API key; health and metrics stay open for probes and
// scrapers.
func SetupRoutes(router *gin.Engine, ctrl *conversation.Controller, store *session.Store,
	metrics *observability.DisputeMetrics, apiKey string) {

	router.GET("/", handlers.HealthCheck)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.RequireAPIKey(apiKey))
	{
		v1.POST("/dispute/analyze", handlers.AnalyzeDispute(ctrl))

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(store))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(store, metrics))
		}
	}
}
