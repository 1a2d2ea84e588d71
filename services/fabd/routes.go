// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fabd

import (
	"github.com/AleutianAI/netfab/services/fabd/config"
	"github.com/AleutianAI/netfab/services/fabd/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the fabd API with the router.
//
// Description:
//
//	Registers all /v1/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Endpoints:
//
//	GET    /v1/health - Health check and plan cache counters
//	GET    /v1/networks - List stored networks
//	PUT    /v1/networks/:name - Store a network document
//	GET    /v1/networks/:name - Fetch a stored document
//	DELETE /v1/networks/:name - Delete a network
//	GET    /v1/networks/:name/plan - Describe the fabricated plan
//	POST   /v1/networks/:name/evaluate - Evaluate one input row
//	POST   /v1/networks/:name/evaluate/batch - Evaluate many rows
//
// Example:
//
//	v1 := router.Group("/v1")
//	fabd.RegisterRoutes(v1, fabd.NewHandlers(svc, 4<<20))
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.GET("/health", handlers.HandleHealth)

	networks := rg.Group("/networks")
	{
		networks.GET("", handlers.HandleList)
		networks.PUT("/:name", handlers.HandlePut)
		networks.GET("/:name", handlers.HandleGet)
		networks.DELETE("/:name", handlers.HandleDelete)
		networks.GET("/:name/plan", handlers.HandlePlan)
		networks.POST("/:name/evaluate", handlers.HandleEvaluate)
		networks.POST("/:name/evaluate/batch", handlers.HandleEvaluateBatch)
	}
}

// NewRouter builds the fabd HTTP engine.
//
// Middleware order: recovery, tracing, request ID, HTTP metrics (when
// metrics is non-nil), then rate limiting. /metrics is outside /v1 and
// not rate limited.
func NewRouter(svc *Service, cfg config.ServerConfig, metrics *telemetry.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("netfab-fabd"))
	router.Use(RequestID())
	if metrics != nil {
		router.Use(telemetry.GinMetrics(metrics))
	}

	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := router.Group("/v1")
	v1.Use(RateLimit(cfg.RateLimit, cfg.RateBurst))
	RegisterRoutes(v1, NewHandlers(svc, cfg.MaxBodyBytes))
	return router
}
