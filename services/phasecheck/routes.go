// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phasecheck

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers phase check routes with a Gin router group.
//
// Description:
//
//	Registers the phase check endpoints under /phasecheck.
//
// Inputs:
//
//	rg - The router group to register routes on (e.g., /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET    /phasecheck/health           - Health check
//	POST   /phasecheck/check            - Check an inline or stored snapshot (rate limited)
//	GET    /phasecheck/snapshots        - List stored snapshots
//	PUT    /phasecheck/snapshots/:name  - Store a snapshot
//	DELETE /phasecheck/snapshots/:name  - Delete a stored snapshot
//
// Example:
//
//	router := gin.Default()
//	v1 := router.Group("/v1")
//	phasecheck.RegisterRoutes(v1, phasecheck.NewHandlers())
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	pc := rg.Group("/phasecheck")
	{
		pc.GET("/health", handlers.HandleHealth)
		pc.POST("/check", handlers.RateLimit, handlers.HandleCheck)
		pc.GET("/snapshots", handlers.HandleListSnapshots)
		pc.PUT("/snapshots/:name", handlers.HandleSaveSnapshot)
		pc.DELETE("/snapshots/:name", handlers.HandleDeleteSnapshot)
	}
}

// NewRouter builds the service router: recovery, tracing, the /v1 routes,
// and /metrics when metrics is non-nil.
func NewRouter(handlers *Handlers, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("obcheck"))

	RegisterRoutes(router.Group("/v1"), handlers)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return router
}
