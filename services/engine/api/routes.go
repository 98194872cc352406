// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the engine endpoints with the router group.
//
// Endpoints:
//
//	POST /v1/engine/execute - Execute a document
//	GET  /v1/engine/patches - Patch stream (WebSocket)
//	GET  /v1/engine/health  - Health check
//	GET  /v1/engine/ready   - Readiness check
//
// Example:
//
//	svc, err := api.NewService(api.DefaultServiceConfig())
//	handlers := api.NewHandlers(svc)
//
//	v1 := router.Group("/v1")
//	api.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	engine := rg.Group("/engine")
	{
		engine.POST("/execute", handlers.HandleExecute)
		engine.GET("/patches", handlers.HandlePatches)

		engine.GET("/health", handlers.HandleHealth)
		engine.GET("/ready", handlers.HandleReady)
	}
}
