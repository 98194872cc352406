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
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/williwaw/services/engine/schema"
)

// Handlers contains the HTTP handlers for the engine API.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The engine binds to localhost; browsers connect from file://
		// or a local dev server, so origin enforcement stays off.
		return true
	},
}

// HandleExecute handles POST /v1/engine/execute.
//
// Request Body:
//
//	ExecuteRequest
//
// Response:
//
//	200 OK: ExecuteResponse
//	400 Bad Request: Validation error
//	500 Internal Server Error: Engine fault
func (h *Handlers) HandleExecute(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.svc.log.With("request_id", requestID, "handler", "HandleExecute")

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	node, err := schema.DecodeNode(req.Document)
	if err != nil {
		logger.Warn("Invalid document", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_DOCUMENT",
		})
		return
	}
	doc, ok := node.(*schema.Article)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "document root must be an Article",
			Code:  "INVALID_DOCUMENT",
		})
		return
	}

	docID := req.DocID
	if docID == "" {
		docID = doc.ID
	}
	logger.Info("Executing document", "doc_id", docID, "from", req.From)

	result, err := h.svc.Execute(c.Request.Context(), docID, doc, req.From)
	if err != nil {
		logger.Error("Execution failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "EXECUTION_FAILED",
		})
		return
	}

	executedDoc, err := json.Marshal(doc)
	if err != nil {
		logger.Error("Encoding executed document failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "ENCODING_FAILED",
		})
		return
	}

	logger.Info("Execution finished",
		"run_id", result.RunID,
		"executed", result.Executed,
		"skipped", result.Skipped,
		"failed", len(result.Failed),
		"patches", result.Patches)

	c.JSON(http.StatusOK, ExecuteResponse{
		RunID:      result.RunID,
		DocID:      docID,
		Stages:     result.Stages,
		Executed:   result.Executed,
		Skipped:    result.Skipped,
		Failed:     result.Failed,
		Cancelled:  result.Cancelled,
		Cyclic:     result.Cyclic,
		Patches:    result.Patches,
		DurationMs: result.Duration.Milliseconds(),
		Document:   executedDoc,
	})
}

// HandlePatches handles GET /v1/engine/patches.
//
// Upgrades the connection to a WebSocket and streams patch envelopes
// for every run until the client disconnects.
func (h *Handlers) HandlePatches(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.svc.log.Warn("WebSocket upgrade failed", "request_id", requestID, "error", err)
		return
	}
	h.svc.log.Info("Observer attached", "request_id", requestID)
	h.svc.Hub().Attach(ws)
}

// HandleHealth handles GET /v1/engine/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/engine/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, ReadyResponse{
		Ready:     true,
		Sessions:  h.svc.SessionCount(),
		Observers: h.svc.Hub().ClientCount(),
	})
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
