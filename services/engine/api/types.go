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

import "encoding/json"

// ServiceVersion is the engine API version.
const ServiceVersion = "0.1.0"

// ExecuteRequest is the request body for POST /v1/engine/execute.
type ExecuteRequest struct {
	// Document is the document to execute, as a JSON node tree with an
	// Article root.
	Document json.RawMessage `json:"document" binding:"required"`

	// DocID keys the execution session and the digest cache. Defaults
	// to the article's id.
	DocID string `json:"docId,omitempty"`

	// From restricts the run to the given node ids and everything
	// downstream of them.
	From []string `json:"from,omitempty"`
}

// ExecuteResponse is the response for POST /v1/engine/execute.
type ExecuteResponse struct {
	RunID      string   `json:"runId"`
	DocID      string   `json:"docId"`
	Stages     int      `json:"stages"`
	Executed   int      `json:"executed"`
	Skipped    int      `json:"skipped"`
	Failed     []string `json:"failed,omitempty"`
	Cancelled  []string `json:"cancelled,omitempty"`
	Cyclic     []string `json:"cyclic,omitempty"`
	Patches    uint64   `json:"patches"`
	DurationMs int64    `json:"durationMs"`

	// Document is the executed document, with outputs and execution
	// state filled in.
	Document json.RawMessage `json:"document"`
}

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the response for GET /v1/engine/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the response for GET /v1/engine/ready.
type ReadyResponse struct {
	Ready     bool `json:"ready"`
	Sessions  int  `json:"sessions"`
	Observers int  `json:"observers"`
}
