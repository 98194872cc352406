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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/williwaw/pkg/logging"
	"github.com/AleutianAI/williwaw/services/engine/schema"
)

func init() {
	// Set Gin to test mode to reduce noise
	gin.SetMode(gin.TestMode)
}

func setupTest(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	cfg := DefaultServiceConfig()
	cfg.Logger = logging.Nop()
	svc, err := NewService(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	router := gin.New()
	handlers := NewHandlers(svc)
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router, svc
}

func executeBody(t *testing.T, doc *schema.Article, from ...string) *bytes.Buffer {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	body, err := json.Marshal(ExecuteRequest{Document: raw, From: from})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestHandleHealth(t *testing.T) {
	router, _ := setupTest(t)

	req, _ := http.NewRequest("GET", "/v1/engine/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
}

func TestHandleReady(t *testing.T) {
	router, _ := setupTest(t)

	req, _ := http.NewRequest("GET", "/v1/engine/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Ready)
	assert.Equal(t, 0, resp.Sessions)
}

func TestHandleExecute(t *testing.T) {
	router, svc := setupTest(t)

	doc := &schema.Article{
		ID: "doc-1",
		Content: []schema.Block{
			&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "a = 1"},
			&schema.CodeChunk{ID: "ch-b", Language: "calc", Code: "b = a + 1"},
		},
	}
	req, _ := http.NewRequest("POST", "/v1/engine/execute", executeBody(t, doc))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp ExecuteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "doc-1", resp.DocID)
	assert.Equal(t, 2, resp.Executed)
	assert.Empty(t, resp.Failed)
	assert.Equal(t, 1, svc.SessionCount())

	node, err := schema.DecodeNode(resp.Document)
	require.NoError(t, err)
	executed := node.(*schema.Article)
	b := executed.Content[1].(*schema.CodeChunk)
	assert.Equal(t, []any{float64(2)}, b.Outputs)
	assert.Equal(t, schema.StatusSucceeded, b.ExecutionStatus)
}

func TestHandleExecuteSecondRunSkips(t *testing.T) {
	router, _ := setupTest(t)

	doc := &schema.Article{
		ID:      "doc-2",
		Content: []schema.Block{&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "a = 1"}},
	}

	run := func() ExecuteResponse {
		req, _ := http.NewRequest("POST", "/v1/engine/execute", executeBody(t, doc))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp ExecuteResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp
	}

	first := run()
	assert.Equal(t, 1, first.Executed)

	// The session's digest store remembers the first run; a posted
	// document without execution state still skips.
	second := run()
	assert.Equal(t, 0, second.Executed)
	assert.Equal(t, 1, second.Skipped)
}

func TestHandleExecuteRejectsBadBodies(t *testing.T) {
	router, _ := setupTest(t)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{"document":`, "INVALID_REQUEST"},
		{"missing document", `{}`, "INVALID_REQUEST"},
		{"bad node type", `{"document":{"type":"Nonsense"}}`, "INVALID_DOCUMENT"},
		{"non article root", `{"document":{"type":"Paragraph","content":[]}}`, "INVALID_DOCUMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/v1/engine/execute", bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusBadRequest, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.code, resp.Code)
		})
	}
}

func TestServiceCloseIsIdempotent(t *testing.T) {
	svc, err := NewService(DefaultServiceConfig())
	require.NoError(t, err)

	require.NoError(t, svc.Close(context.Background()))
	require.NoError(t, svc.Close(context.Background()))

	_, execErr := svc.Execute(context.Background(), "doc", &schema.Article{ID: "doc"}, nil)
	assert.ErrorIs(t, execErr, ErrServiceClosed)
}
