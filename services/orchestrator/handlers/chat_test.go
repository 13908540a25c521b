// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/mlab-assistant/services/orchestrator/datatypes"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockAssistant implements Assistant for handler testing.
type mockAssistant struct {
	reply   *datatypes.ChatReply
	err     error
	calls   int
	lastArg string
}

func (m *mockAssistant) Chat(_ context.Context, message string) (*datatypes.ChatReply, error) {
	m.calls++
	m.lastArg = message
	return m.reply, m.err
}

func (m *mockAssistant) Category(_ context.Context, category string) (*datatypes.ChatReply, error) {
	m.calls++
	m.lastArg = category
	return m.reply, m.err
}

// createTestRouter creates a Gin router with the specified handler for testing.
func createTestRouter(method, path string, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	switch method {
	case "POST":
		router.POST(path, handler)
	case "GET":
		router.GET(path, handler)
	}
	return router
}

// performRequest executes an HTTP request against the test router.
func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeErrorReply(t *testing.T, w *httptest.ResponseRecorder) datatypes.ErrorReply {
	t.Helper()
	var body datatypes.ErrorReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// =============================================================================
// HandleChat Tests
// =============================================================================

func TestHandleChat_Success(t *testing.T) {
	mock := &mockAssistant{reply: &datatypes.ChatReply{Reply: "Applications open in January.", RequestID: "r1"}}
	router := createTestRouter("POST", "/chat", HandleChat(mock))

	w := performRequest(router, "POST", "/chat", datatypes.ChatRequest{Message: "When do applications open?"})

	assert.Equal(t, http.StatusOK, w.Code)
	var body datatypes.ChatReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Applications open in January.", body.Reply)
	assert.Equal(t, "When do applications open?", mock.lastArg)
}

func TestHandleChat_InvalidJSON(t *testing.T) {
	mock := &mockAssistant{}
	router := createTestRouter("POST", "/chat", HandleChat(mock))

	w := performRequest(router, "POST", "/chat", "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeErrorReply(t, w)
	assert.Equal(t, datatypes.TechnicalDifficultyReply, body.Reply)
	assert.Equal(t, "invalid_request", body.Error)
	assert.Zero(t, mock.calls)
}

func TestHandleChat_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"too long", strings.Repeat("x", datatypes.MaxMessageBytes+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockAssistant{}
			router := createTestRouter("POST", "/chat", HandleChat(mock))

			w := performRequest(router, "POST", "/chat", datatypes.ChatRequest{Message: tt.message})

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, datatypes.TechnicalDifficultyReply, decodeErrorReply(t, w).Reply)
			assert.Zero(t, mock.calls)
		})
	}
}

func TestHandleChat_ServiceError(t *testing.T) {
	mock := &mockAssistant{err: errors.New("GEMINI_API_KEY is not set")}
	router := createTestRouter("POST", "/chat", HandleChat(mock))

	w := performRequest(router, "POST", "/chat", datatypes.ChatRequest{Message: "hello"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeErrorReply(t, w)
	assert.Equal(t, datatypes.TechnicalDifficultyReply, body.Reply)
	assert.NotContains(t, w.Body.String(), "GEMINI_API_KEY")
}

func TestHandleChat_EscalatedReplyIs200(t *testing.T) {
	mock := &mockAssistant{reply: &datatypes.ChatReply{Reply: "handed off", Escalated: true}}
	router := createTestRouter("POST", "/chat", HandleChat(mock))

	w := performRequest(router, "POST", "/chat", datatypes.ChatRequest{Message: "asdf"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"escalated":true`)
}

// =============================================================================
// HandleCategory Tests
// =============================================================================

func TestHandleCategory_Success(t *testing.T) {
	mock := &mockAssistant{reply: &datatypes.ChatReply{Reply: "We have hubs in Pretoria."}}
	router := createTestRouter("POST", "/category", HandleCategory(mock))

	w := performRequest(router, "POST", "/category", datatypes.CategoryRequest{Category: "locations"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Pretoria")
	assert.Equal(t, "locations", mock.lastArg)
}

func TestHandleCategory_Validation(t *testing.T) {
	mock := &mockAssistant{}
	router := createTestRouter("POST", "/category", HandleCategory(mock))

	w := performRequest(router, "POST", "/category", datatypes.CategoryRequest{Category: strings.Repeat("c", 101)})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, mock.calls)
}

func TestHandleCategory_ServiceError(t *testing.T) {
	mock := &mockAssistant{err: context.DeadlineExceeded}
	router := createTestRouter("POST", "/category", HandleCategory(mock))

	w := performRequest(router, "POST", "/category", datatypes.CategoryRequest{Category: "events"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, datatypes.TechnicalDifficultyReply, decodeErrorReply(t, w).Reply)
}

// =============================================================================
// HandleGreeting / HandleHealth Tests
// =============================================================================

func TestHandleGreeting(t *testing.T) {
	router := createTestRouter("GET", "/greeting", HandleGreeting(datatypes.DefaultGreeting()))

	w := performRequest(router, "GET", "/greeting", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var body datatypes.Greeting
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Options)
}

func TestHandleHealth(t *testing.T) {
	loaded := false
	router := createTestRouter("GET", "/health", HandleHealth(func() bool { return loaded }))

	w := performRequest(router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"knowledge_cache":"cold"`)

	loaded = true
	w = performRequest(router, "GET", "/health", nil)
	assert.Contains(t, w.Body.String(), `"knowledge_cache":"warm"`)
}
