// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/mlab-assistant/services/orchestrator/datatypes"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/middleware"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

type mockAssistant struct{}

func (mockAssistant) Chat(context.Context, string) (*datatypes.ChatReply, error) {
	return &datatypes.ChatReply{Reply: "mock chat response"}, nil
}

func (mockAssistant) Category(context.Context, string) (*datatypes.ChatReply, error) {
	return &datatypes.ChatReply{Reply: "mock category response"}, nil
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersCoreRoutes(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{Assistant: mockAssistant{}})

	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"GET", "/greeting"},
		{"POST", "/chat"},
		{"POST", "/category"},
	}

	routes := router.Routes()
	for _, expected := range coreRoutes {
		found := false
		for _, r := range routes {
			if r.Method == expected.method && r.Path == expected.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s not registered", expected.method, expected.path)
	}
}

func TestSetupRoutes_ChatEndToEnd(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Deps{Assistant: mockAssistant{}})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mock chat response")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupRoutes_LimiterSparesHealth(t *testing.T) {
	router := gin.New()
	limiter := middleware.NewClientLimiter(middleware.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	SetupRoutes(router, Deps{Assistant: mockAssistant{}, Limiter: limiter})

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/category", bytes.NewBufferString(`{"category":"events"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
