// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers of the assistant HTTP API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/mlab-assistant/services/orchestrator/datatypes"
)

var chatTracer = otel.Tracer("mlab.orchestrator.handlers")

// Assistant is the business logic behind the chat endpoints.
type Assistant interface {
	Chat(ctx context.Context, message string) (*datatypes.ChatReply, error)
	Category(ctx context.Context, category string) (*datatypes.ChatReply, error)
}

// HandleChat answers POST /chat.
//
// # Responses
//
//   - 200 {reply}: Includes escalations and provider fallbacks.
//   - 400 {reply, error}: Body is not JSON or the message fails validation.
//   - 500 {reply}: Configuration or prompt failures.
func HandleChat(assistant Assistant) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Failed to parse the chat request", "error", err)
			c.JSON(http.StatusBadRequest, datatypes.NewErrorReply("invalid_request"))
			return
		}
		if err := req.Validate(); err != nil {
			slog.Warn("Chat request failed validation", "error", err)
			c.JSON(http.StatusBadRequest, datatypes.NewErrorReply("invalid_request"))
			return
		}

		reply, err := assistant.Chat(ctx, req.Message)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chat failed")
			c.JSON(http.StatusInternalServerError, datatypes.ErrorReply{Reply: datatypes.TechnicalDifficultyReply})
			return
		}
		c.JSON(http.StatusOK, reply)
	}
}

// HandleCategory answers POST /category with a summary of one menu topic.
func HandleCategory(assistant Assistant) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleCategory")
		defer span.End()

		var req datatypes.CategoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Failed to parse the category request", "error", err)
			c.JSON(http.StatusBadRequest, datatypes.NewErrorReply("invalid_request"))
			return
		}
		if err := req.Validate(); err != nil {
			slog.Warn("Category request failed validation", "error", err)
			c.JSON(http.StatusBadRequest, datatypes.NewErrorReply("invalid_request"))
			return
		}

		reply, err := assistant.Category(ctx, req.Category)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "category failed")
			c.JSON(http.StatusInternalServerError, datatypes.ErrorReply{Reply: datatypes.TechnicalDifficultyReply})
			return
		}
		c.JSON(http.StatusOK, reply)
	}
}

// HandleGreeting returns the opening message and topic menu.
func HandleGreeting(greeting datatypes.Greeting) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, greeting)
	}
}
