// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response types for the assistant
// HTTP API.
package datatypes

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageBytes bounds a chat message in bytes.
	MaxMessageBytes = 4 * 1024

	// MaxCategoryLength bounds a category name.
	MaxCategoryLength = 100
)

// TechnicalDifficultyReply is the only reply text sent with non-2xx
// responses.
const TechnicalDifficultyReply = "Sorry, I'm having technical difficulties right now. Please try again later."

// =============================================================================
// Shared Validator Instance
// =============================================================================

var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = chatValidate.RegisterValidation("notblank", validateNotBlank)
}

// validateMaxBytes checks byte length, not rune count.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageBytes
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// =============================================================================
// Requests
// =============================================================================

// ChatRequest is the body of POST /chat.
//
// # Examples
//
//	{"message": "Am I eligible for CodeTribe?"}
type ChatRequest struct {
	Message string `json:"message" validate:"required,notblank,maxbytes"`
}

// Validate checks the request against its validation tags.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// CategoryRequest is the body of POST /category.
type CategoryRequest struct {
	Category string `json:"category" validate:"required,notblank,max=100"`
}

// Validate checks the request against its validation tags.
func (r *CategoryRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Responses
// =============================================================================

// ChatReply is the success body of /chat and /category.
type ChatReply struct {
	Reply     string   `json:"reply"`
	Options   []string `json:"options,omitempty"`
	Escalated bool     `json:"escalated,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// ErrorReply is the body of every non-2xx chat response.
type ErrorReply struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

// NewErrorReply returns the generic reply with a short machine-readable code.
func NewErrorReply(code string) ErrorReply {
	return ErrorReply{Reply: TechnicalDifficultyReply, Error: code}
}

// Greeting is the body of GET /greeting.
type Greeting struct {
	Reply   string   `json:"reply"`
	Options []string `json:"options"`
}

// IsGreeting reports whether message opens a conversation rather than
// asking a question.
func IsGreeting(message string) bool {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "hi", "hello", "start":
		return true
	}
	return false
}

// DefaultGreeting is shown when a conversation starts.
func DefaultGreeting() Greeting {
	return Greeting{
		Reply:   "👋 Hello! Welcome to the mLab Virtual Assistant. How can I help you today? Choose a topic or ask me anything.",
		Options: []string{"programmes", "applications", "eligibility", "locations", "events"},
	}
}
