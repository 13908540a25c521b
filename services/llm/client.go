// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm is the boundary between the assistant and hosted generation
// providers.
//
// Adapters in this package translate provider-specific responses and error
// shapes into ProviderError values so that retry and fallback logic never
// inspects raw HTTP status codes or SDK types.
package llm

import (
	"context"
	"fmt"
)

// Backend names accepted by NewProvider.
const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

// Provider is a hosted text-generation service.
//
// # Description
//
// Implementations must be safe for concurrent use. The API key is passed on
// every call so that credentials are always read at call time by the caller.
//
// # Errors
//
// GenerateText and ListModels return *ProviderError for any failure the
// remote service reported. Transport failures are also wrapped in a
// ProviderError of KindOther.
type Provider interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// GenerateText sends a single prompt to model and returns the text reply.
	// An empty string with a nil error means the provider answered with no text.
	GenerateText(ctx context.Context, apiKey, model, prompt string) (string, error)

	// ListModels returns the model identifiers usable with GenerateText.
	ListModels(ctx context.Context, apiKey string) ([]string, error)
}

// ProviderOptions configures the adapters returned by NewProvider.
type ProviderOptions struct {
	// BaseURL overrides the provider endpoint. Empty uses the SDK default.
	BaseURL string
}

// NewProvider builds the adapter for backend.
func NewProvider(backend string, opts ProviderOptions) (Provider, error) {
	switch backend {
	case BackendGemini, "":
		return NewGeminiProvider(opts), nil
	case BackendOpenAI:
		return NewOpenAIProvider(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", backend)
	}
}

// ComposePrompt joins system instructions and the user's message into the
// single text prompt sent to providers.
func ComposePrompt(instructions, userMessage string) string {
	return instructions + "\n\nUser Message: " + userMessage
}
