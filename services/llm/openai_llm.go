// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider calls an OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	baseURL string
}

// NewOpenAIProvider creates an OpenAI adapter.
func NewOpenAIProvider(opts ProviderOptions) *OpenAIProvider {
	return &OpenAIProvider{baseURL: opts.BaseURL}
}

// Name implements Provider.
func (o *OpenAIProvider) Name() string { return BackendOpenAI }

func (o *OpenAIProvider) client(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// GenerateText implements Provider. The prompt is sent as a single user
// message.
func (o *OpenAIProvider) GenerateText(ctx context.Context, apiKey, model, prompt string) (string, error) {
	slog.Debug("Generating text via OpenAI", "model", model)
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	resp, err := o.client(apiKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(model, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels implements Provider.
func (o *OpenAIProvider) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	list, err := o.client(apiKey).ListModels(ctx)
	if err != nil {
		return nil, classifyOpenAIError("", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

func classifyOpenAIError(model string, err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return &ProviderError{
		Kind:       KindForStatus(status),
		Model:      model,
		StatusCode: status,
		Err:        err,
	}
}

var _ Provider = (*OpenAIProvider)(nil)
