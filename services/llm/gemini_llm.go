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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	retryInfoType    = "type.googleapis.com/google.rpc.RetryInfo"
	quotaFailureType = "type.googleapis.com/google.rpc.QuotaFailure"

	// defaultRetryInfoDelay is used when RetryInfo is present but unparsable.
	defaultRetryInfoDelay = 5 * time.Second

	generateContentAction = "generateContent"
)

// GeminiProvider calls the Gemini API through google.golang.org/genai.
type GeminiProvider struct {
	baseURL string
}

// NewGeminiProvider creates a Gemini adapter.
func NewGeminiProvider(opts ProviderOptions) *GeminiProvider {
	return &GeminiProvider{baseURL: opts.BaseURL}
}

// Name implements Provider.
func (g *GeminiProvider) Name() string { return BackendGemini }

func (g *GeminiProvider) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, &ProviderError{Kind: KindOther, Err: fmt.Errorf("create genai client: %w", err)}
	}
	return c, nil
}

// GenerateText implements Provider.
func (g *GeminiProvider) GenerateText(ctx context.Context, apiKey, model, prompt string) (string, error) {
	c, err := g.client(ctx, apiKey)
	if err != nil {
		return "", err
	}
	slog.Debug("Generating text via Gemini", "model", model)

	resp, err := c.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", classifyGeminiError(model, err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}

// ListModels implements Provider. Names are returned without the "models/"
// prefix. Models that report supported actions are kept only when they can
// generate content.
func (g *GeminiProvider) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	c, err := g.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	var names []string
	for m, err := range c.Models.All(ctx) {
		if err != nil {
			return nil, classifyGeminiError("", err)
		}
		if m == nil || !supportsGeneration(m.SupportedActions) {
			continue
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}

func supportsGeneration(actions []string) bool {
	if len(actions) == 0 {
		return true
	}
	for _, a := range actions {
		if a == generateContentAction {
			return true
		}
	}
	return false
}

// classifyGeminiError converts a genai error into a *ProviderError.
func classifyGeminiError(model string, err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return &ProviderError{Kind: KindOther, Model: model, Err: err}
	}

	pe := &ProviderError{
		Kind:       KindForStatus(apiErr.Code),
		Model:      model,
		StatusCode: apiErr.Code,
		Err:        err,
	}
	if pe.Kind == KindRateLimited {
		pe.RetryAfter, pe.QuotaViolations = parseRateLimitDetails(apiErr.Details)
	}
	return pe
}

// parseRateLimitDetails reads google.rpc.RetryInfo and QuotaFailure entries.
func parseRateLimitDetails(details []map[string]any) (time.Duration, []string) {
	var delay time.Duration
	var violations []string
	for _, d := range details {
		switch d["@type"] {
		case retryInfoType:
			delay = parseRetryDelay(d["retryDelay"])
		case quotaFailureType:
			raw, _ := d["violations"].([]any)
			for _, v := range raw {
				vm, ok := v.(map[string]any)
				if !ok {
					continue
				}
				desc := fmt.Sprint(vm["quotaId"])
				if metric, ok := vm["quotaMetric"]; ok {
					desc = fmt.Sprintf("%v (%s)", metric, desc)
				}
				violations = append(violations, desc)
			}
		}
	}
	return delay, violations
}

// parseRetryDelay accepts "17s" style values. Anything unparsable yields the
// default delay.
func parseRetryDelay(v any) time.Duration {
	s, ok := v.(string)
	if !ok {
		return defaultRetryInfoDelay
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return defaultRetryInfoDelay
	}
	return d
}

var _ Provider = (*GeminiProvider)(nil)
