// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generation turns a prompt into a reply while tolerating missing
// models, rate limits and provider outages.
//
// The Selector decides which models to try and in what order; the
// Orchestrator walks that list with bounded retries and maps terminal
// failures to fixed user-facing messages.
package generation

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/mlab-assistant/services/llm"
)

// DefaultPreferredModels is the static preference list, most preferred first.
var DefaultPreferredModels = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-2.5-pro",
	"gemini-1.5-flash",
	"gemini-pro",
	"gemini-1.5-pro",
}

// Selector produces the model trial order for a request.
type Selector struct {
	provider  llm.Provider
	preferred []string
	probe     bool
	logger    *slog.Logger
}

// NewSelector creates a selector. When probe is false the preferred list is
// always used verbatim and ListModels is never called.
func NewSelector(provider llm.Provider, preferred []string, probe bool, logger *slog.Logger) *Selector {
	if len(preferred) == 0 {
		preferred = DefaultPreferredModels
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		provider:  provider,
		preferred: append([]string(nil), preferred...),
		probe:     probe,
		logger:    logger,
	}
}

// Preferred returns a copy of the static preference list.
func (s *Selector) Preferred() []string {
	return append([]string(nil), s.preferred...)
}

// SelectTrialOrder returns the models to try, in order.
//
// # Description
//
// When probing succeeds with a non-empty list, the result is the preferred
// models that are available, in preference order, followed by the remaining
// available models in provider order. Otherwise the static preference list
// is returned. Never fails.
func (s *Selector) SelectTrialOrder(ctx context.Context, apiKey string) []string {
	if !s.probe {
		return s.Preferred()
	}

	available, err := s.provider.ListModels(ctx, apiKey)
	if err != nil {
		s.logger.Warn("Model listing failed, using preferred models", "error", err)
		return s.Preferred()
	}
	if len(available) == 0 {
		s.logger.Warn("Provider listed no models, using preferred models")
		return s.Preferred()
	}

	isAvailable := make(map[string]bool, len(available))
	for _, m := range available {
		isAvailable[m] = true
	}

	order := make([]string, 0, len(available))
	seen := make(map[string]bool, len(available))
	for _, m := range s.preferred {
		if isAvailable[m] && !seen[m] {
			order = append(order, m)
			seen[m] = true
		}
	}
	for _, m := range available {
		if !seen[m] {
			order = append(order, m)
			seen[m] = true
		}
	}

	s.logger.Debug("Model trial order selected", "models", order)
	return order
}
