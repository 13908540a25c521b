// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/mlab-assistant/services/llm"
)

var generationTracer = otel.Tracer("mlab.services.generation")

// =============================================================================
// Configuration
// =============================================================================

// Config bounds the retry behaviour of an Orchestrator.
type Config struct {
	// MaxAttempts per model. Default 3.
	MaxAttempts int

	// BackoffStep is multiplied by the attempt number when the provider
	// gives no retry delay. Default 2s.
	BackoffStep time.Duration

	// BackoffCap caps the computed backoff. Default 10s.
	BackoffCap time.Duration

	// Budget bounds a whole Generate call, including sleeps. Zero disables
	// the bound and leaves only the caller's deadline.
	Budget time.Duration
}

// DefaultConfig returns the production retry settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BackoffStep: 2 * time.Second,
		BackoffCap:  10 * time.Second,
		Budget:      60 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = d.BackoffStep
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = d.BackoffCap
	}
}

// KeyProvider yields the API key at call time.
type KeyProvider interface {
	Key() string
	Setting() string
}

// SleepFunc waits for d or until ctx ends, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AttemptObserver receives per-attempt and per-fallback observations.
type AttemptObserver interface {
	ObserveGenerationAttempt(model, outcome string)
	ObserveGenerationFallback(reason string)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSleep replaces the wait between rate-limited attempts.
func WithSleep(fn SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithAttemptObserver attaches metrics.
func WithAttemptObserver(obs AttemptObserver) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// =============================================================================
// Result
// =============================================================================

// Attempt records one provider call.
type Attempt struct {
	Model   string
	Number  int
	Outcome string
	Delay   time.Duration
}

// Result is the outcome of one Generate call.
type Result struct {
	// Text is the generated reply, or a fixed message when Reason is set.
	Text string

	// Model produced Text. Empty for fallbacks other than ReasonEmpty.
	Model string

	// Reason is ReasonNone for generated text.
	Reason FallbackReason

	Attempts []Attempt
}

// Fallback reports whether Text is a fixed message.
func (r *Result) Fallback() bool {
	return r.Reason != ReasonNone
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator runs the resilient generation loop.
//
// # Description
//
// Models are tried strictly one at a time in the order chosen by the
// Selector. Each model gets up to MaxAttempts calls. Only rate limiting is
// retried on the same model; not-found and other failures move on to the
// next model immediately.
//
// A model that produced text is recorded as working for the rest of the
// call. If a model is exhausted by rate limiting while a different model is
// recorded as working, the provider is treated as saturated and the loop
// stops early. Nothing is carried from one call to the next.
//
// When the budget runs out the reply is the high-demand message.
//
// # Thread Safety
//
// Safe for concurrent use; calls share no state.
type Orchestrator struct {
	provider llm.Provider
	selector *Selector
	keys     KeyProvider
	cfg      Config
	sleep    SleepFunc
	observer AttemptObserver
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(provider llm.Provider, selector *Selector, keys KeyProvider, cfg Config, opts ...Option) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		provider: provider,
		selector: selector,
		keys:     keys,
		cfg:      cfg,
		sleep:    Sleep,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate returns reply text for the instructions and message.
//
// # Outputs
//
//   - string: Generated text or one of the fixed fallback messages.
//   - error: *llm.ConfigurationError when no API key is configured. Provider
//     failures never surface as errors.
func (o *Orchestrator) Generate(ctx context.Context, systemInstructions, userMessage string) (string, error) {
	res, err := o.Run(ctx, systemInstructions, userMessage)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Run is Generate with attempt diagnostics.
func (o *Orchestrator) Run(ctx context.Context, systemInstructions, userMessage string) (*Result, error) {
	apiKey := o.keys.Key()
	if apiKey == "" {
		return nil, &llm.ConfigurationError{Setting: o.keys.Setting(), Err: llm.ErrMissingAPIKey}
	}

	if o.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Budget)
		defer cancel()
	}

	ctx, span := generationTracer.Start(ctx, "generation.run")
	defer span.End()

	prompt := llm.ComposePrompt(systemInstructions, userMessage)
	models := o.selector.SelectTrialOrder(ctx, apiKey)
	span.SetAttributes(attribute.StringSlice("generation.models", models))

	res := &Result{}
	allRateLimited := true
	budgetSpent := false
	var lastErr error
	var working string

trial:
	for _, model := range models {
		for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				o.logger.Warn("Generation budget exhausted", "model", model, "attempt", attempt)
				budgetSpent = errors.Is(err, context.DeadlineExceeded)
				break trial
			}

			text, err := o.provider.GenerateText(ctx, apiKey, model, prompt)
			if err == nil {
				if text == "" {
					o.record(res, model, attempt, "empty", 0)
					res.Model = model
					return o.finish(span, res, ReasonEmpty), nil
				}
				o.record(res, model, attempt, "success", 0)
				working = model
				res.Text = text
				break trial
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				o.logger.Warn("Generation budget exhausted during call", "model", model, "error", err)
				budgetSpent = errors.Is(ctxErr, context.DeadlineExceeded)
				break trial
			}

			lastErr = err
			pe, _ := llm.AsProviderError(err)
			kind := llm.KindOf(err)

			switch kind {
			case llm.KindNotFound:
				o.record(res, model, attempt, kind.String(), 0)
				o.logger.Warn("Model not found, trying next", "model", model)
				allRateLimited = false
				continue trial

			case llm.KindRateLimited:
				if pe != nil && len(pe.QuotaViolations) > 0 {
					o.logger.Warn("Quota exceeded", "model", model, "violations", pe.QuotaViolations)
				}
				if attempt < o.cfg.MaxAttempts {
					delay := o.backoff(pe, attempt)
					o.record(res, model, attempt, kind.String(), delay)
					o.logger.Info("Rate limited, retrying", "model", model, "attempt", attempt, "delay", delay)
					if err := o.sleep(ctx, delay); err != nil {
						o.logger.Warn("Generation budget exhausted while waiting", "model", model)
						budgetSpent = errors.Is(err, context.DeadlineExceeded)
						break trial
					}
					continue
				}
				o.record(res, model, attempt, kind.String(), 0)
				if working != "" && working != model {
					o.logger.Warn("Provider saturated, stopping early", "model", model, "working", working)
					return o.finish(span, res, ReasonSaturated), nil
				}
				continue trial

			default:
				o.record(res, model, attempt, kind.String(), 0)
				o.logger.Warn("Model failed, trying next", "model", model, "error", err)
				allRateLimited = false
				continue trial
			}
		}
	}

	if working != "" {
		res.Model = working
		span.SetAttributes(attribute.String("generation.model", working))
		return res, nil
	}

	lastKind := llm.KindOther
	if lastErr != nil {
		lastKind = llm.KindOf(lastErr)
	}

	reason := ReasonConnectivity
	switch {
	case budgetSpent:
		reason = ReasonHighDemand
	case lastErr == nil:
	case allRateLimited && lastKind == llm.KindRateLimited:
		reason = ReasonHighDemand
	case lastKind == llm.KindNotFound:
		reason = ReasonModelsInaccessible
	}

	o.logger.Error("All models failed",
		"models", models,
		"attempts", len(res.Attempts),
		"last_error", lastErr,
		"reason", reason,
	)
	if lastErr != nil {
		span.RecordError(lastErr)
	}
	span.SetStatus(codes.Error, "all models failed")
	return o.finish(span, res, reason), nil
}

// backoff returns the wait before the next attempt on the same model.
func (o *Orchestrator) backoff(pe *llm.ProviderError, attempt int) time.Duration {
	if pe != nil && pe.RetryAfter > 0 {
		return pe.RetryAfter
	}
	d := time.Duration(attempt) * o.cfg.BackoffStep
	if d > o.cfg.BackoffCap {
		d = o.cfg.BackoffCap
	}
	return d
}

func (o *Orchestrator) record(res *Result, model string, attempt int, outcome string, delay time.Duration) {
	res.Attempts = append(res.Attempts, Attempt{Model: model, Number: attempt, Outcome: outcome, Delay: delay})
	if o.observer != nil {
		o.observer.ObserveGenerationAttempt(model, outcome)
	}
}

func (o *Orchestrator) finish(span trace.Span, res *Result, reason FallbackReason) *Result {
	res.Reason = reason
	res.Text = fallbackMessages[reason]
	span.SetAttributes(attribute.String("generation.fallback", string(reason)))
	if o.observer != nil {
		o.observer.ObserveGenerationFallback(string(reason))
	}
	return res
}
