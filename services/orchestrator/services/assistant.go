// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic services for the orchestrator.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers. Services are responsible for:
//   - Orchestrating calls to the knowledge API and the generation provider
//   - Applying the escalation rule
//   - Recording audit entries and metrics
//
// Dependencies are injected via constructors and all methods accept a
// context for cancellation and tracing.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/mlab-assistant/services/generation"
	"github.com/AleutianAI/mlab-assistant/services/knowledge"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/audit"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/composer"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/datatypes"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/observability"
)

// assistantTracer is the OpenTelemetry tracer for AssistantService operations.
var assistantTracer = otel.Tracer("mlab.orchestrator.services.assistant")

// =============================================================================
// Interfaces
// =============================================================================

// ContextClassifier selects knowledge relevant to a message.
type ContextClassifier interface {
	Classify(ctx context.Context, message string) knowledge.RelevantContext
}

// SnapshotSource provides the full cached knowledge snapshot.
type SnapshotSource interface {
	GetAll(ctx context.Context) (*knowledge.Snapshot, error)
}

// Generator produces a reply for instructions and a user message.
type Generator interface {
	Run(ctx context.Context, systemInstructions, userMessage string) (*generation.Result, error)
}

// =============================================================================
// AssistantService
// =============================================================================

// AssistantDeps bundles the collaborators of an AssistantService.
type AssistantDeps struct {
	Classifier ContextClassifier
	Snapshots  SnapshotSource
	Composer   *composer.Composer
	Generator  Generator
	Audit      audit.Sink
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// AssistantService answers chat messages and category selections.
//
// # Description
//
// Chat runs the per-request pipeline: classify the message, compose the
// prompt, generate, apply the escalation rule, audit. Greetings ("hi",
// "hello", "start") are answered with the greeting menu without generation. Category summarizes
// one menu topic from the cached knowledge snapshot.
//
// # Thread Safety
//
// Safe for concurrent use. No state is kept between requests.
type AssistantService struct {
	classifier ContextClassifier
	snapshots  SnapshotSource
	composer   *composer.Composer
	generator  Generator
	audit      audit.Sink
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewAssistantService creates the service. A nil Audit sink discards
// records and a nil Composer uses the default organization details.
func NewAssistantService(deps AssistantDeps) *AssistantService {
	if deps.Audit == nil {
		deps.Audit = audit.NopSink{}
	}
	if deps.Composer == nil {
		deps.Composer = composer.New(composer.DefaultConfig())
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &AssistantService{
		classifier: deps.Classifier,
		snapshots:  deps.Snapshots,
		composer:   deps.Composer,
		generator:  deps.Generator,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// Chat answers one user message.
//
// # Inputs
//
//   - ctx: Bounds knowledge fetches and generation.
//   - message: The validated user message.
//
// # Outputs
//
//   - *datatypes.ChatReply: The reply. Escalated replies carry the fixed
//     hand-off text.
//   - error: Non-nil only for configuration or prompt rendering failures.
//     Provider failures are already mapped to fixed replies.
func (s *AssistantService) Chat(ctx context.Context, message string) (*datatypes.ChatReply, error) {
	requestID := uuid.NewString()
	ctx, span := assistantTracer.Start(ctx, "AssistantService.Chat",
		trace.WithAttributes(attribute.String("request.id", requestID)),
	)
	defer span.End()
	start := time.Now()
	logger := s.logger.With("request_id", requestID)

	if datatypes.IsGreeting(message) {
		greeting := datatypes.DefaultGreeting()
		audit.Log(ctx, s.audit, logger, audit.NewRecord(message, audit.StatusSuccess))
		s.metrics.RecordRequest(observability.EndpointChat, string(audit.StatusSuccess), time.Since(start))
		span.SetAttributes(attribute.Bool("chat.greeting", true))
		logger.Debug("Chat answered with greeting menu")
		return &datatypes.ChatReply{Reply: greeting.Reply, Options: greeting.Options, RequestID: requestID}, nil
	}

	rc := s.classifier.Classify(ctx, message)
	span.SetAttributes(attribute.Int("knowledge.collections", len(rc)))

	instructions, err := s.composer.BuildInstructions(rc)
	if err != nil {
		return nil, s.fail(ctx, span, logger, observability.EndpointChat, message, start, err)
	}

	res, err := s.generator.Run(ctx, instructions, message)
	if err != nil {
		return nil, s.fail(ctx, span, logger, observability.EndpointChat, message, start, err)
	}

	reply := &datatypes.ChatReply{Reply: res.Text, RequestID: requestID}
	status := audit.StatusSuccess
	switch {
	case res.Text == "" || composer.ShouldEscalate(res.Text):
		reply.Reply = composer.EscalationReply
		reply.Escalated = true
		status = audit.StatusEscalated
		s.metrics.RecordEscalation()
		logger.Info("Chat escalated to support", "model", res.Model)
	case res.Fallback():
		status = audit.StatusError
		logger.Warn("Chat answered with fallback", "reason", res.Reason, "attempts", len(res.Attempts))
	default:
		logger.Info("Chat answered", "model", res.Model, "attempts", len(res.Attempts))
	}

	audit.Log(ctx, s.audit, logger, audit.NewRecord(message, status))
	s.metrics.RecordRequest(observability.EndpointChat, string(status), time.Since(start))
	span.SetAttributes(attribute.String("chat.status", string(status)))
	return reply, nil
}

// Category summarizes the knowledge for one menu category.
//
// # Description
//
// The cached snapshot is narrowed to the collections the category name
// matches by keyword; when nothing matches, the whole snapshot is used.
func (s *AssistantService) Category(ctx context.Context, category string) (*datatypes.ChatReply, error) {
	requestID := uuid.NewString()
	ctx, span := assistantTracer.Start(ctx, "AssistantService.Category",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("category", category),
		),
	)
	defer span.End()
	start := time.Now()
	logger := s.logger.With("request_id", requestID, "category", category)

	snap, err := s.snapshots.GetAll(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, logger, observability.EndpointCategory, category, start, err)
	}

	rc := snap.Collections
	if names := knowledge.Match(category); len(names) > 0 {
		rc = rc.Subset(names)
	}

	instructions, err := s.composer.BuildCategoryInstructions(category, rc)
	if err != nil {
		return nil, s.fail(ctx, span, logger, observability.EndpointCategory, category, start, err)
	}

	res, err := s.generator.Run(ctx, instructions, category)
	if err != nil {
		return nil, s.fail(ctx, span, logger, observability.EndpointCategory, category, start, err)
	}

	status := audit.StatusCategoryUsed
	if res.Fallback() {
		status = audit.StatusError
	}
	audit.Log(ctx, s.audit, logger, audit.NewRecord(category, status))
	s.metrics.RecordRequest(observability.EndpointCategory, string(status), time.Since(start))
	logger.Info("Category summarized", "model", res.Model, "collections", len(rc))

	return &datatypes.ChatReply{Reply: res.Text, RequestID: requestID}, nil
}

func (s *AssistantService) fail(ctx context.Context, span trace.Span, logger *slog.Logger, endpoint observability.Endpoint, message string, start time.Time, err error) error {
	logger.Error("Request failed", "endpoint", endpoint, "error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")
	audit.Log(ctx, s.audit, logger, audit.NewRecord(message, audit.StatusError))
	s.metrics.RecordRequest(endpoint, string(audit.StatusError), time.Since(start))
	return err
}
