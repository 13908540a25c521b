// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the assistant.
//
// # Description
//
// This package implements Prometheus metrics for the chat pipeline:
//   - Request counters and latency (by endpoint and status)
//   - Knowledge API fetches (by collection and outcome)
//   - Generation attempts (by model and outcome) and fallback replies
//   - Escalations
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. *Metrics satisfies the
// observer interfaces of the knowledge and generation packages.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "mlab_assistant"

// Metrics holds all Prometheus metrics for the assistant.
//
// # Fields
//
//   - RequestsTotal: Counter of HTTP requests by endpoint and status
//   - RequestDurationSeconds: Histogram of end-to-end request latency
//   - KnowledgeFetchesTotal: Counter of knowledge API fetches
//   - KnowledgeFetchDurationSeconds: Histogram of knowledge fetch latency
//   - GenerationAttemptsTotal: Counter of provider calls by model and outcome
//   - GenerationFallbacksTotal: Counter of fixed replies by reason
//   - EscalationsTotal: Counter of replies handed to human support
type Metrics struct {
	// Labels: endpoint (chat, category), status (success, escalated, error, rejected)
	RequestsTotal *prometheus.CounterVec

	// Labels: endpoint
	RequestDurationSeconds *prometheus.HistogramVec

	// Labels: collection, outcome (success, error)
	KnowledgeFetchesTotal *prometheus.CounterVec

	// Labels: collection
	KnowledgeFetchDurationSeconds *prometheus.HistogramVec

	// Labels: model, outcome (success, empty, not_found, rate_limited, other)
	GenerationAttemptsTotal *prometheus.CounterVec

	// Labels: reason (empty, saturated, high_demand, models_inaccessible, connectivity)
	GenerationFallbacksTotal *prometheus.CounterVec

	EscalationsTotal prometheus.Counter
}

// DefaultMetrics is the process-wide instance registered on the default
// registry. Initialized by InitMetrics().
var DefaultMetrics *Metrics

// InitMetrics registers metrics on the default Prometheus registry.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *Metrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewMetrics creates and registers all metrics on reg.
//
// # Inputs
//
//   - reg: Registry to register on. Tests pass prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total number of chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end chat request latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"endpoint"},
		),

		KnowledgeFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "knowledge",
				Name:      "fetches_total",
				Help:      "Knowledge API collection fetches by collection and outcome",
			},
			[]string{"collection", "outcome"},
		),

		KnowledgeFetchDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "knowledge",
				Name:      "fetch_duration_seconds",
				Help:      "Knowledge API collection fetch latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
			},
			[]string{"collection"},
		),

		GenerationAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "generation",
				Name:      "attempts_total",
				Help:      "Provider generation calls by model and outcome",
			},
			[]string{"model", "outcome"},
		),

		GenerationFallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "generation",
				Name:      "fallbacks_total",
				Help:      "Fixed fallback replies by reason",
			},
			[]string{"reason"},
		),

		EscalationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "escalations_total",
				Help:      "Replies handed to human support",
			},
		),
	}
}

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint labels a chat endpoint.
type Endpoint string

const (
	EndpointChat     Endpoint = "chat"
	EndpointCategory Endpoint = "category"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed request. Nil receivers are ignored.
func (m *Metrics) RecordRequest(endpoint Endpoint, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
	m.RequestDurationSeconds.WithLabelValues(string(endpoint)).Observe(elapsed.Seconds())
}

// RecordEscalation increments the escalation counter.
func (m *Metrics) RecordEscalation() {
	if m == nil {
		return
	}
	m.EscalationsTotal.Inc()
}

// ObserveKnowledgeFetch implements knowledge.FetchObserver.
func (m *Metrics) ObserveKnowledgeFetch(collection, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.KnowledgeFetchesTotal.WithLabelValues(collection, outcome).Inc()
	m.KnowledgeFetchDurationSeconds.WithLabelValues(collection).Observe(elapsed.Seconds())
}

// ObserveGenerationAttempt implements generation.AttemptObserver.
func (m *Metrics) ObserveGenerationAttempt(model, outcome string) {
	if m == nil {
		return
	}
	m.GenerationAttemptsTotal.WithLabelValues(model, outcome).Inc()
}

// ObserveGenerationFallback implements generation.AttemptObserver.
func (m *Metrics) ObserveGenerationFallback(reason string) {
	if m == nil {
		return
	}
	m.GenerationFallbacksTotal.WithLabelValues(reason).Inc()
}
