// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit records the outcome of every chat interaction.
//
// Records carry the inbound message, an outcome status and a timestamp.
// Sinks write them to an append-only JSON lines file, a Postgres table, or
// both. Sink failures are logged by callers and never fail a request.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of one interaction.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusEscalated    Status = "escalated"
	StatusError        Status = "error"
	StatusCategoryUsed Status = "category_used"
)

// Record is one audit entry.
type Record struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecord stamps a record with a fresh id and the current UTC time.
func NewRecord(message string, status Status) Record {
	return Record{
		ID:        uuid.NewString(),
		Message:   message,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives audit records.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Record persists r. Errors are reported to the caller, who logs them.
	Record(ctx context.Context, r Record) error

	// Close releases resources held by the sink.
	Close() error
}

// =============================================================================
// NopSink
// =============================================================================

// NopSink discards records.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, Record) error { return nil }

// Close implements Sink.
func (NopSink) Close() error { return nil }

// =============================================================================
// MultiSink
// =============================================================================

// MultiSink fans records out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink returns a sink writing to every non-nil sink given.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record writes to every sink and joins their errors.
func (m *MultiSink) Record(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wrapped sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

// recordTimeout bounds a single Log call.
const recordTimeout = 5 * time.Second

// Log records r on sink and logs any failure. It never returns an error.
// The write survives cancellation of ctx so that aborted requests are
// still audited.
func Log(ctx context.Context, sink Sink, logger *slog.Logger, r Record) {
	if sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := sink.Record(ctx, r); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Audit record not persisted", "status", r.Status, "id", r.ID, "error", err)
	}
}

var (
	_ Sink = NopSink{}
	_ Sink = (*MultiSink)(nil)
)
