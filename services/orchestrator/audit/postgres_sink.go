// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the chat log table name.
const DefaultTable = "chat_logs"

// Execer is the subset of pgxpool.Pool used by PostgresSink.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink inserts records into a chat log table.
type PostgresSink struct {
	db        Execer
	table     string
	insertSQL string
	closeFn   func()
}

// NewPostgresSink wraps an existing connection pool or mock.
func NewPostgresSink(db Execer, table string) *PostgresSink {
	if table == "" {
		table = DefaultTable
	}
	ident := pgx.Identifier{table}.Sanitize()
	return &PostgresSink{
		db:        db,
		table:     ident,
		insertSQL: "INSERT INTO " + ident + " (id, message, status, created_at) VALUES ($1, $2, $3, $4)",
	}
}

// OpenPostgresSink connects to dsn, verifies the connection and ensures the
// table exists.
func OpenPostgresSink(ctx context.Context, dsn, table string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect audit database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	s := NewPostgresSink(pool, table)
	s.closeFn = pool.Close
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the table when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	ddl := "CREATE TABLE IF NOT EXISTS " + s.table + ` (
	id         UUID PRIMARY KEY,
	message    TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

// Record implements Sink.
func (s *PostgresSink) Record(ctx context.Context, r Record) error {
	if _, err := s.db.Exec(ctx, s.insertSQL, r.ID, r.Message, string(r.Status), r.Timestamp); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Close implements Sink. Pools passed to NewPostgresSink are left open.
func (s *PostgresSink) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var _ Sink = (*PostgresSink)(nil)
