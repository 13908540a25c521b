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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// auditFileMode restricts the log to its owner. Records contain raw user
// messages.
const auditFileMode = 0600

// FileSink appends records as JSON lines.
//
// # Description
//
// Each record is written as one line:
//
//	{"id":"…","message":"…","status":"success","timestamp":"2025-01-01T10:00:00Z"}
//
// The file is opened in append mode and created with 0600 permissions.
//
// # Limitations
//
//   - Rotation is handled externally.
//
// # Thread Safety
//
// Writes are serialized by a mutex.
type FileSink struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) the log at path.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, auditFileMode)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	slog.Info("Audit file sink initialized", "path", path)
	return &FileSink{path: path, file: f}, nil
}

// Record implements Sink.
func (s *FileSink) Record(_ context.Context, r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("audit file sink is closed")
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Path returns the log file location.
func (s *FileSink) Path() string { return s.path }

var _ Sink = (*FileSink)(nil)
