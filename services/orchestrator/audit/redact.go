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
	_ "embed"
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// redactionPatterns is compiled into the binary so the masking rules travel
// with the executable.
//
//go:embed redaction_patterns.yaml
var redactionPatterns []byte

// Confidence grades how likely a pattern is to be a true positive.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// UnmarshalYAML rejects unknown confidence levels.
func (c *Confidence) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch Confidence(s) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		*c = Confidence(s)
		return nil
	default:
		return fmt.Errorf("invalid confidence %q", s)
	}
}

type patternFile struct {
	Classifications []Classification `yaml:"classifications"`
}

// Classification groups patterns of one sensitivity class.
type Classification struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Patterns    []Pattern `yaml:"patterns"`
}

// Pattern is one masking rule.
type Pattern struct {
	ID          string     `yaml:"id"`
	Description string     `yaml:"description"`
	Regex       string     `yaml:"regex"`
	Confidence  Confidence `yaml:"confidence"`

	re *regexp.Regexp
}

// Finding describes one masked span.
type Finding struct {
	Classification string
	PatternID      string
	Confidence     Confidence
}

// Redactor masks sensitive substrings.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type Redactor struct {
	classes []Classification
}

// NewRedactor loads the embedded pattern set.
func NewRedactor() (*Redactor, error) {
	return ParseRedactor(redactionPatterns)
}

// ParseRedactor builds a Redactor from YAML pattern definitions.
// Classes are applied from highest to lowest priority.
func ParseRedactor(data []byte) (*Redactor, error) {
	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal redaction patterns: %w", err)
	}
	for i := range file.Classifications {
		for j := range file.Classifications[i].Patterns {
			p := &file.Classifications[i].Patterns[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("failed to compile pattern %s: %w", p.ID, err)
			}
			p.re = re
		}
	}
	sort.SliceStable(file.Classifications, func(i, j int) bool {
		return file.Classifications[i].Priority > file.Classifications[j].Priority
	})
	return &Redactor{classes: file.Classifications}, nil
}

// Redact replaces every match with a placeholder naming the pattern, for
// example "[EMAIL_ADDRESS]", and reports what was masked.
func (r *Redactor) Redact(s string) (string, []Finding) {
	var findings []Finding
	for _, class := range r.classes {
		for _, p := range class.Patterns {
			n := 0
			s = p.re.ReplaceAllStringFunc(s, func(string) string {
				n++
				return "[" + p.ID + "]"
			})
			for ; n > 0; n-- {
				findings = append(findings, Finding{
					Classification: class.Name,
					PatternID:      p.ID,
					Confidence:     p.Confidence,
				})
			}
		}
	}
	return s, findings
}

// =============================================================================
// RedactingSink
// =============================================================================

// RedactingSink masks record messages before handing them to the next sink.
type RedactingSink struct {
	next     Sink
	redactor *Redactor
}

// NewRedactingSink wraps next.
func NewRedactingSink(next Sink, redactor *Redactor) *RedactingSink {
	return &RedactingSink{next: next, redactor: redactor}
}

// Record implements Sink.
func (s *RedactingSink) Record(ctx context.Context, r Record) error {
	r.Message, _ = s.redactor.Redact(r.Message)
	return s.next.Record(ctx, r)
}

// Close implements Sink.
func (s *RedactingSink) Close() error { return s.next.Close() }

var _ Sink = (*RedactingSink)(nil)
