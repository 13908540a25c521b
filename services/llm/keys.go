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
	"os"
	"strings"
)

// KeySource resolves the provider API key.
//
// # Description
//
// The key is looked up on every call to Key, never cached, so a rotated
// secret or a late-loaded environment takes effect on the next request.
// Environment variables are tried in order, then SecretFile.
type KeySource struct {
	// EnvVars are checked in order; the first non-empty value wins.
	EnvVars []string

	// SecretFile is read when no variable is set, e.g. /run/secrets/gemini_api_key.
	SecretFile string

	// lookup replaces os.Getenv in tests.
	lookup func(string) string
}

// NewKeySource returns a KeySource over the given environment variables.
func NewKeySource(secretFile string, envVars ...string) *KeySource {
	return &KeySource{EnvVars: envVars, SecretFile: secretFile}
}

// StaticKey returns a KeySource that always yields key.
func StaticKey(key string) *KeySource {
	return &KeySource{
		EnvVars: []string{"static"},
		lookup:  func(string) string { return key },
	}
}

// Key returns the current API key or "" when none is configured.
func (s *KeySource) Key() string {
	if s == nil {
		return ""
	}
	lookup := s.lookup
	if lookup == nil {
		lookup = os.Getenv
	}
	for _, name := range s.EnvVars {
		if v := strings.TrimSpace(lookup(name)); v != "" {
			return v
		}
	}
	if s.SecretFile != "" {
		if b, err := os.ReadFile(s.SecretFile); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return ""
}

// Setting describes where the key is expected, for configuration errors.
func (s *KeySource) Setting() string {
	if s == nil || len(s.EnvVars) == 0 {
		return "api key"
	}
	return strings.Join(s.EnvVars, " or ")
}
