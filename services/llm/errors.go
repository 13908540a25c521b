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
	"errors"
	"fmt"
	"net/http"
	"time"
)

// =============================================================================
// Error Kinds
// =============================================================================

// ErrorKind classifies a provider failure for retry and fallback decisions.
type ErrorKind int

const (
	// KindOther covers every failure that is neither NotFound nor RateLimited.
	KindOther ErrorKind = iota

	// KindNotFound means the model does not exist or is not accessible with
	// the supplied credentials.
	KindNotFound

	// KindRateLimited means the provider rejected the call for quota reasons.
	KindRateLimited
)

// String returns the metric/log label for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "other"
	}
}

// KindForStatus maps an HTTP status code to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindOther
	}
}

// =============================================================================
// ProviderError
// =============================================================================

// ProviderError is the tagged error returned by every adapter.
//
// # Fields
//
//   - Kind: NotFound, RateLimited or Other.
//   - Model: The model the call targeted, empty for list calls.
//   - StatusCode: HTTP status reported by the provider, 0 for transport errors.
//   - RetryAfter: Server-suggested delay for RateLimited errors, 0 when absent.
//   - QuotaViolations: Human-readable quota descriptions, when supplied.
//   - Err: The underlying SDK or transport error.
type ProviderError struct {
	Kind            ErrorKind
	Model           string
	StatusCode      int
	RetryAfter      time.Duration
	QuotaViolations []string
	Err             error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("provider error (%s, status %d, model %s): %v", e.Kind, e.StatusCode, e.Model, e.Err)
	}
	return fmt.Sprintf("provider error (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AsProviderError extracts a *ProviderError from err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the ErrorKind of err. Errors that are not ProviderErrors are
// KindOther.
func KindOf(err error) ErrorKind {
	if pe, ok := AsProviderError(err); ok {
		return pe.Kind
	}
	return KindOther
}

// =============================================================================
// Configuration Errors
// =============================================================================

// ErrMissingAPIKey is wrapped by ConfigurationError when no credential is set.
var ErrMissingAPIKey = errors.New("api key is not configured")

// ConfigurationError reports a deployment problem detected before any
// provider call is made.
type ConfigurationError struct {
	// Setting names the missing or invalid setting.
	Setting string
	Err     error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Setting, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
