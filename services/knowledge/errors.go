// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"errors"
	"fmt"
)

// FetchError is returned when the knowledge API answers with a non-2xx
// status.
//
// # Fields
//
//   - Collection: The collection being fetched, empty for FAQ search.
//   - Endpoint: The request path, e.g. "/eligibility/<id>".
//   - StatusCode: HTTP status code.
//   - Message: The "message" field of the error body, when present.
type FetchError struct {
	Collection Collection
	Endpoint   string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("knowledge api %s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("knowledge api %s returned %d", e.Endpoint, e.StatusCode)
}

// IsFetchError checks if an error is a FetchError and returns it.
func IsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
