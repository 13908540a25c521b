// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge retrieves structured programme facts from the remote
// knowledge API.
//
// # Components
//
//   - Client: paginated, typed access to each collection endpoint.
//   - Classifier: maps a user message to the collections worth fetching and
//     fetches them concurrently.
//   - Cache: a process-lifetime, single-flight snapshot of every collection.
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
package knowledge

import (
	"encoding/json"
	"sort"
)

// Collection names a top-level category of knowledge records.
type Collection string

const (
	Programmes         Collection = "programmes"
	FAQs               Collection = "faqs"
	Eligibility        Collection = "eligibility"
	ApplicationProcess Collection = "applicationProcess"
	Curriculum         Collection = "curriculum"
	Schedules          Collection = "schedules"
	FinancialBreakdown Collection = "financialBreakdown"
	Policies           Collection = "policies"
	Locations          Collection = "locations"
	Partners           Collection = "partners"
	Overview           Collection = "overview"
)

var allCollections = []Collection{
	Programmes, FAQs, Eligibility, ApplicationProcess, Curriculum,
	Schedules, FinancialBreakdown, Policies, Locations, Partners, Overview,
}

// AllCollections returns every collection in canonical order.
func AllCollections() []Collection {
	out := make([]Collection, len(allCollections))
	copy(out, allCollections)
	return out
}

// rank returns the canonical position of c, or len(allCollections) when
// unknown.
func rank(c Collection) int {
	for i, known := range allCollections {
		if known == c {
			return i
		}
	}
	return len(allCollections)
}

// Filters narrows a collection request.
//
// Empty fields are not sent. MaxRecords caps the number of records gathered
// across pages; zero means no cap.
type Filters struct {
	Scope       string
	Category    string
	Source      string
	ProgrammeID string
	Type        string
	City        string
	Province    string
	Sort        string
	Order       string
	MaxRecords  int
}

// Dataset is the payload of one collection: an ordered list of opaque
// records, or the single object of a singleton collection such as overview.
type Dataset struct {
	Items  []json.RawMessage
	Object json.RawMessage
}

// Len returns the number of records.
func (d Dataset) Len() int {
	if d.Object != nil {
		return 1
	}
	return len(d.Items)
}

// IsEmpty reports whether the dataset holds no records.
func (d Dataset) IsEmpty() bool {
	return d.Len() == 0
}

// MarshalJSON emits the object for singletons and an array otherwise.
func (d Dataset) MarshalJSON() ([]byte, error) {
	if d.Object != nil {
		return d.Object, nil
	}
	if d.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d.Items)
}

// RelevantContext maps collection names to the data fetched for one
// request. A failed fetch leaves its key absent.
type RelevantContext map[Collection]Dataset

// Keys returns the populated collections in canonical order.
func (rc RelevantContext) Keys() []Collection {
	keys := make([]Collection, 0, len(rc))
	for k := range rc {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Subset returns a new context holding only the listed collections that are
// present in rc.
func (rc RelevantContext) Subset(names []Collection) RelevantContext {
	out := make(RelevantContext, len(names))
	for _, n := range names {
		if ds, ok := rc[n]; ok {
			out[n] = ds
		}
	}
	return out
}
