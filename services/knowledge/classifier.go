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
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Fetcher is the subset of Client used by the classifier and cache.
type Fetcher interface {
	FetchCollection(ctx context.Context, name Collection, f Filters) (Dataset, error)
	SearchFAQs(ctx context.Context, query string, f Filters) (Dataset, error)
}

// keywordRule routes a message to collections when any keyword is a
// substring of the lower-cased message.
type keywordRule struct {
	keywords    []string
	collections []Collection
}

var keywordRules = []keywordRule{
	{
		keywords:    []string{"faq", "question", "answer", "what", "how", "when", "where", "why"},
		collections: []Collection{FAQs},
	},
	{
		keywords:    []string{"eligible", "eligibility", "qualification", "requirement", "age", "citizenship", "qualify"},
		collections: []Collection{Eligibility},
	},
	{
		keywords:    []string{"apply", "application", "process", "step", "register", "tshepo", "bootcamp", "document"},
		collections: []Collection{ApplicationProcess},
	},
	{
		keywords:    []string{"curriculum", "course", "module", "learn", "teach", "study", "topic", "subject", "mobile", "web", "cloud", "scrum"},
		collections: []Collection{Curriculum},
	},
	{
		keywords:    []string{"schedule", "time", "hour", "day", "class", "when", "date", "bootcamp", "graduation"},
		collections: []Collection{Schedules},
	},
	{
		keywords:    []string{"cost", "price", "fee", "stipend", "financial", "money", "payment", "free", "subsidy"},
		collections: []Collection{FinancialBreakdown},
	},
	{
		keywords:    []string{"policy", "rule", "conduct", "attendance", "assessment", "equipment", "internet"},
		collections: []Collection{Policies},
	},
	{
		keywords:    []string{"location", "where", "address", "city", "province", "office", "headquarters"},
		collections: []Collection{Locations},
	},
	{
		keywords:    []string{"partner", "sponsor", "collaboration"},
		collections: []Collection{Partners},
	},
	{
		keywords:    []string{"programme", "program", "overview", "about", "codetribe", "mlab"},
		collections: []Collection{Programmes, Overview},
	},
}

// defaultCollections are fetched when nothing else produced data.
var defaultCollections = []Collection{Programmes, Overview}

// Match returns the collections whose keywords occur in message, in
// canonical order. Matching is case-insensitive substring containment.
func Match(message string) []Collection {
	lower := strings.ToLower(message)
	hit := make(map[Collection]bool)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				for _, c := range rule.collections {
					hit[c] = true
				}
				break
			}
		}
	}
	out := make([]Collection, 0, len(hit))
	for _, c := range allCollections {
		if hit[c] {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// Classifier
// =============================================================================

// ClassifierConfig sets the request shape used for each collection.
type ClassifierConfig struct {
	// Scope is sent to scope-aware endpoints, e.g. "codetribe".
	Scope string

	// ProgrammeID is used for programme-scoped collections.
	ProgrammeID string

	// Limits caps records per collection. Missing entries use DefaultLimit.
	Limits map[Collection]int

	// DefaultLimit applies to collections without an entry in Limits.
	DefaultLimit int

	// SearchLimit caps FAQ search hits.
	SearchLimit int

	// Concurrency bounds in-flight fetches per phase.
	Concurrency int
}

// DefaultClassifierConfig returns the request shape used in production.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Scope: "codetribe",
		Limits: map[Collection]int{
			FAQs:       20,
			Programmes: 10,
			Overview:   10,
		},
		DefaultLimit: 50,
		SearchLimit:  10,
		Concurrency:  len(allCollections),
	}
}

// Classifier turns a user message into a RelevantContext.
type Classifier struct {
	fetcher Fetcher
	cfg     ClassifierConfig
	logger  *slog.Logger
}

// NewClassifier creates a classifier over fetcher.
func NewClassifier(fetcher Fetcher, cfg ClassifierConfig, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = len(allCollections)
	}
	return &Classifier{fetcher: fetcher, cfg: cfg, logger: logger}
}

func (c *Classifier) filtersFor(name Collection) Filters {
	limit, ok := c.cfg.Limits[name]
	if !ok {
		limit = c.cfg.DefaultLimit
	}
	f := Filters{MaxRecords: limit, ProgrammeID: c.cfg.ProgrammeID}
	switch name {
	case FAQs, Programmes, Overview:
		f.Scope = c.cfg.Scope
	}
	return f
}

// Classify selects and fetches the collections relevant to message.
//
// # Description
//
//  1. Collections matched by keyword are fetched concurrently.
//  2. When that yields nothing, programmes and overview are fetched.
//  3. When no FAQs were collected, a free-text FAQ search on the raw
//     message is merged in if it returns hits.
//
// A failed fetch is logged and leaves its key absent. Classify never fails;
// an unreachable API produces an empty context.
func (c *Classifier) Classify(ctx context.Context, message string) RelevantContext {
	ctx, span := knowledgeTracer.Start(ctx, "knowledge.classify")
	defer span.End()

	matched := Match(message)
	span.SetAttributes(attribute.Int("knowledge.matched", len(matched)))

	result := make(RelevantContext, len(matched)+1)
	c.fetchAll(ctx, matched, result)

	if len(result) == 0 {
		c.logger.Debug("No keyword data, using default collections", "matched", len(matched))
		c.fetchAll(ctx, defaultCollections, result)
	}

	if faqs, ok := result[FAQs]; !ok || faqs.IsEmpty() {
		hits, err := c.fetcher.SearchFAQs(ctx, message, Filters{Scope: c.cfg.Scope, MaxRecords: c.cfg.SearchLimit})
		switch {
		case err != nil:
			c.logger.Warn("FAQ search failed", "error", err)
		case !hits.IsEmpty():
			result[FAQs] = hits
		}
	}

	span.SetAttributes(attribute.Int("knowledge.collections", len(result)))
	span.AddEvent("classified", trace.WithAttributes(attribute.StringSlice("knowledge.keys", collectionStrings(result.Keys()))))
	return result
}

// fetchAll fetches names concurrently and stores successes in into.
func (c *Classifier) fetchAll(ctx context.Context, names []Collection, into RelevantContext) {
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)

	for _, name := range names {
		g.Go(func() error {
			ds, err := c.fetcher.FetchCollection(ctx, name, c.filtersFor(name))
			if err != nil {
				c.logger.Warn("Knowledge fetch failed", "collection", name, "error", err)
				return nil
			}
			mu.Lock()
			into[name] = ds
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func collectionStrings(cs []Collection) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
