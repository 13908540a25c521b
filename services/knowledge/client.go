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
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var knowledgeTracer = otel.Tracer("mlab.services.knowledge")

// =============================================================================
// Configuration
// =============================================================================

const (
	// DefaultBaseURL is the public knowledge API.
	DefaultBaseURL = "https://mlab-knowledge-api.vercel.app/api"

	// DefaultProgrammeID is the CodeTribe programme used by programme-scoped
	// collections when the request does not name one.
	DefaultProgrammeID = "c76a6628-455f-4afa-9fba-6125f6ff7c40"

	defaultPageSize = 100
	defaultMaxPages = 50
	defaultTimeout  = 15 * time.Second
)

// ClientConfig configures a Client. Zero values take defaults.
type ClientConfig struct {
	BaseURL            string
	Timeout            time.Duration
	PageSize           int
	MaxPages           int
	DefaultProgrammeID string
}

func (c *ClientConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.DefaultProgrammeID == "" {
		c.DefaultProgrammeID = DefaultProgrammeID
	}
}

// FetchObserver receives one observation per collection fetch.
// outcome is "success" or "error".
type FetchObserver interface {
	ObserveKnowledgeFetch(collection, outcome string, elapsed time.Duration)
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithObserver attaches a fetch observer, typically prometheus metrics.
func WithObserver(o FetchObserver) ClientOption {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger used by the client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// =============================================================================
// Endpoint Table
// =============================================================================

const (
	paramScope    = "scope"
	paramCategory = "category"
	paramSource   = "source"
	paramType     = "type"
	paramCity     = "city"
	paramProvince = "province"
)

type endpointSpec struct {
	path            string
	programmeScoped bool
	params          []string
}

var endpoints = map[Collection]endpointSpec{
	Programmes:         {path: "/programmes", params: []string{paramScope, paramCategory}},
	FAQs:               {path: "/faqs", params: []string{paramScope, paramCategory, paramSource}},
	Eligibility:        {path: "/eligibility/", programmeScoped: true},
	ApplicationProcess: {path: "/application-process/", programmeScoped: true},
	Curriculum:         {path: "/curriculum/", programmeScoped: true},
	Schedules:          {path: "/schedules/", programmeScoped: true},
	FinancialBreakdown: {path: "/financial-breakdown/", programmeScoped: true},
	Policies:           {path: "/policies", params: []string{paramCategory}},
	Locations:          {path: "/locations", params: []string{paramType, paramCity, paramProvince}},
	Partners:           {path: "/partners"},
	Overview:           {path: "/overview", params: []string{paramScope}},
}

const faqSearchPath = "/faqs/search"

func (f Filters) param(name string) string {
	switch name {
	case paramScope:
		return f.Scope
	case paramCategory:
		return f.Category
	case paramSource:
		return f.Source
	case paramType:
		return f.Type
	case paramCity:
		return f.City
	case paramProvince:
		return f.Province
	}
	return ""
}

// =============================================================================
// Client
// =============================================================================

// Client reads collections from the knowledge API.
//
// # Description
//
// List endpoints are paged with limit/offset using a fixed page size; the
// client keeps requesting while the server reports pagination.hasMore.
// Singleton endpoints answer {"data": {...}} and are returned directly.
// The client never retries.
type Client struct {
	cfg      ClientConfig
	http     *resty.Client
	observer FetchObserver
	logger   *slog.Logger
}

// NewClient creates a knowledge API client.
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	cfg.applyDefaults()
	c := &Client{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json"),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchCollection retrieves every record of one collection.
//
// # Inputs
//
//   - ctx: Bounds all page requests.
//   - name: The collection to fetch.
//   - f: Optional filters. Programme-scoped collections use f.ProgrammeID
//     or the configured default programme.
//
// # Outputs
//
//   - Dataset: Records in server order, or the singleton object.
//   - error: *FetchError for non-2xx responses, a wrapped transport or
//     decode error otherwise.
func (c *Client) FetchCollection(ctx context.Context, name Collection, f Filters) (Dataset, error) {
	ep, ok := endpoints[name]
	if !ok {
		return Dataset{}, fmt.Errorf("unknown knowledge collection %q", name)
	}

	path := ep.path
	if ep.programmeScoped {
		id := f.ProgrammeID
		if id == "" {
			id = c.cfg.DefaultProgrammeID
		}
		path += url.PathEscape(id)
	}

	params := map[string]string{}
	for _, p := range ep.params {
		if v := f.param(p); v != "" {
			params[p] = v
		}
	}
	if !ep.programmeScoped {
		if f.Sort != "" {
			params["sort"] = f.Sort
		}
		if f.Order != "" {
			params["order"] = f.Order
		}
	}

	return c.fetchPaged(ctx, name, path, params, f.MaxRecords)
}

// SearchFAQs runs a free-text FAQ search.
func (c *Client) SearchFAQs(ctx context.Context, query string, f Filters) (Dataset, error) {
	params := map[string]string{"q": query}
	if f.Scope != "" {
		params[paramScope] = f.Scope
	}
	return c.fetchPaged(ctx, FAQs, faqSearchPath, params, f.MaxRecords)
}

func (c *Client) fetchPaged(ctx context.Context, name Collection, path string, params map[string]string, maxRecords int) (Dataset, error) {
	ctx, span := knowledgeTracer.Start(ctx, "knowledge.fetch",
		trace.WithAttributes(
			attribute.String("knowledge.collection", string(name)),
			attribute.String("knowledge.endpoint", path),
		),
	)
	defer span.End()

	start := time.Now()
	ds, err := c.collectPages(ctx, name, path, params, maxRecords)
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "knowledge fetch failed")
	} else {
		span.SetAttributes(attribute.Int("knowledge.records", ds.Len()))
	}
	if c.observer != nil {
		c.observer.ObserveKnowledgeFetch(string(name), outcome, time.Since(start))
	}
	return ds, err
}

func (c *Client) collectPages(ctx context.Context, name Collection, path string, params map[string]string, maxRecords int) (Dataset, error) {
	var ds Dataset
	offset := 0

	for page := 0; page < c.cfg.MaxPages; page++ {
		query := make(map[string]string, len(params)+2)
		for k, v := range params {
			query[k] = v
		}
		query["limit"] = strconv.Itoa(c.cfg.PageSize)
		query["offset"] = strconv.Itoa(offset)

		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(query).
			Get(path)
		if err != nil {
			return Dataset{}, fmt.Errorf("fetch %s: %w", path, err)
		}

		body := resp.Body()
		if !resp.IsSuccess() {
			return Dataset{}, &FetchError{
				Collection: name,
				Endpoint:   path,
				StatusCode: resp.StatusCode(),
				Message:    gjson.GetBytes(body, "message").String(),
			}
		}
		if !gjson.ValidBytes(body) {
			return Dataset{}, fmt.Errorf("fetch %s: response is not valid JSON", path)
		}

		data := gjson.GetBytes(body, "data")
		switch {
		case !data.Exists(), data.Type == gjson.Null:
			ds.Object = append(json.RawMessage(nil), body...)
			return ds, nil
		case data.IsObject():
			ds.Object = json.RawMessage(data.Raw)
			return ds, nil
		case !data.IsArray():
			return ds, nil
		}

		items := data.Array()
		for _, item := range items {
			ds.Items = append(ds.Items, json.RawMessage(item.Raw))
		}
		if maxRecords > 0 && len(ds.Items) >= maxRecords {
			ds.Items = ds.Items[:maxRecords]
			return ds, nil
		}
		if len(items) == 0 || !gjson.GetBytes(body, "pagination.hasMore").Bool() {
			return ds, nil
		}
		offset += len(items)
	}

	c.logger.Warn("Knowledge pagination stopped at page limit",
		"collection", name,
		"endpoint", path,
		"max_pages", c.cfg.MaxPages,
		"records", len(ds.Items),
	)
	return ds, nil
}
