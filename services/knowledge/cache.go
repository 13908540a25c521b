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
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Snapshot is the aggregate of every collection.
//
// Collections holds an entry for every collection; failed collections hold
// an empty Dataset and are listed in Failed. A Snapshot is shared between
// callers and must be treated as read-only.
type Snapshot struct {
	Collections RelevantContext
	Failed      map[Collection]error
	FetchedAt   time.Time
}

// CacheConfig sets the request shape for the aggregate fetch.
type CacheConfig struct {
	Scope       string
	ProgrammeID string
}

// Cache memoizes a snapshot of all collections for the life of the process.
//
// # Description
//
// The first GetAll starts the aggregate fetch; concurrent callers share it
// through a singleflight group and every later call reads the stored
// snapshot. The aggregate fetch runs at most once per Cache. There is no
// invalidation; create a new Cache to refetch.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cache struct {
	fetcher Fetcher
	cfg     CacheConfig
	logger  *slog.Logger

	flight singleflight.Group

	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewCache creates an empty cache over fetcher.
func NewCache(fetcher Fetcher, cfg CacheConfig, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{fetcher: fetcher, cfg: cfg, logger: logger}
}

const snapshotKey = "all"

// GetAll returns the aggregate snapshot, fetching it on first use.
//
// # Description
//
// The shared fetch is detached from the caller's cancellation so that one
// caller giving up does not fail the fetch for the others. A caller whose
// ctx ends first receives ctx.Err(); the fetch keeps running and its result
// is stored.
func (c *Cache) GetAll(ctx context.Context) (*Snapshot, error) {
	if s := c.loaded(); s != nil {
		return s, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(snapshotKey, func() (any, error) {
		if s := c.loaded(); s != nil {
			return s, nil
		}
		s := c.fetchSnapshot(fetchCtx)
		c.mu.Lock()
		c.snapshot = s
		c.mu.Unlock()
		return s, nil
	})

	select {
	case res := <-ch:
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Warm starts the aggregate fetch and waits for it.
func (c *Cache) Warm(ctx context.Context) {
	s, err := c.GetAll(ctx)
	if err != nil {
		c.logger.Warn("Knowledge cache warm-up interrupted", "error", err)
		return
	}
	c.logger.Info("Knowledge cache loaded",
		"collections", len(s.Collections)-len(s.Failed),
		"failed", len(s.Failed),
	)
}

// Loaded reports whether the snapshot has been stored.
func (c *Cache) Loaded() bool {
	return c.loaded() != nil
}

func (c *Cache) loaded() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Cache) fetchSnapshot(ctx context.Context) *Snapshot {
	ctx, span := knowledgeTracer.Start(ctx, "knowledge.cache.fetch_all")
	defer span.End()

	s := &Snapshot{
		Collections: make(RelevantContext, len(allCollections)),
		Failed:      make(map[Collection]error),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, name := range allCollections {
		g.Go(func() error {
			f := Filters{ProgrammeID: c.cfg.ProgrammeID}
			switch name {
			case FAQs, Programmes, Overview:
				f.Scope = c.cfg.Scope
			}
			ds, err := c.fetcher.FetchCollection(ctx, name, f)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Warn("Knowledge collection unavailable", "collection", name, "error", err)
				s.Failed[name] = err
				s.Collections[name] = Dataset{}
				return nil
			}
			s.Collections[name] = ds
			return nil
		})
	}
	_ = g.Wait()

	s.FetchedAt = time.Now()
	return s
}

var _ Fetcher = (*Client)(nil)
