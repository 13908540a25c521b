// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SingleFlight(t *testing.T) {
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	cache := NewCache(f, CacheConfig{Scope: "codetribe"}, nil)

	const callers = 16
	results := make([]*Snapshot, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := cache.GetAll(context.Background())
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}

	// Let the callers pile up on the in-flight fetch before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	for _, c := range allCollections {
		assert.Equal(t, 1, f.fetched[c], "collection %s", c)
	}
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}

	again, err := cache.GetAll(context.Background())
	require.NoError(t, err)
	assert.Same(t, results[0], again)
	for _, c := range allCollections {
		assert.Equal(t, 1, f.fetched[c], "collection %s refetched", c)
	}
	assert.True(t, cache.Loaded())
}

func TestCache_PartialFailure(t *testing.T) {
	f := newFakeFetcher()
	f.fail[Policies] = errors.New("503 from api")
	f.data[Overview] = Dataset{Object: json.RawMessage(`{"mission":"x"}`)}
	cache := NewCache(f, CacheConfig{}, nil)

	s, err := cache.GetAll(context.Background())

	require.NoError(t, err)
	assert.Len(t, s.Collections, len(allCollections))
	assert.True(t, s.Collections[Policies].IsEmpty())
	assert.Contains(t, s.Failed, Policies)
	assert.Len(t, s.Failed, 1)
	assert.Equal(t, 1, s.Collections[Overview].Len())
	for _, c := range allCollections {
		if c == Policies {
			continue
		}
		assert.False(t, s.Collections[c].IsEmpty(), "collection %s", c)
	}
	assert.False(t, s.FetchedAt.IsZero())
}

func TestCache_ScopeAppliedToScopedCollections(t *testing.T) {
	f := newFakeFetcher()
	cache := NewCache(f, CacheConfig{Scope: "codetribe", ProgrammeID: "p-1"}, nil)

	_, err := cache.GetAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "codetribe", f.filters[FAQs].Scope)
	assert.Empty(t, f.filters[Policies].Scope)
	assert.Equal(t, "p-1", f.filters[Curriculum].ProgrammeID)
	assert.Zero(t, f.filters[Curriculum].MaxRecords)
}

func TestCache_CallerCancellationDoesNotPoisonFetch(t *testing.T) {
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	cache := NewCache(f, CacheConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.GetAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(f.gate)
	s, err := cache.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Failed)
	for _, c := range allCollections {
		assert.Equal(t, 1, f.fetched[c], "collection %s", c)
	}
}

func TestCache_Warm(t *testing.T) {
	f := newFakeFetcher()
	cache := NewCache(f, CacheConfig{}, nil)

	assert.False(t, cache.Loaded())
	cache.Warm(context.Background())
	assert.True(t, cache.Loaded())
}
