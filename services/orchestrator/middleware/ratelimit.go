// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the orchestrator service.
//
// # Rate Limiting
//
// RateLimit keeps one token bucket per client IP. A request that finds its
// bucket empty is rejected with 429 and the generic busy reply:
//
//	Request
//	   │
//	   ▼
//	RateLimit ──► limiter for c.ClientIP()
//	   │
//	   ├─► Allow()  → next handler
//	   │
//	   └─► !Allow() → 429 {reply: TechnicalDifficultyReply, error: "rate_limited"}
//
// Buckets idle for longer than IdleTTL are dropped during later requests,
// so no background goroutine is needed.
package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/mlab-assistant/services/orchestrator/datatypes"
)

// =============================================================================
// Configuration
// =============================================================================

// RateLimitConfig configures the per-client limiter.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client. Zero or negative
	// disables limiting.
	RequestsPerSecond float64

	// Burst is the bucket size.
	Burst int

	// IdleTTL is how long an unused bucket is kept.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig allows one request per second with bursts of five.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             5,
		IdleTTL:           10 * time.Minute,
	}
}

// =============================================================================
// Limiter Registry
// =============================================================================

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ClientLimiter hands out one token bucket per client key.
//
// # Thread Safety
//
// Safe for concurrent use.
type ClientLimiter struct {
	cfg       RateLimitConfig
	now       func() time.Time
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastPrune time.Time
}

// NewClientLimiter creates a registry for cfg.
func NewClientLimiter(cfg RateLimitConfig) *ClientLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &ClientLimiter{
		cfg:      cfg,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

// Allow reports whether key may make a request now.
func (l *ClientLimiter) Allow(key string) bool {
	if l.cfg.RequestsPerSecond <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > l.cfg.IdleTTL {
		l.pruneLocked(now)
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst),
		}
		l.limiters[key] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *ClientLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastAccess) > l.cfg.IdleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastPrune = now
}

// =============================================================================
// Middleware
// =============================================================================

// RateLimit rejects clients that exceed their token bucket.
//
// # Inputs
//
//   - limiter: Per-client registry. A nil limiter lets every request through.
//
// # Outputs
//
//   - gin.HandlerFunc: Aborts with 429 and the technical-difficulty reply when the
//     client's bucket is empty.
func RateLimit(limiter *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			slog.Warn("Rate limit exceeded", "client_ip", ip, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, datatypes.NewErrorReply("rate_limited"))
			return
		}
		c.Next()
	}
}
