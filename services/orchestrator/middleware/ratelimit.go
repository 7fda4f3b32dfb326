// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client token buckets.
//
// # Fields
//
//   - RequestsPerSecond: Sustained rate per client IP. Zero or less disables limiting.
//   - Burst: Bucket size. Defaults to 1 when RequestsPerSecond is set.
//   - IdleTTL: Buckets unused this long are dropped. Default: 10 minutes.
//   - OnReject: Optional callback for each rejected request (metrics).
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	IdleTTL           time.Duration
	OnReject          func()
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client IP.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	config RateLimitConfig
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string]*clientBucket
	lastPrune time.Time
}

// NewRateLimiter creates a limiter. A nil now uses time.Now.
func NewRateLimiter(config RateLimitConfig, now func() time.Time) *RateLimiter {
	if config.Burst < 1 {
		config.Burst = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		config:  config,
		now:     now,
		buckets: make(map[string]*clientBucket),
	}
}

// Allow reports whether a request from key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	if l.config.RequestsPerSecond <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > l.config.IdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.config.IdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastPrune = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Middleware rejects over-limit clients with 429 and a Retry-After header.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	retryAfter := "1"
	if l.config.RequestsPerSecond > 0 && l.config.RequestsPerSecond < 1 {
		retryAfter = strconv.Itoa(int(1/l.config.RequestsPerSecond + 0.5))
	}

	return func(c *gin.Context) {
		if l.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		if l.config.OnReject != nil {
			l.config.OnReject()
		}
		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "too many requests, please slow down",
		})
	}
}
