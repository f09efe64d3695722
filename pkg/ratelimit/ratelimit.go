// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securekey.
//
// go-securekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package ratelimit throttles automatic reconnects so a service that keeps
// dying cannot drive the client into a tight reconnect loop.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket limiter with one bucket per endpoint key.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	enabled  bool
}

// Config holds limiter configuration.
type Config struct {
	// Enabled controls whether throttling is active.
	Enabled bool

	// PerMinute sets the sustained number of reconnects allowed per minute.
	PerMinute int

	// Burst allows short bursts above the sustained rate.
	// If not set, defaults to PerMinute.
	Burst int
}

// DefaultConfig allows a burst of 3 reconnects and then one every 2 seconds.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		PerMinute: 30,
		Burst:     3,
	}
}

// New creates a new limiter with the given configuration. A nil config
// yields a disabled limiter.
func New(config *Config) *Limiter {
	if config == nil {
		config = &Config{Enabled: false}
	}

	burst := config.Burst
	if burst == 0 {
		burst = config.PerMinute
	}
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(config.PerMinute) / 60.0),
		burst:    burst,
		enabled:  config.Enabled && config.PerMinute > 0,
	}
}

func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// Allow reports whether an event for key may happen now and consumes a
// token if so.
func (l *Limiter) Allow(key string) bool {
	if l == nil || !l.enabled {
		return true
	}
	return l.getLimiter(key).Allow()
}

// Delay reserves a token for key and returns how long the caller must wait
// before acting on it. A disabled limiter always returns zero.
func (l *Limiter) Delay(key string) time.Duration {
	if l == nil || !l.enabled {
		return 0
	}
	r := l.getLimiter(key).Reserve()
	if !r.OK() {
		return 0
	}
	return r.Delay()
}

// Wait blocks until key is allowed an event or ctx ends.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l == nil || !l.enabled {
		return nil
	}
	return l.getLimiter(key).Wait(ctx)
}

// Reset forgets the bucket for key, restoring its full burst.
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

// Enabled reports whether throttling is active.
func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}
