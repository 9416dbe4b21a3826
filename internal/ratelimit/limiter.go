// SPDX-License-Identifier: MIT

// Package ratelimit implements a token-bucket limiter for inbound
// WebSocket frames, protecting a Room's command-handling loop and the
// invalidation bus from a single misbehaving or compromised client
// issuing commands faster than any legitimate UI could.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "infinitune",
		Name:      "ws_ratelimit_exceeded_total",
		Help:      "Total WebSocket frames rejected by the per-connection rate limiter",
	},
	[]string{"limit_type"},
)

// Config holds the token-bucket parameters for both the limiter shared
// by every connection and the one allotted to each device once it has
// joined.
type Config struct {
	GlobalRate  rate.Limit
	GlobalBurst int

	PerDeviceRate  rate.Limit
	PerDeviceBurst int

	// CleanupInterval bounds how long stale per-device buckets (for
	// devices that left or never joined) linger before being dropped.
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults for a single roomd process:
// generous enough for normal multi-device control traffic, tight enough
// to blunt a scripted flood.
func DefaultConfig() Config {
	return Config{
		GlobalRate:  200,
		GlobalBurst: 400,

		PerDeviceRate:  20,
		PerDeviceBurst: 40,

		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter enforces both a process-wide frame rate and a per-device rate
// on inbound WebSocket frames.
type Limiter struct {
	config Config

	global    *rate.Limiter
	perDevice map[string]*rate.Limiter
	mu        sync.RWMutex

	lastCleanup time.Time
}

// New creates a Limiter from config.
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perDevice:   make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a frame from key (a deviceID once known, or the
// connection's remote address beforehand) may proceed. The global bucket
// is checked first, so a frame the per-device bucket then rejects has
// still consumed a global token.
func (l *Limiter) Allow(key string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global").Inc()
		return false
	}

	l.maybeCleanup()
	limiter := l.getDeviceLimiter(key)
	if !limiter.Allow() {
		rateLimitExceeded.WithLabelValues("per_device").Inc()
		return false
	}

	return true
}

func (l *Limiter) getDeviceLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.perDevice[key]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerDeviceRate, l.config.PerDeviceBurst)
		l.perDevice[key] = limiter
	}
	return limiter
}

// maybeCleanup periodically drops all per-device buckets once
// CleanupInterval has elapsed, bounding memory growth across the
// lifetime of a long-running process that has seen many transient
// devices.
func (l *Limiter) maybeCleanup() {
	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.perDevice = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}
