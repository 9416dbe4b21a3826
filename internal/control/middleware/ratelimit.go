// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed in the window.
	RequestLimit int
	// WindowSize is the time window for rate limiting.
	WindowSize time.Duration
	// KeyFunc extracts the rate limit key from the request (e.g., IP
	// address). If nil, defaults to IP-based rate limiting.
	KeyFunc func(r *http.Request) (string, error)
	// Whitelist is a list of IPs exempt from rate limiting.
	Whitelist []string
	// WhitelistProvider, when set, is consulted on every request in
	// addition to Whitelist, so a hot-reloaded source (a watched file) can
	// add or remove exempt IPs without restarting the process.
	WhitelistProvider func() []string
}

// RateLimit creates a rate limiting middleware using a sliding window
// counter algorithm.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	limiter := httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cfg.WindowSize.Seconds())))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RequestLimit))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"too many requests, try again later"}`))
		}),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isWhitelisted(r.RemoteAddr, cfg) {
				next.ServeHTTP(w, r)
				return
			}
			limiter(next).ServeHTTP(w, r)
		})
	}
}

func isWhitelisted(remoteAddr string, cfg RateLimitConfig) bool {
	if len(cfg.Whitelist) == 0 && cfg.WhitelistProvider == nil {
		return false
	}
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		ip = remoteAddr
	}
	for _, allowed := range cfg.Whitelist {
		if allowed == ip {
			return true
		}
	}
	if cfg.WhitelistProvider != nil {
		for _, allowed := range cfg.WhitelistProvider() {
			if allowed == ip {
				return true
			}
		}
	}
	return false
}

// APIRateLimit returns a rate limiter configured from the room
// coordinator's global-RPS knob, mapped onto a one-minute sliding
// window since httprate counts per-window, not per-second.
func APIRateLimit(enabled bool, rps int, _ int, whitelist []string, whitelistProvider func() []string) func(http.Handler) http.Handler {
	if !enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	if rps <= 0 {
		rps = 100
	}
	return RateLimit(RateLimitConfig{
		RequestLimit:      rps * 60,
		WindowSize:        time.Minute,
		Whitelist:         whitelist,
		WhitelistProvider: whitelistProvider,
	})
}
