// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// AppConfig is the fully-resolved, immutable configuration for one
// coordinator process. It is built once at startup by ReadEnv/DefaultEnv
// and never mutated afterward; a reload means constructing a new value
// and swapping it in, never editing fields in place.
type AppConfig struct {
	// Protocol-level knobs: spec.md §9's closed configuration-key list.
	ListenAddr        string
	RabbitMQURL       string
	GraceInterval     time.Duration
	JoinLatencyBudget time.Duration
	OutboundQueueMax  int
	PingWindow        int

	// Storage.
	StorageBackend string // "sqlite" or "memory"
	StoragePath    string // sqlite file path, unused for "memory"

	// Edge HTTP/WS surface.
	AllowedOrigins       []string
	CORSAllowCredentials bool
	RateLimitEnabled     bool
	RateLimitGlobalRPS   int
	RateLimitBurst       int
	RateLimitWhitelist   []string
	// RateLimitWhitelistFile, when set, points to a YAML file of additional
	// whitelisted IPs that is watched and hot-reloaded at runtime,
	// supplementing RateLimitWhitelist without requiring a restart.
	RateLimitWhitelistFile string
	WSWriteWait          time.Duration
	WSPongWait           time.Duration
	WSPingPeriod         time.Duration
	WSMaxMessageBytes    int64

	// Auth. AuthIssuerURL is optional: empty means bearer auth is never
	// accepted and only x-device-token is honored.
	AuthIssuerURL string

	// TLS is optional; both must be set together or not at all.
	TLSCert string
	TLSKey  string

	// CacheRedisAddr, when set, switches the playlist-key<->id cache from
	// the in-memory default to a Redis-backed implementation shared
	// across coordinator processes.
	CacheRedisAddr string
	// CacheRedisNamespace scopes every key the playlist cache writes, so
	// multiple coordinator deployments (or environments) can share one
	// Redis instance without their playlist resolutions colliding.
	CacheRedisNamespace string

	// Observability.
	LogLevel            string
	LogFormat           string
	TracingServiceName  string
	OTelExporterOTLPURL string

	// DataDir is a writable working directory for local state: the room
	// snapshot store (rooms.badger) and the periodic rooms.json export.
	// The sqlite database file is located by StoragePath, not DataDir.
	DataDir string
}
