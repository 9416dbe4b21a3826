// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package edge is the front door: the REST control-plane and the
// WebSocket playback protocol, both terminating on the same Roster and
// Sync bridge. Nothing outside this package constructs an http.Request
// or a wire frame.
package edge

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	ctlmw "github.com/ManuGH/infinitune/internal/control/middleware"
	"github.com/ManuGH/infinitune/internal/health"
	applog "github.com/ManuGH/infinitune/internal/log"
	"github.com/ManuGH/infinitune/internal/ratelimit"
	"github.com/ManuGH/infinitune/internal/roster"
	"github.com/ManuGH/infinitune/internal/storage"
	"github.com/ManuGH/infinitune/internal/syncbridge"
	"github.com/ManuGH/infinitune/internal/version"
)

// Config carries every operational knob the Edge needs beyond its
// collaborators.
type Config struct {
	AllowedOrigins       []string
	CORSAllowCredentials bool
	CSP                  string
	TrustedProxies       []*net.IPNet
	TracingService       string

	RateLimitEnabled   bool
	RateLimitGlobalRPS int
	RateLimitBurst     int
	RateLimitWhitelist []string
	// RateLimitWhitelistProvider, when set, is consulted in addition to
	// RateLimitWhitelist on every request — it backs a hot-reloadable
	// whitelist file so an operator can add/remove exempt IPs without a
	// restart. Nil means only the static RateLimitWhitelist applies.
	RateLimitWhitelistProvider func() []string

	// WSWriteWait bounds how long a single socket write may block before
	// the connection is considered wedged.
	WSWriteWait time.Duration
	// WSPongWait bounds how long the server waits for a pong before
	// declaring the peer dead.
	WSPongWait time.Duration
	// WSPingPeriod is how often the server pings; must be < WSPongWait.
	WSPingPeriod time.Duration
	// WSMaxMessageBytes bounds a single inbound frame.
	WSMaxMessageBytes int64

	// WSRateLimit configures the per-connection/per-device frame-flood
	// limiter applied to inbound WebSocket traffic in readPump. A zero
	// GlobalRate disables the limiter entirely.
	WSRateLimit ratelimit.Config

	// BearerValidator authenticates the control-plane's Authorization:
	// Bearer token against an external issuer. Nil means bearer auth is
	// never accepted (the deployment relies on x-device-token only).
	BearerValidator BearerValidator
}

// DefaultConfig returns the operational defaults used when a field is
// left zero-valued by the caller.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:     []string{},
		CSP:                ctlmw.DefaultCSP,
		RateLimitEnabled:   true,
		RateLimitGlobalRPS: 50,
		RateLimitBurst:     100,
		WSWriteWait:        10 * time.Second,
		WSPongWait:         60 * time.Second,
		WSPingPeriod:       54 * time.Second,
		WSMaxMessageBytes:  4096,
		WSRateLimit:        ratelimit.DefaultConfig(),
	}
}

// Server wires the Roster and Sync bridge to HTTP and WebSocket
// transports.
type Server struct {
	roster *roster.Roster
	bridge *syncbridge.Bridge
	store  storage.Store
	health *health.Manager
	cfg    Config
	logger zerolog.Logger

	upgrader  websocket.Upgrader
	wsLimiter *ratelimit.Limiter
}

// New constructs a Server. bridge may be nil in tests that do not
// exercise invalidation-driven refresh. hm may be nil, in which case
// /readyz reports ready unconditionally (process-up only).
func New(rs *roster.Roster, bridge *syncbridge.Bridge, store storage.Store, hm *health.Manager, cfg Config) *Server {
	var wsLimiter *ratelimit.Limiter
	if cfg.WSRateLimit.GlobalRate > 0 {
		wsLimiter = ratelimit.New(cfg.WSRateLimit)
	}
	return &Server{
		roster:    rs,
		bridge:    bridge,
		store:     store,
		health:    hm,
		cfg:       cfg,
		logger:    applog.WithComponent("edge"),
		upgrader:  newUpgrader(cfg.AllowedOrigins),
		wsLimiter: wsLimiter,
	}
}

// Handler builds the full chi router: canonical middleware stack, REST
// routes, and the WebSocket upgrade endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	ctlmw.ApplyStack(r, ctlmw.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        s.cfg.AllowedOrigins,
		CORSAllowCredentials:  s.cfg.CORSAllowCredentials,
		EnableSecurityHeaders: true,
		CSP:                   s.cfg.CSP,
		TrustedProxies:        s.cfg.TrustedProxies,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
		EnableRateLimit:       s.cfg.RateLimitEnabled,
		RateLimitEnabled:           s.cfg.RateLimitEnabled,
		RateLimitGlobalRPS:         s.cfg.RateLimitGlobalRPS,
		RateLimitBurst:             s.cfg.RateLimitBurst,
		RateLimitWhitelist:         s.cfg.RateLimitWhitelist,
		RateLimitWhitelistProvider: s.cfg.RateLimitWhitelistProvider,
	})

	r.Get("/health", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/openapi.json", s.handleOpenAPI)

		api.Group(func(protected chi.Router) {
			protected.Use(s.requireAuth)
			protected.Get("/rooms", s.handleListRooms)
			protected.Post("/rooms", s.handleCreateRoom)
			protected.Delete("/rooms/{roomID}", s.handleDeleteRoom)
			protected.Get("/now-playing", s.handleNowPlaying)
		})
	})

	return r
}

// handleHealth is a liveness probe: it answers as long as the process
// can schedule goroutines, regardless of storage/bus state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"rooms":   len(s.roster.ListRooms()),
		"version": version.Version,
		"commit":  version.Commit,
	})
}

// handleReady is a readiness probe distinguishing "process up" from
// "able to accept joins" (storage and bus reachable). With no Manager
// wired, readiness degenerates to liveness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true})
		return
	}
	s.health.ServeReady(w, r)
}

// syncNewRoom resolves the playlist key and pushes the initial queue
// into a freshly created room. Best-effort: failures are logged, not
// surfaced, since the next bus event naturally retries.
func (s *Server) syncNewRoom(ctx context.Context, playlistKey string) {
	if s.bridge == nil || playlistKey == "" {
		return
	}
	if err := s.bridge.SyncRoom(ctx, playlistKey); err != nil {
		s.logger.Warn().Err(err).Str("playlist_key", playlistKey).Msg("initial room sync failed")
	}
}
