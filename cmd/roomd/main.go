// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/infinitune/internal/config"
	"github.com/ManuGH/infinitune/internal/edge"
	"github.com/ManuGH/infinitune/internal/health"
	applog "github.com/ManuGH/infinitune/internal/log"
	"github.com/ManuGH/infinitune/internal/room"
	"github.com/ManuGH/infinitune/internal/roster"
	"github.com/ManuGH/infinitune/internal/storage"
	"github.com/ManuGH/infinitune/internal/syncbridge"
)

var (
	version = "v0.1.0"
	commit  = "none"
)

// lazyStorageWriter breaks the construction cycle between Roster and
// Bridge: Roster needs a room.StorageWriter up front, but the only
// implementation (Bridge) needs the already-constructed Roster. The
// Roster never calls MarkSongPlayed until a Room has joined, by which
// time bridge is set.
type lazyStorageWriter struct {
	bridge *syncbridge.Bridge
}

func (l *lazyStorageWriter) MarkSongPlayed(ctx context.Context, songID string) error {
	return l.bridge.MarkSongPlayed(ctx, songID)
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	applog.Configure(applog.Config{Level: "info", Service: "infinitune-roomd", Version: version})
	logger := applog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := config.ReadEnv(os.Getenv)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read environment configuration")
	}
	cfg := env.App

	applog.Configure(applog.Config{Level: cfg.LogLevel, Service: "infinitune-roomd", Version: version})

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("startup checks failed")
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage backend")
	}
	defer closeStore()

	bus := syncbridge.NewAMQPBus(cfg.RabbitMQURL)

	roomCfg := room.Config{
		JoinLatencyBudget: cfg.JoinLatencyBudget,
		OutboundQueueMax:  cfg.OutboundQueueMax,
		GraceInterval:     cfg.GraceInterval,
	}

	sw := &lazyStorageWriter{}
	rs := roster.New(roomCfg, sw)

	snapshotPath := filepath.Join(cfg.DataDir, "rooms.badger")
	if snapStore, err := roster.OpenBadgerSnapshotStore(snapshotPath); err != nil {
		logger.Warn().Err(err).Str("path", snapshotPath).Msg("room snapshot store unavailable, restarts will lose known-room identities")
	} else {
		defer snapStore.Close()
		rs.AttachSnapshotStore(snapStore)
		if err := rs.RestoreRooms(snapStore); err != nil {
			logger.Warn().Err(err).Msg("failed to restore room identities from snapshot store")
		}
	}
	var bridge *syncbridge.Bridge
	if cfg.CacheRedisAddr != "" {
		bridge = syncbridge.NewWithRedisCache(bus, store, rs, cfg.CacheRedisAddr, cfg.CacheRedisNamespace)
	} else {
		bridge = syncbridge.New(bus, store, rs)
	}
	sw.bridge = bridge

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewStorageChecker(store.Ping))
	hm.RegisterChecker(health.NewBusChecker(bus.Ping))

	edgeCfg := edge.DefaultConfig()
	edgeCfg.AllowedOrigins = cfg.AllowedOrigins
	edgeCfg.CORSAllowCredentials = cfg.CORSAllowCredentials
	edgeCfg.RateLimitEnabled = cfg.RateLimitEnabled
	edgeCfg.RateLimitGlobalRPS = cfg.RateLimitGlobalRPS
	edgeCfg.RateLimitBurst = cfg.RateLimitBurst
	edgeCfg.RateLimitWhitelist = cfg.RateLimitWhitelist

	whitelistWatcher, err := config.NewWhitelistWatcher(cfg.RateLimitWhitelistFile)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.RateLimitWhitelistFile).Msg("rate-limit whitelist file unreadable, ignoring")
		whitelistWatcher, _ = config.NewWhitelistWatcher("")
	}
	if err := whitelistWatcher.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("rate-limit whitelist watcher failed to start, whitelist file will not hot-reload")
	}
	defer whitelistWatcher.Close()
	edgeCfg.RateLimitWhitelistProvider = whitelistWatcher.Current
	edgeCfg.WSWriteWait = cfg.WSWriteWait
	edgeCfg.WSPongWait = cfg.WSPongWait
	edgeCfg.WSPingPeriod = cfg.WSPingPeriod
	edgeCfg.WSMaxMessageBytes = cfg.WSMaxMessageBytes
	edgeCfg.TracingService = cfg.TracingServiceName

	if cfg.AuthIssuerURL != "" {
		validator, err := edge.NewIssuerBearerValidator(cfg.AuthIssuerURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid auth issuer configuration")
		}
		edgeCfg.BearerValidator = validator
	}

	edgeServer := edge.New(rs, bridge, store, hm, edgeCfg)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           edgeServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweeper := &roster.Sweeper{
		Roster: rs,
		Conf: roster.SweeperConfig{
			Interval:      30 * time.Second,
			GraceInterval: cfg.GraceInterval,
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := bridge.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sync bridge: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	roomsExportPath := filepath.Join(cfg.DataDir, "rooms.json")
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := rs.ExportRoomsJSON(roomsExportPath); err != nil {
					logger.Warn().Err(err).Str("path", roomsExportPath).Msg("failed to export rooms snapshot")
				}
			}
		}
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("starting roomd")
		var serveErr error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			httpSrv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			serveErr = httpSrv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			serveErr = httpSrv.ListenAndServe()
		}
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}
		return serveErr
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http server shutdown did not complete cleanly")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("roomd exited with error")
	}

	logger.Info().Msg("roomd exiting")
}

func openStore(cfg config.AppConfig) (storage.Store, func(), error) {
	switch cfg.StorageBackend {
	case "memory":
		return storage.NewMemoryStore(), func() {}, nil
	case "sqlite":
		s, err := storage.Open(cfg.StoragePath, storage.DefaultConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
