// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/infinitune/internal/config"
	"github.com/ManuGH/infinitune/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if cfg.StorageBackend == "sqlite" {
		if err := checkDataDir(logger, cfg.DataDir); err != nil {
			return fmt.Errorf("data directory check failed: %w", err)
		}
	}

	if err := checkTargetedValidations(logger, cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("data directory is writable")
	return nil
}

// checkTargetedValidations performs security and runtime-critical validations
// against the fields spec.md §9 and SPEC_FULL.md §2 name as recognized
// configuration.
func checkTargetedValidations(logger zerolog.Logger, cfg config.AppConfig) error {
	if cfg.ListenAddr != "" {
		_, port, err := net.SplitHostPort(cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("invalid listen address %q: %w", cfg.ListenAddr, err)
		}
		portNum, err := strconv.Atoi(port)
		if err != nil || portNum < 0 || portNum > 65535 {
			return fmt.Errorf("invalid listen port %q in %q", port, cfg.ListenAddr)
		}
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listen address is valid")
	}

	if err := validateBusURL(cfg.RabbitMQURL); err != nil {
		return err
	}
	logger.Info().Msg("bus URL is valid")

	switch cfg.StorageBackend {
	case "sqlite":
		if strings.TrimSpace(cfg.StoragePath) == "" {
			return fmt.Errorf("ROOM_STORAGE_PATH must be set when ROOM_STORAGE_BACKEND is sqlite")
		}
	case "memory":
		logger.Warn().Msg("storage backend is in-memory; state is not persistent across restarts")
	default:
		return fmt.Errorf("unknown storage backend %q (expected sqlite or memory)", cfg.StorageBackend)
	}

	if cfg.AuthIssuerURL != "" {
		u, err := url.Parse(cfg.AuthIssuerURL)
		if err != nil {
			return fmt.Errorf("invalid ROOM_AUTH_ISSUER_URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("ROOM_AUTH_ISSUER_URL scheme must be http or https, got: %s", u.Scheme)
		}
	}

	if cfg.TLSCert != "" || cfg.TLSKey != "" {
		if cfg.TLSCert == "" || cfg.TLSKey == "" {
			return fmt.Errorf("TLS configuration requires both ROOM_TLS_CERT and ROOM_TLS_KEY to be set")
		}
		if err := checkFileReadable(cfg.TLSCert); err != nil {
			return fmt.Errorf("TLS cert error: %w", err)
		}
		if err := checkFileReadable(cfg.TLSKey); err != nil {
			return fmt.Errorf("TLS key error: %w", err)
		}
		logger.Info().Msg("TLS configuration is valid")
	}

	if cfg.GraceInterval <= 0 {
		return fmt.Errorf("ROOM_GRACE_INTERVAL must be positive, got %s", cfg.GraceInterval)
	}
	if cfg.OutboundQueueMax <= 0 {
		return fmt.Errorf("OUTBOUND_QUEUE_MAX must be positive, got %d", cfg.OutboundQueueMax)
	}

	return nil
}

func validateBusURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid RABBITMQ_URL: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return fmt.Errorf("RABBITMQ_URL scheme must be amqp or amqps, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("RABBITMQ_URL must have a host")
	}
	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config; verifying readability is expected
	if err != nil {
		return err
	}
	return f.Close()
}
