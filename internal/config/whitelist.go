// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/infinitune/internal/log"
)

// whitelistFile is the on-disk shape of the rate-limit whitelist overlay.
// It is intentionally narrow: the one operational knob worth changing
// without a process restart is which IPs are exempt from rate limiting,
// since that list tends to need updates during incident response.
type whitelistFile struct {
	RateLimitWhitelist []string `yaml:"rate_limit_whitelist"`
}

// LoadWhitelistFile reads and parses a whitelist overlay file. An empty
// path or a missing file both return a nil slice and no error — the
// overlay is optional.
func LoadWhitelistFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read whitelist file: %w", err)
	}
	var parsed whitelistFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("config: parse whitelist file %s: %w", path, err)
	}
	return parsed.RateLimitWhitelist, nil
}

// WhitelistWatcher keeps an in-memory copy of a YAML whitelist file
// current, reloading it whenever the file changes on disk. It never
// blocks a reader: Current is a lock-free atomic load.
type WhitelistWatcher struct {
	path    string
	current atomic.Pointer[[]string]
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewWhitelistWatcher loads path once and returns a watcher with that
// initial content already available via Current. If path is empty, the
// watcher holds a permanently empty list and Start is a no-op — callers
// can wire it unconditionally.
func NewWhitelistWatcher(path string) (*WhitelistWatcher, error) {
	w := &WhitelistWatcher{
		path:   path,
		logger: log.WithComponent("config.whitelist"),
	}
	initial, err := LoadWhitelistFile(path)
	if err != nil {
		return nil, err
	}
	w.current.Store(&initial)
	return w, nil
}

// Current returns the most recently loaded whitelist. Safe to call from
// any goroutine; suitable as a middleware.RateLimitConfig.WhitelistProvider.
func (w *WhitelistWatcher) Current() []string {
	if p := w.current.Load(); p != nil {
		return *p
	}
	return nil
}

// Start begins watching the whitelist file for changes, reloading on
// write/create/rename events (covering editors that replace-via-rename).
// It returns immediately; the watch loop runs until ctx is cancelled. A
// no-op if this watcher has no path.
func (w *WhitelistWatcher) Start(ctx context.Context) error {
	if w.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create whitelist watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("config: watch whitelist dir: %w", err)
	}
	w.watcher = watcher

	go w.loop(ctx)
	return nil
}

func (w *WhitelistWatcher) loop(ctx context.Context) {
	base := filepath.Base(w.path)
	var debounce *time.Timer
	const debounceWindow = 250 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("whitelist watcher error")
		}
	}
}

func (w *WhitelistWatcher) reload() {
	next, err := LoadWhitelistFile(w.path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("failed to reload rate-limit whitelist, keeping previous contents")
		return
	}
	w.current.Store(&next)
	w.logger.Info().Int("count", len(next)).Str("path", w.path).Msg("rate-limit whitelist reloaded")
}

// Close stops the watch loop if running.
func (w *WhitelistWatcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
