// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package syncbridge

import (
	"time"

	"github.com/ManuGH/infinitune/internal/cache"
	applog "github.com/ManuGH/infinitune/internal/log"
	"github.com/ManuGH/infinitune/internal/metrics"
)

// foreverTTL is used for the playlist-key<->id cache: a playlist's id
// never changes, so entries are written once and never expired.
const foreverTTL = 100 * 365 * 24 * time.Hour

const (
	keyPrefix = "plk:"
	idPrefix  = "pli:"
)

// PlaylistCache is the write-through, never-invalidated mapping between
// a playlist's opaque URL key and its storage id, kept in both
// directions so the bridge can resolve either one it is handed. A single
// backend holds both directions under disjoint key prefixes so a single
// Redis database (or in-memory map) can serve it.
type PlaylistCache struct {
	backend cache.Cache
}

// NewPlaylistCache constructs a playlist cache backed by the in-memory
// implementation (no janitor needed: entries never expire).
func NewPlaylistCache() *PlaylistCache {
	return &PlaylistCache{backend: cache.NewMemoryCache(0)}
}

// NewPlaylistCacheWithRedis constructs a playlist cache backed by Redis,
// shared across every coordinator process so a playlist-key resolved by
// one process is immediately known to the others. Falls back to the
// in-memory backend (with a warning) if the initial connection fails,
// since a missing resolution only costs one extra storage round trip per
// cold key, not correctness.
func NewPlaylistCacheWithRedis(addr, namespace string) *PlaylistCache {
	logger := applog.WithComponent("syncbridge.cache")
	backend, err := cache.NewRedisCache(cache.RedisConfig{Addr: addr, Namespace: namespace}, logger)
	if err != nil {
		logger.Warn().Err(err).Str("addr", addr).Msg("redis playlist cache unavailable, falling back to in-memory")
		return NewPlaylistCache()
	}
	return &PlaylistCache{backend: backend}
}

// Put records a resolved (key, id) pair in both directions.
func (c *PlaylistCache) Put(key, id string) {
	c.backend.Set(keyPrefix+key, id, foreverTTL)
	c.backend.Set(idPrefix+id, key, foreverTTL)
}

// IDForKey returns the cached playlist id for a playlist-key, if known.
func (c *PlaylistCache) IDForKey(key string) (string, bool) {
	v, ok := c.backend.Get(keyPrefix + key)
	if !ok {
		metrics.IncPlaylistCacheResult("miss")
		return "", false
	}
	metrics.IncPlaylistCacheResult("hit")
	return v.(string), true
}

// KeyForID returns the cached playlist-key for a playlist id, if known.
func (c *PlaylistCache) KeyForID(id string) (string, bool) {
	v, ok := c.backend.Get(idPrefix + id)
	if !ok {
		metrics.IncPlaylistCacheResult("miss")
		return "", false
	}
	metrics.IncPlaylistCacheResult("hit")
	return v.(string), true
}
