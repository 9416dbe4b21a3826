// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package syncbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/infinitune/internal/domain"
	applog "github.com/ManuGH/infinitune/internal/log"
	"github.com/ManuGH/infinitune/internal/metrics"
	"github.com/ManuGH/infinitune/internal/resilience"
	"github.com/ManuGH/infinitune/internal/room"
	"github.com/ManuGH/infinitune/internal/roster"
	"github.com/ManuGH/infinitune/internal/storage"
)

// ExchangeName is the durable topic exchange the invalidation bus
// publishes on.
const ExchangeName = "infinitune.events"

var routingKeys = []string{"songs.*", "playlists", "settings"}

// Bridge consumes the invalidation bus and pushes fresh queue snapshots
// into Rooms. It also resolves the playlist-key<->id cache on a Room's
// first sync and implements the played-song write-back path.
type Bridge struct {
	bus    Bus
	store  storage.Store
	roster *roster.Roster
	cache  *PlaylistCache
	logger zerolog.Logger

	// storeBreaker guards refreshKey's storage calls: a struggling store
	// should stop accepting refresh attempts rather than pile up latency
	// across every bus delivery while it recovers.
	storeBreaker *resilience.CircuitBreaker
}

// New constructs a Bridge wired to the given Bus, Store, and Roster,
// using an in-memory playlist-key<->id cache local to this process.
func New(bus Bus, store storage.Store, rs *roster.Roster) *Bridge {
	return newBridge(bus, store, rs, NewPlaylistCache())
}

// NewWithRedisCache constructs a Bridge whose playlist-key<->id cache is
// shared across every coordinator process via Redis, so a resolution
// made by one process is immediately visible to the others.
func NewWithRedisCache(bus Bus, store storage.Store, rs *roster.Roster, redisAddr, redisNamespace string) *Bridge {
	return newBridge(bus, store, rs, NewPlaylistCacheWithRedis(redisAddr, redisNamespace))
}

func newBridge(bus Bus, store storage.Store, rs *roster.Roster, c *PlaylistCache) *Bridge {
	return &Bridge{
		bus:    bus,
		store:  store,
		roster: rs,
		cache:  c,
		logger: applog.WithComponent("syncbridge"),
		storeBreaker: resilience.NewCircuitBreaker(
			"syncbridge.store", 5, 10, 30*time.Second, 15*time.Second,
		),
	}
}

// Run connects to the bus and processes deliveries until ctx is
// cancelled. Reconnects are handled internally by the Bus
// implementation; Run only returns on context cancellation or an
// unrecoverable connect error.
func (b *Bridge) Run(ctx context.Context) error {
	sub, err := b.bus.Connect(ctx, ExchangeName, routingKeys)
	if err != nil {
		return fmt.Errorf("syncbridge: connect failed: %w", err)
	}
	defer sub.Close()

	b.logger.Info().Str(applog.FieldExchange, ExchangeName).Msg("syncbridge connected")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-sub.Deliveries():
			if !ok {
				return errors.New("syncbridge: subscription channel closed")
			}
			b.handleDelivery(ctx, d)
		}
	}
}

func (b *Bridge) handleDelivery(ctx context.Context, d Delivery) {
	switch {
	case d.RoutingKey == "playlists":
		b.refreshAllKnownPlaylists(ctx)
	case strings.HasPrefix(d.RoutingKey, "songs."):
		playlistID := strings.TrimPrefix(d.RoutingKey, "songs.")
		b.refreshByPlaylistID(ctx, playlistID)
	case d.RoutingKey == "settings":
		// ignored by this service
	default:
		b.logger.Debug().Str(applog.FieldRoutingKey, d.RoutingKey).Msg("unrecognized routing key, ignoring")
	}
}

// SyncRoom resolves playlistKey to its storage id (populating the cache
// in both directions on first resolution) and pushes the current queue
// into every Room bound to that key. Called from the join path the
// first time a playlist-key is seen.
func (b *Bridge) SyncRoom(ctx context.Context, playlistKey string) error {
	return b.refreshKey(ctx, playlistKey)
}

func (b *Bridge) refreshByPlaylistID(ctx context.Context, playlistID string) {
	key, ok := b.cache.KeyForID(playlistID)
	if !ok {
		// No Room has ever joined this playlist; nothing to refresh.
		return
	}
	if err := b.refreshKey(ctx, key); err != nil {
		b.logger.Warn().Err(err).Str(applog.FieldPlaylistID, playlistID).Msg("refresh by playlist id failed")
	}
}

func (b *Bridge) refreshAllKnownPlaylists(ctx context.Context) {
	seen := make(map[string]bool)
	for _, r := range b.roster.ListRooms() {
		key := r.PlaylistKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := b.refreshKey(ctx, key); err != nil {
			b.logger.Warn().Err(err).Str(applog.FieldPlaylistKey, key).Msg("refresh all failed for key")
		}
	}
}

func (b *Bridge) refreshKey(ctx context.Context, playlistKey string) error {
	if !b.storeBreaker.AllowRequest() {
		return fmt.Errorf("resolve playlist key %q: %w", playlistKey, resilience.ErrCircuitOpen)
	}
	b.storeBreaker.RecordAttempt()

	p, err := b.store.GetPlaylistByKey(ctx, playlistKey)
	if err != nil {
		b.storeBreaker.RecordTechnicalFailure()
		return fmt.Errorf("resolve playlist key %q: %w", playlistKey, err)
	}
	b.cache.Put(playlistKey, p.ID)

	songs, err := b.store.GetSongQueue(ctx, p.ID)
	if err != nil {
		b.storeBreaker.RecordTechnicalFailure()
		return fmt.Errorf("fetch song queue for %q: %w", p.ID, err)
	}
	b.storeBreaker.RecordSuccess()

	rooms := b.roster.GetRoomsByPlaylistKey(playlistKey)
	for _, r := range rooms {
		r.UpdateQueue(songs, p.PromptEpoch)
	}
	metrics.IncBusMessage("processed")
	return nil
}

// RoomsForPlaylistID returns every Room bound to the playlist-key that
// resolves to the given storage playlist id, or nil if the id has never
// been resolved (no Room has joined that playlist yet). Used by the
// join path's playlistId-addressed lookup.
func (b *Bridge) RoomsForPlaylistID(playlistID string) []*room.Room {
	key, ok := b.cache.KeyForID(playlistID)
	if !ok {
		return nil
	}
	return b.roster.GetRoomsByPlaylistKey(key)
}

// MarkSongPlayed implements room.StorageWriter: the single write-back
// path, invoked once per transition when a song's status advances to
// played. Errors are returned to the caller (Room), which logs and
// swallows them — the next queue refresh reconciles state.
func (b *Bridge) MarkSongPlayed(ctx context.Context, songID string) error {
	return b.store.UpdateSongStatus(ctx, songID, domain.SongStatusPlayed)
}
