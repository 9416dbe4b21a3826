// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package syncbridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/infinitune/internal/domain"
	"github.com/ManuGH/infinitune/internal/room"
	"github.com/ManuGH/infinitune/internal/roster"
	"github.com/ManuGH/infinitune/internal/storage"
)

type memSubscriber struct {
	ch chan Delivery
}

func (s *memSubscriber) Deliveries() <-chan Delivery { return s.ch }
func (s *memSubscriber) Close() error                { return nil }

type memBus struct {
	sub *memSubscriber
}

func newMemBus() *memBus {
	return &memBus{sub: &memSubscriber{ch: make(chan Delivery, 8)}}
}

func (b *memBus) Connect(_ context.Context, _ string, _ []string) (Subscriber, error) {
	return b.sub, nil
}

func (b *memBus) deliver(d Delivery) { b.sub.ch <- d }

func testRoomConfig() room.Config {
	return room.Config{JoinLatencyBudget: 150 * time.Millisecond, OutboundQueueMax: 16, GraceInterval: 0}
}

type fakeStorageWriter struct{}

func (fakeStorageWriter) MarkSongPlayed(_ context.Context, _ string) error { return nil }

type fakeSocket struct{}

func (fakeSocket) Send(_ []byte) bool { return true }
func (fakeSocket) Close()             {}

func TestBridge_SyncRoom_ResolvesAndPushesQueue(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutPlaylist("K1", storage.Playlist{ID: "p1", PromptEpoch: 2, Name: "Chill"})
	store.PutSongs("p1", []domain.Song{{ID: "a", OrderIndex: 1, Status: domain.SongStatusReady}})

	rs := roster.New(testRoomConfig(), fakeStorageWriter{})
	r := rs.CreateRoom("r1", "Room One", "K1")
	require.NoError(t, rs.JoinRoom("r1", "p1", "P1", domain.RolePlayer, fakeSocket{}))

	bridge := New(newMemBus(), store, rs)
	require.NoError(t, bridge.SyncRoom(context.Background(), "K1"))

	_, ok := bridge.cache.IDForKey("K1")
	assert.True(t, ok)
	_ = r
}

func TestBridge_HandleDelivery_SongsRoutingKey(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutPlaylist("K1", storage.Playlist{ID: "p1", PromptEpoch: 1, Name: "Chill"})
	store.PutSongs("p1", []domain.Song{{ID: "a", OrderIndex: 1, Status: domain.SongStatusReady}})

	rs := roster.New(testRoomConfig(), fakeStorageWriter{})
	rs.CreateRoom("r1", "Room One", "K1")

	bus := newMemBus()
	bridge := New(bus, store, rs)

	// First resolve K1 so the id->key cache is populated.
	require.NoError(t, bridge.SyncRoom(context.Background(), "K1"))

	store.PutSongs("p1", []domain.Song{
		{ID: "a", OrderIndex: 1, Status: domain.SongStatusReady},
		{ID: "b", OrderIndex: 2, Status: domain.SongStatusReady},
	})

	bridge.handleDelivery(context.Background(), Delivery{RoutingKey: "songs.p1"})

	songs, err := store.GetSongQueue(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, songs, 2)
}

func TestBridge_HandleDelivery_UnknownPlaylistID_NoPanic(t *testing.T) {
	store := storage.NewMemoryStore()
	rs := roster.New(testRoomConfig(), fakeStorageWriter{})
	bridge := New(newMemBus(), store, rs)

	bridge.handleDelivery(context.Background(), Delivery{RoutingKey: "songs.never-seen"})
}

func TestBridge_HandleDelivery_SettingsIgnored(t *testing.T) {
	store := storage.NewMemoryStore()
	rs := roster.New(testRoomConfig(), fakeStorageWriter{})
	bridge := New(newMemBus(), store, rs)

	bridge.handleDelivery(context.Background(), Delivery{RoutingKey: "settings"})
}

func TestBridge_MarkSongPlayed(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutPlaylist("K1", storage.Playlist{ID: "p1"})
	store.PutSongs("p1", []domain.Song{{ID: "a", Status: domain.SongStatusReady, OrderIndex: 1}})

	rs := roster.New(testRoomConfig(), fakeStorageWriter{})
	bridge := New(newMemBus(), store, rs)

	err := bridge.MarkSongPlayed(context.Background(), "a")
	require.NoError(t, err)

	songs, err := store.GetSongQueue(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.SongStatusPlayed, songs[0].Status)
}
