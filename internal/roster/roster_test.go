// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package roster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/infinitune/internal/domain"
	"github.com/ManuGH/infinitune/internal/room"
)

type fakeStorageWriter struct{}

func (fakeStorageWriter) MarkSongPlayed(_ context.Context, _ string) error { return nil }

type fakeSocket struct{}

func (fakeSocket) Send(_ []byte) bool { return true }
func (fakeSocket) Close()             {}

func testRoomConfig() room.Config {
	return room.Config{JoinLatencyBudget: 150 * time.Millisecond, OutboundQueueMax: 16, GraceInterval: 0}
}

func TestRoster_CreateRoom_Idempotent(t *testing.T) {
	rs := New(testRoomConfig(), fakeStorageWriter{})

	r1 := rs.CreateRoom("r1", "Room One", "K1")
	r2 := rs.CreateRoom("r1", "Room One Again", "K1")

	assert.Same(t, r1, r2)
	assert.Len(t, rs.ListRooms(), 1)
}

func TestRoster_GetRoomsByPlaylistKey(t *testing.T) {
	rs := New(testRoomConfig(), fakeStorageWriter{})

	rs.CreateRoom("r1", "Room One", "K1")
	rs.CreateRoom("r2", "Room Two", "K1")
	rs.CreateRoom("r3", "Room Three", "K2")

	got := rs.GetRoomsByPlaylistKey("K1")
	assert.Len(t, got, 2)

	assert.Empty(t, rs.GetRoomsByPlaylistKey("unknown"))
}

func TestRoster_JoinRoom_UnknownRoom(t *testing.T) {
	rs := New(testRoomConfig(), fakeStorageWriter{})

	err := rs.JoinRoom("missing", "p1", "P1", domain.RolePlayer, fakeSocket{})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoster_JoinRoom_AttachesDevice(t *testing.T) {
	rs := New(testRoomConfig(), fakeStorageWriter{})
	r := rs.CreateRoom("r1", "Room One", "K1")

	err := rs.JoinRoom("r1", "p1", "P1", domain.RolePlayer, fakeSocket{})
	require.NoError(t, err)
	assert.Equal(t, 1, r.DeviceCount())
}

func TestRoster_RemoveRoom(t *testing.T) {
	rs := New(testRoomConfig(), fakeStorageWriter{})
	rs.CreateRoom("r1", "Room One", "K1")

	err := rs.RemoveRoom(context.Background(), "r1")
	require.NoError(t, err)

	_, ok := rs.GetRoom("r1")
	assert.False(t, ok)
	assert.Empty(t, rs.GetRoomsByPlaylistKey("K1"))

	err = rs.RemoveRoom(context.Background(), "r1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}
