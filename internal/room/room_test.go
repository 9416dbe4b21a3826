// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/infinitune/internal/domain"
)

// TestMain verifies no goroutine started by a Room (grace timers,
// storage write-backs) outlives its test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSocket struct {
	mu      sync.Mutex
	frames  [][]byte
	evicted bool
}

func (f *fakeSocket) Send(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evicted {
		return false
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.frames = append(f.frames, cp)
	return true
}

func (f *fakeSocket) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = true
}

func (f *fakeSocket) types(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, raw := range f.frames {
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw, &env))
		out = append(out, env.Type)
	}
	return out
}

type fakeStorageWriter struct {
	mu     sync.Mutex
	played []string
}

func (f *fakeStorageWriter) MarkSongPlayed(_ context.Context, songID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, songID)
	return nil
}

func testConfig() Config {
	return Config{JoinLatencyBudget: 150 * time.Millisecond, OutboundQueueMax: 16, GraceInterval: 0}
}

func TestRoom_Join_SendsJoinAckStateQueue(t *testing.T) {
	sw := &fakeStorageWriter{}
	r := New("r1", "room one", "K1", testConfig(), sw)
	sock := &fakeSocket{}

	r.Join("p1", "Player 1", domain.RolePlayer, sock)

	assert.Equal(t, []string{"joinAck", "state", "queue"}, sock.types(t))
}

func TestRoom_Join_Idempotent(t *testing.T) {
	sw := &fakeStorageWriter{}
	r := New("r1", "room one", "K1", testConfig(), sw)
	sock1 := &fakeSocket{}
	r.Join("p1", "Player 1", domain.RolePlayer, sock1)
	assert.Equal(t, 1, r.DeviceCount())

	sock2 := &fakeSocket{}
	r.Join("p1", "Player 1 renamed", domain.RolePlayer, sock2)
	assert.Equal(t, 1, r.DeviceCount())
}

func TestRoom_Join_NormalizesDeviceName(t *testing.T) {
	sw := &fakeStorageWriter{}
	r := New("r1", "room one", "K1", testConfig(), sw)
	sock := &fakeSocket{}

	// "e" followed by a combining acute accent (decomposed form, NFD)
	// rather than the precomposed "é"; NFC must fold both to the same
	// rendered name.
	precomposed := "Café"
	decomposed := "Café"
	r.Join("p1", decomposed, domain.RolePlayer, sock)

	snap := r.Snapshot()
	require.Len(t, snap.Devices, 1)
	assert.Equal(t, precomposed, snap.Devices[0].Name)
}

func TestRoom_Isolation(t *testing.T) {
	sw := &fakeStorageWriter{}
	r1 := New("r1", "room one", "K1", testConfig(), sw)
	r2 := New("r2", "room two", "K2", testConfig(), sw)

	sock1 := &fakeSocket{}
	sock2 := &fakeSocket{}
	r1.Join("p1", "P1", domain.RolePlayer, sock1)
	r2.Join("p2", "P2", domain.RolePlayer, sock2)

	err := r1.HandleCommand("p1", ActionSetVolume, map[string]any{"volume": 0.3}, "")
	require.NoError(t, err)

	assert.Equal(t, 1, r2.DeviceCount()) // r2 is untouched by r1's mutation
	assert.Empty(t, sock2.types(t))
}

func TestRoom_S1_EmptyPlaylist(t *testing.T) {
	sw := &fakeStorageWriter{}
	r := New("r1", "room one", "K1", testConfig(), sw)
	sock := &fakeSocket{}
	r.Join("p1", "P1", domain.RolePlayer, sock)

	err := r.HandleCommand("p1", ActionSkip, nil, "")
	require.NoError(t, err)

	// No nextSong frame should have been emitted; the transition found no
	// candidate and only a state frame (idle) is broadcast.
	for _, typ := range sock.types(t) {
		assert.NotEqual(t, "nextSong", typ)
	}
}

func TestRoom_S4_DeviceVolumeOverride(t *testing.T) {
	sw := &fakeStorageWriter{}
	r := New("r1", "room one", "K1", testConfig(), sw)
	p1 := &fakeSocket{}
	p2 := &fakeSocket{}
	r.Join("p1", "P1", domain.RolePlayer, p1)
	r.Join("p2", "P2", domain.RolePlayer, p2)

	p1.frames = nil
	p2.frames = nil

	err := r.HandleCommand("ctrl", ActionSetVolume, map[string]any{"volume": 0.5}, "p1")
	require.NoError(t, err)

	assert.Equal(t, []string{"execute"}, p1.types(t))
	assert.Empty(t, p2.types(t))

	p1.frames = nil
	p2.frames = nil
	err = r.HandleCommand("ctrl", ActionSyncAll, nil, "")
	require.NoError(t, err)

	assert.Contains(t, p1.types(t), "execute")
	assert.Contains(t, p2.types(t), "execute")
}

func TestRoom_SetVolume_RoomScope_BroadcastsState(t *testing.T) {
	sw := &fakeStorageWriter{}
	r := New("r1", "room one", "K1", testConfig(), sw)
	p1 := &fakeSocket{}
	r.Join("p1", "P1", domain.RolePlayer, p1)

	p1.frames = nil
	err := r.HandleCommand("ctrl", ActionSetVolume, map[string]any{"volume": 0.5}, "p1")
	require.NoError(t, err)
	p1.frames = nil

	err = r.HandleCommand("ctrl", ActionSetVolume, map[string]any{"volume": 0.2}, "")
	require.NoError(t, err)

	// Room-scope setVolume mutates playback.volume and clears every
	// device's override, both carried in the state frame: every device
	// must observe a state frame in addition to its execute imperative.
	assert.Contains(t, p1.types(t), "state")
	assert.Contains(t, p1.types(t), "execute")
}

func TestRoom_SelectSong_RejectsUnplayable(t *testing.T) {
	sw := &fakeStorageWriter{}
	r := New("r1", "room one", "K1", testConfig(), sw)
	sock := &fakeSocket{}
	r.Join("p1", "P1", domain.RolePlayer, sock)
	r.UpdateQueue([]domain.Song{
		{ID: "a", Status: domain.SongStatusPending, OrderIndex: 1},
	}, 1)

	sock.frames = nil
	err := r.HandleCommand("p1", ActionSelectSong, map[string]any{"songId": "a"}, "")
	assert.ErrorIs(t, err, domain.ErrSongNotPlayable)
}
