// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package roster implements the process-wide index of active Rooms, keyed
// by both room-id and playlist-key, and the grace-period sweep that
// garbage-collects empty rooms.
package roster

import (
	"context"
	"sync"

	"github.com/ManuGH/infinitune/internal/domain"
	applog "github.com/ManuGH/infinitune/internal/log"
	"github.com/ManuGH/infinitune/internal/metrics"
	"github.com/ManuGH/infinitune/internal/room"
)

var logger = applog.WithComponent("roster")

// Roster owns the process-wide set of Rooms. Two indexes share one lock,
// held only during lookup/insert/remove.
type Roster struct {
	mu            sync.RWMutex
	byID          map[string]*room.Room
	byPlaylist    map[string]map[string]*room.Room // playlistKey -> roomID -> Room
	roomCfg       room.Config
	storageWriter room.StorageWriter
	snapshot      SnapshotStore // optional; nil means no restart persistence
}

// New constructs an empty Roster. roomCfg is applied to every Room it
// creates; storageWriter is handed to each Room's write-back port.
func New(roomCfg room.Config, storageWriter room.StorageWriter) *Roster {
	return &Roster{
		byID:          make(map[string]*room.Room),
		byPlaylist:    make(map[string]map[string]*room.Room),
		roomCfg:       roomCfg,
		storageWriter: storageWriter,
	}
}

// CreateRoom creates a room, or returns the existing room if roomID is
// already in use (idempotent create).
func (rs *Roster) CreateRoom(roomID, name, playlistKey string) *room.Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if existing, ok := rs.byID[roomID]; ok {
		return existing
	}

	r := room.New(roomID, name, playlistKey, rs.roomCfg, rs.storageWriter)
	rs.byID[roomID] = r
	if rs.byPlaylist[playlistKey] == nil {
		rs.byPlaylist[playlistKey] = make(map[string]*room.Room)
	}
	rs.byPlaylist[playlistKey][roomID] = r

	if rs.snapshot != nil {
		if err := rs.snapshot.SaveRoom(roomID, name, playlistKey); err != nil {
			logger.Warn().Err(err).Str("room_id", roomID).Msg("snapshot save failed")
		}
	}

	metrics.IncRoomsCreated()
	metrics.SetRoomsActive(len(rs.byID))
	logger.Info().Str("room_id", roomID).Str("playlist_key", playlistKey).Msg("room created")
	return r
}

// GetRoom returns the room with the given id, or nil.
func (rs *Roster) GetRoom(roomID string) (*room.Room, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	r, ok := rs.byID[roomID]
	return r, ok
}

// GetRoomsByPlaylistKey returns every room bound to the given playlist-key.
func (rs *Roster) GetRoomsByPlaylistKey(key string) []*room.Room {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	set := rs.byPlaylist[key]
	out := make([]*room.Room, 0, len(set))
	for _, r := range set {
		out = append(out, r)
	}
	return out
}

// JoinRoom looks up roomID and joins the device to it.
func (rs *Roster) JoinRoom(roomID, deviceID, name string, role domain.DeviceRole, sock room.Socket) error {
	r, ok := rs.GetRoom(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.Join(deviceID, name, role, sock)
	return nil
}

// LeaveRoom looks up roomID and removes the device's socket binding.
func (rs *Roster) LeaveRoom(roomID, deviceID string) error {
	r, ok := rs.GetRoom(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.Leave(deviceID)
	return nil
}

// RemoveRoom removes a room from both indexes and drains its background
// goroutines. Returns ErrRoomNotFound if absent.
func (rs *Roster) RemoveRoom(ctx context.Context, roomID string) error {
	rs.mu.Lock()
	r, ok := rs.byID[roomID]
	if !ok {
		rs.mu.Unlock()
		return domain.ErrRoomNotFound
	}
	delete(rs.byID, roomID)
	if set, ok := rs.byPlaylist[r.PlaylistKey()]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(rs.byPlaylist, r.PlaylistKey())
		}
	}
	snapshot := rs.snapshot
	metrics.SetRoomsActive(len(rs.byID))
	metrics.DeleteDevicesActive(roomID)
	rs.mu.Unlock()

	if snapshot != nil {
		if err := snapshot.DeleteRoom(roomID); err != nil {
			logger.Warn().Err(err).Str("room_id", roomID).Msg("snapshot delete failed")
		}
	}

	logger.Info().Str("room_id", roomID).Msg("room removed")
	return r.Close(ctx)
}

// ListRooms returns every currently registered room.
func (rs *Roster) ListRooms() []*room.Room {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]*room.Room, 0, len(rs.byID))
	for _, r := range rs.byID {
		out = append(out, r)
	}
	return out
}
