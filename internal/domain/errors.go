// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a lookup names a room-id or
	// playlist-key the Roster has no record of.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomAlreadyExists is returned by non-idempotent room creation
	// paths; the Roster's own createRoom is idempotent and never
	// returns this.
	ErrRoomAlreadyExists = errors.New("room already exists")

	// ErrDeviceNotFound is returned when a command names an unknown
	// targetDeviceId.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrSongNotPlayable is returned when selectSong names a song whose
	// status is not ready (or played, under manual mode).
	ErrSongNotPlayable = errors.New("song not playable")

	// ErrUnknownCommand is returned for a command action outside the
	// fixed taxonomy.
	ErrUnknownCommand = errors.New("unknown command action")

	// ErrProtocolVersionUnsupported is returned when a client's
	// requested protocol version is newer than the server supports.
	ErrProtocolVersionUnsupported = errors.New("protocol version not supported")
)
