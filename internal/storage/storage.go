// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package storage defines the narrow query interface the coordinator
// consumes from the relational store of playlists, songs, devices, and
// users. The coordinator never owns schema migration or writes beyond
// the single played-status write-back path; it is a consumer.
package storage

import (
	"context"
	"errors"

	"github.com/ManuGH/infinitune/internal/domain"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("storage: not found")

// Playlist is the subset of a playlist row the coordinator needs:
// its id, the steering-prompt epoch used by the Selector, and a display
// name.
type Playlist struct {
	ID          string
	PromptEpoch int64
	Name        string
}

// Device is a row from the device table, used by control-plane
// authentication (x-device-token).
type Device struct {
	ID    string
	Token string
}

// User is a row from the user table, used by bearer-token authentication.
type User struct {
	ID   string
	Name string
}

// Store is the full query surface the coordinator requires. Sync bridge
// uses GetPlaylistByKey, GetSongQueue, UpdateSongStatus;
// Edge's control-plane REST routes use the device/user lookups.
type Store interface {
	GetPlaylistByKey(ctx context.Context, key string) (*Playlist, error)
	GetPlaylist(ctx context.Context, id string) (*Playlist, error)
	GetSongQueue(ctx context.Context, playlistID string) ([]domain.Song, error)
	UpdateSongStatus(ctx context.Context, songID string, status domain.SongStatus) error
	GetDeviceByToken(ctx context.Context, token string) (*Device, error)
	GetUserByID(ctx context.Context, userID string) (*User, error)
}
