// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/ManuGH/infinitune/internal/domain"
)

// MemoryStore is an in-memory Store intended for tests and local
// iteration. Not durable; not suitable for production.
type MemoryStore struct {
	mu sync.RWMutex

	playlistsByID  map[string]*Playlist
	playlistsByKey map[string]string // playlist-key -> playlist id
	songs          map[string][]domain.Song // playlist id -> songs
	devices        map[string]*Device       // token -> device
	users          map[string]*User         // id -> user
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		playlistsByID:  make(map[string]*Playlist),
		playlistsByKey: make(map[string]string),
		songs:          make(map[string][]domain.Song),
		devices:        make(map[string]*Device),
		users:          make(map[string]*User),
	}
}

// PutPlaylist seeds a playlist row, reachable both by id and by key.
func (m *MemoryStore) PutPlaylist(key string, p Playlist) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.playlistsByID[p.ID] = &cp
	m.playlistsByKey[key] = p.ID
}

// PutSongs replaces the song queue for a playlist id.
func (m *MemoryStore) PutSongs(playlistID string, songs []domain.Song) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]domain.Song, len(songs))
	copy(cp, songs)
	m.songs[playlistID] = cp
}

// PutDevice seeds a device row addressable by its token.
func (m *MemoryStore) PutDevice(d Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := d
	m.devices[d.Token] = &cp
}

// PutUser seeds a user row.
func (m *MemoryStore) PutUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := u
	m.users[u.ID] = &cp
}

func (m *MemoryStore) GetPlaylistByKey(_ context.Context, key string) (*Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.playlistsByKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	p, ok := m.playlistsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetPlaylist(_ context.Context, id string) (*Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.playlistsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetSongQueue(_ context.Context, playlistID string) ([]domain.Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	songs := m.songs[playlistID]
	out := make([]domain.Song, len(songs))
	copy(out, songs)
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m *MemoryStore) UpdateSongStatus(_ context.Context, songID string, status domain.SongStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for playlistID, songs := range m.songs {
		for i := range songs {
			if songs[i].ID == songID {
				songs[i].Status = status
				m.songs[playlistID] = songs
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) GetDeviceByToken(_ context.Context, token string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// Ping always succeeds: the in-memory store has no external dependency
// to be unreachable from.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) GetUserByID(_ context.Context, userID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

var _ Store = (*MemoryStore)(nil)
