// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package roster

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const roomKeyPrefix = "room:"

// roomRecord is the durable projection of a Room's identity, just enough
// to recreate it (empty, no devices) on the next startup so a device
// reconnecting after a restart finds its room already present instead of
// racing the first successful join to recreate it.
type roomRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlaylistKey string `json:"playlistKey"`
}

// SnapshotStore persists the set of known room identities across process
// restarts. Room playback state and device membership are never
// persisted — only identity, so clients rejoin into an empty room rather
// than a "room not found" error immediately after a restart.
type SnapshotStore interface {
	SaveRoom(id, name, playlistKey string) error
	DeleteRoom(id string) error
	LoadRooms() ([]Info, error)
	Close() error
}

// Info is the restorable identity of one Room.
type Info struct {
	ID          string
	Name        string
	PlaylistKey string
}

// BadgerSnapshotStore implements SnapshotStore on an embedded badger
// database, one JSON record per room keyed by "room:<id>".
type BadgerSnapshotStore struct {
	db *badger.DB
}

// OpenBadgerSnapshotStore opens (or creates) the snapshot database at path.
func OpenBadgerSnapshotStore(path string) (*BadgerSnapshotStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("roster: open snapshot store: %w", err)
	}
	return &BadgerSnapshotStore{db: db}, nil
}

func (s *BadgerSnapshotStore) Close() error { return s.db.Close() }

// SaveRoom writes or overwrites a room's identity record.
func (s *BadgerSnapshotStore) SaveRoom(id, name, playlistKey string) error {
	rec := roomRecord{ID: id, Name: name, PlaylistKey: playlistKey}
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("roster: marshal room record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(roomKeyPrefix+id), buf)
	})
}

// DeleteRoom removes a room's identity record.
func (s *BadgerSnapshotStore) DeleteRoom(id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(roomKeyPrefix + id))
	})
	if err != nil && err != badger.ErrKeyNotFound {
		return fmt.Errorf("roster: delete room record: %w", err)
	}
	return nil
}

// LoadRooms returns every persisted room identity.
func (s *BadgerSnapshotStore) LoadRooms() ([]Info, error) {
	var out []Info
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(roomKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec roomRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("roster: decode room record: %w", err)
			}
			out = append(out, Info{ID: rec.ID, Name: rec.Name, PlaylistKey: rec.PlaylistKey})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AttachSnapshotStore wires a persister: every subsequent CreateRoom and
// RemoveRoom writes through to it. Safe to call before or after
// RestoreRooms — restoring re-saves identities it just loaded, which is
// a harmless no-op overwrite.
func (rs *Roster) AttachSnapshotStore(store SnapshotStore) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.snapshot = store
}

// RestoreRooms recreates every room identity the store knows about.
// Typically called once at startup, right after New and
// AttachSnapshotStore.
func (rs *Roster) RestoreRooms(store SnapshotStore) error {
	infos, err := store.LoadRooms()
	if err != nil {
		return fmt.Errorf("roster: restore rooms: %w", err)
	}
	for _, info := range infos {
		rs.CreateRoom(info.ID, info.Name, info.PlaylistKey)
	}
	logger.Info().Int("count", len(infos)).Msg("restored room identities from snapshot store")
	return nil
}
