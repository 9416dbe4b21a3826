// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package roster

import (
	"encoding/json"
	"fmt"

	"github.com/google/renameio/v2"
)

// roomsExport is the on-disk shape written by ExportRoomsJSON: a point in
// time view of every known room's identity and device count, for
// operators inspecting a running coordinator without going through the
// authenticated REST API.
type roomsExport struct {
	Rooms []roomExportEntry `json:"rooms"`
}

type roomExportEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlaylistKey string `json:"playlistKey"`
	DeviceCount int    `json:"deviceCount"`
}

// ExportRoomsJSON writes a snapshot of every known room's identity and
// device count to path, using an atomic temp-file-plus-rename so a
// concurrent reader (or a crash mid-write) never observes a partial
// file.
func (rs *Roster) ExportRoomsJSON(path string) error {
	rooms := rs.ListRooms()
	out := roomsExport{Rooms: make([]roomExportEntry, 0, len(rooms))}
	for _, r := range rooms {
		info := r.Info()
		out.Rooms = append(out.Rooms, roomExportEntry{
			ID:          info.ID,
			Name:        info.Name,
			PlaylistKey: info.PlaylistKey,
			DeviceCount: info.DeviceCount,
		})
	}

	buf, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("roster: marshal rooms export: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("roster: create pending rooms export file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(buf); err != nil {
		return fmt.Errorf("roster: write rooms export: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("roster: atomically replace rooms export file: %w", err)
	}
	return nil
}
