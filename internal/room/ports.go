// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package room

import (
	"context"

	"github.com/ManuGH/infinitune/internal/domain"
)

// Socket is the Room's view of a bound client connection. Implementations
// (the edge package's WebSocket connection) must make Send non-blocking:
// a slow peer must never stall a broadcast to other sockets. Send returns
// false when the outbound queue was full and the socket was evicted.
type Socket interface {
	Send(payload []byte) bool
	Close()
}

// StorageWriter is the narrow write-back surface a Room calls into. The
// Sync bridge implements it; neither side holds the other's full type,
// breaking the Room<->Sync bridge cycle described in the design notes.
type StorageWriter interface {
	MarkSongPlayed(ctx context.Context, songID string) error
}

// UpdateQueueSink is the narrow surface the Sync bridge calls into a Room
// through. Room implements it.
type UpdateQueueSink interface {
	UpdateQueue(songs []domain.Song, epoch int64)
	ID() string
}
