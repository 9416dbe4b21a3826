// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging, kept in one
// place so a field never drifts to a different name in a different
// package (e.g. "room" vs "room_id").
const (
	// Identity fields
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldActor         = "actor"

	// Room/device/playback fields
	FieldRoomID      = "room_id"
	FieldDeviceID    = "device_id"
	FieldSongID      = "song_id"
	FieldPlaylistID  = "playlist_id"
	FieldPlaylistKey = "playlist_key"
	FieldAction      = "action"
	FieldScope       = "scope"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Bus fields
	FieldExchange   = "exchange"
	FieldRoutingKey = "routing_key"

	// Storage / cache fields
	FieldNamespace = "namespace"
	FieldAddr      = "addr"
	FieldKey       = "key"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
