// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package edge

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	applog "github.com/ManuGH/infinitune/internal/log"
	"github.com/ManuGH/infinitune/internal/room"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.L().Error().Err(err).Int("status", code).Msg("failed to encode JSON response")
	}
}

// apiError is the shape of every non-2xx control-plane response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]apiError{"error": {Code: code, Message: message}})
}

type createRoomRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlaylistKey string `json:"playlistKey"`
}

// handleListRooms implements GET /api/v1/rooms.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.roster.ListRooms()
	out := make([]room.Info, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, rm.Info())
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

// handleCreateRoom implements POST /api/v1/rooms. Creation is
// idempotent: an existing id returns the existing room.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON")
		return
	}
	if req.ID == "" || req.PlaylistKey == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "id and playlistKey are required")
		return
	}
	name := req.Name
	if name == "" {
		name = req.ID
	}

	_, existed := s.roster.GetRoom(req.ID)
	rm := s.roster.CreateRoom(req.ID, name, req.PlaylistKey)
	if !existed {
		s.syncNewRoom(r.Context(), req.PlaylistKey)
	}
	if actor, ok := principalFromContext(r.Context()); ok {
		s.logger.Info().Str(applog.FieldRoomID, req.ID).Str(applog.FieldActor, actor.ID).Str("actor_source", string(actor.Source)).Bool("pre_existing", existed).Msg("room created")
	}

	writeJSON(w, http.StatusOK, rm.Info())
}

// handleDeleteRoom implements DELETE /api/v1/rooms/:id.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if err := s.roster.RemoveRoom(r.Context(), roomID); err != nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "room not found")
		return
	}
	if actor, ok := principalFromContext(r.Context()); ok {
		s.logger.Info().Str(applog.FieldRoomID, roomID).Str(applog.FieldActor, actor.ID).Str("actor_source", string(actor.Source)).Msg("room deleted")
	}
	w.WriteHeader(http.StatusNoContent)
}

// nowPlayingClass mirrors the class enum consumed by status-bar
// integrations (e.g. a taskbar widget polling this endpoint).
func nowPlayingClass(playback room.Snapshot) string {
	if playback.CurrentSong == nil {
		return "stopped"
	}
	if playback.Playback.IsPlaying {
		return "playing"
	}
	return "paused"
}

// handleNowPlaying implements GET /api/v1/now-playing?room=<id>.
func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ROOM", "room query parameter is required")
		return
	}
	rm, ok := s.roster.GetRoom(roomID)
	if !ok {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "room not found")
		return
	}

	snap := rm.Snapshot()
	class := nowPlayingClass(snap)

	text := "Nothing playing"
	tooltip := "No song loaded"
	if snap.CurrentSong != nil {
		text = snap.CurrentSong.Title
		if snap.CurrentSong.Artist != "" {
			tooltip = snap.CurrentSong.Artist + " — " + snap.CurrentSong.Title
		} else {
			tooltip = snap.CurrentSong.Title
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"text":     text,
		"tooltip":  tooltip,
		"class":    class,
		"song":     snap.CurrentSong,
		"playback": snap.Playback,
		"room":     roomID,
	})
}
