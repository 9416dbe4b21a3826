// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ManuGH/infinitune/internal/domain"
	applog "github.com/ManuGH/infinitune/internal/log"
	"github.com/ManuGH/infinitune/internal/metrics"
	"github.com/ManuGH/infinitune/internal/room"
)

// envelope reads just enough of an inbound frame to route it; the
// remainder is re-decoded per message type so a malformed payload in one
// field never prevents routing.
type envelope struct {
	Type string `json:"type"`
}

type joinMsg struct {
	RoomID          string `json:"roomId,omitempty"`
	PlaylistID      string `json:"playlistId,omitempty"`
	DeviceID        string `json:"deviceId"`
	DeviceName      string `json:"deviceName"`
	Role            string `json:"role"`
	PlaylistKey     string `json:"playlistKey,omitempty"`
	RoomName        string `json:"roomName,omitempty"`
	ProtocolVersion int    `json:"protocolVersion,omitempty"`
}

type commandMsg struct {
	Action         string         `json:"action"`
	Payload        map[string]any `json:"payload,omitempty"`
	TargetDeviceID string         `json:"targetDeviceId,omitempty"`
}

type syncMsg struct {
	CurrentSongID string  `json:"currentSongId"`
	IsPlaying     bool    `json:"isPlaying"`
	CurrentTime   float64 `json:"currentTime"`
	Duration      float64 `json:"duration"`
}

type setRoleMsg struct {
	Role string `json:"role"`
}

type renameDeviceMsg struct {
	TargetDeviceID string `json:"targetDeviceId"`
	Name           string `json:"name"`
}

type pingMsg struct {
	ClientTime float64 `json:"clientTime"`
}

func jsonMarshalErrorFrame(message string) ([]byte, error) {
	return json.Marshal(room.ErrorFrame{Type: "error", Message: message})
}

// dispatch decodes one inbound WS frame and routes it to the bound Room.
// A frame that fails schema validation or names an unknown room gets an
// error frame in reply; the connection is kept open either way, per the
// protocol's "never close on a bad message" contract.
func (s *Server) dispatch(c *wsConn, raw []byte) {
	metrics.IncWSFrame("in", "frame")

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.IncWSFrameRejected("invalid_json")
		c.sendError("malformed frame: not valid JSON")
		return
	}

	switch env.Type {
	case "join":
		s.handleJoinFrame(c, raw)
	case "command":
		s.handleCommandFrame(c, raw)
	case "sync":
		s.handleSyncFrame(c, raw)
	case "setRole":
		s.handleSetRoleFrame(c, raw)
	case "songEnded":
		s.handleSongEndedFrame(c)
	case "renameDevice":
		s.handleRenameDeviceFrame(c, raw)
	case "ping":
		s.handlePingFrame(c, raw)
	default:
		metrics.IncWSFrameRejected("unknown_type")
		c.sendError(fmt.Sprintf("unknown message type %q", env.Type))
	}
}

// boundRoom returns the Room this socket has joined, or nil if it has
// not joined one yet (every message type except join requires this).
func (s *Server) boundRoom(c *wsConn) (*room.Room, string, bool) {
	c.mu.Lock()
	roomID, deviceID := c.roomID, c.deviceID
	c.mu.Unlock()
	if roomID == "" || deviceID == "" {
		return nil, "", false
	}
	r, ok := s.roster.GetRoom(roomID)
	return r, deviceID, ok
}

func (s *Server) handleJoinFrame(c *wsConn, raw []byte) {
	var msg joinMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.IncWSFrameRejected("invalid_join")
		c.sendError("join: malformed payload")
		return
	}
	if msg.DeviceID == "" {
		c.sendError("join: deviceId is required")
		return
	}
	if msg.RoomID == "" && msg.PlaylistID == "" {
		c.sendError("join: at least one of roomId or playlistId is required")
		return
	}
	role := domain.DeviceRole(msg.Role)
	if role == "" {
		role = domain.RolePlayer
	}
	if !role.IsValid() {
		c.sendError(fmt.Sprintf("join: invalid role %q", msg.Role))
		return
	}
	if msg.ProtocolVersion != 0 && msg.ProtocolVersion > room.ProtocolVersion {
		c.sendError(domain.ErrProtocolVersionUnsupported.Error())
		c.Close()
		return
	}

	r, err := s.resolveJoinRoom(c, msg)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.mu.Lock()
	c.roomID, c.deviceID = r.ID(), msg.DeviceID
	c.logger = c.logger.With().Str(applog.FieldRoomID, c.roomID).Str(applog.FieldDeviceID, c.deviceID).Logger()
	c.mu.Unlock()

	r.Join(msg.DeviceID, msg.DeviceName, role, c)
}

// resolveJoinRoom finds (or auto-creates) the Room a join frame names.
// roomId is tried first; playlistId is resolved via every Room already
// bound to it (ties broken deterministically by room id, since the
// protocol does not disambiguate multiple rooms sharing one playlist).
func (s *Server) resolveJoinRoom(c *wsConn, msg joinMsg) (*room.Room, error) {
	if msg.RoomID != "" {
		if r, ok := s.roster.GetRoom(msg.RoomID); ok {
			return r, nil
		}
		if msg.PlaylistKey == "" {
			return nil, domain.ErrRoomNotFound
		}
		name := msg.RoomName
		if name == "" {
			name = msg.RoomID
		}
		r := s.roster.CreateRoom(msg.RoomID, name, msg.PlaylistKey)
		s.syncNewRoom(context.Background(), msg.PlaylistKey)
		return r, nil
	}

	if s.bridge == nil || msg.PlaylistID == "" {
		return nil, domain.ErrRoomNotFound
	}
	rooms := s.bridge.RoomsForPlaylistID(msg.PlaylistID)
	if len(rooms) == 0 {
		return nil, domain.ErrRoomNotFound
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID() < rooms[j].ID() })
	return rooms[0], nil
}

func (s *Server) handleCommandFrame(c *wsConn, raw []byte) {
	r, deviceID, ok := s.boundRoom(c)
	if !ok {
		c.sendError("command: not joined to a room")
		return
	}
	var msg commandMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.IncWSFrameRejected("invalid_command")
		c.sendError("command: malformed payload")
		return
	}
	if msg.Action == "" {
		c.sendError("command: action is required")
		return
	}
	_ = r.HandleCommand(deviceID, msg.Action, msg.Payload, msg.TargetDeviceID)
}

func (s *Server) handleSyncFrame(c *wsConn, raw []byte) {
	r, deviceID, ok := s.boundRoom(c)
	if !ok {
		c.sendError("sync: not joined to a room")
		return
	}
	var msg syncMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.IncWSFrameRejected("invalid_sync")
		c.sendError("sync: malformed payload")
		return
	}
	r.HandleSync(deviceID, msg.CurrentSongID, msg.IsPlaying, msg.CurrentTime, msg.Duration)
}

func (s *Server) handleSetRoleFrame(c *wsConn, raw []byte) {
	r, deviceID, ok := s.boundRoom(c)
	if !ok {
		c.sendError("setRole: not joined to a room")
		return
	}
	var msg setRoleMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.IncWSFrameRejected("invalid_set_role")
		c.sendError("setRole: malformed payload")
		return
	}
	role := domain.DeviceRole(msg.Role)
	if !role.IsValid() {
		c.sendError(fmt.Sprintf("setRole: invalid role %q", msg.Role))
		return
	}
	if err := r.SetRole(deviceID, role); err != nil {
		c.sendError(err.Error())
	}
}

func (s *Server) handleSongEndedFrame(c *wsConn) {
	r, _, ok := s.boundRoom(c)
	if !ok {
		c.sendError("songEnded: not joined to a room")
		return
	}
	r.HandleSongEnded()
}

func (s *Server) handleRenameDeviceFrame(c *wsConn, raw []byte) {
	r, _, ok := s.boundRoom(c)
	if !ok {
		c.sendError("renameDevice: not joined to a room")
		return
	}
	var msg renameDeviceMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.IncWSFrameRejected("invalid_rename_device")
		c.sendError("renameDevice: malformed payload")
		return
	}
	if msg.TargetDeviceID == "" || msg.Name == "" {
		c.sendError("renameDevice: targetDeviceId and name are required")
		return
	}
	if err := r.RenameDevice(msg.TargetDeviceID, msg.Name); err != nil {
		c.sendError(err.Error())
	}
}

func (s *Server) handlePingFrame(c *wsConn, raw []byte) {
	r, deviceID, ok := s.boundRoom(c)
	if !ok {
		c.sendError("ping: not joined to a room")
		return
	}
	var msg pingMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.IncWSFrameRejected("invalid_ping")
		c.sendError("ping: malformed payload")
		return
	}
	r.HandlePing(deviceID, msg.ClientTime)
}
