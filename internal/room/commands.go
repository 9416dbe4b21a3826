// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package room

import (
	"encoding/json"
	"time"

	"github.com/ManuGH/infinitune/internal/domain"
	"github.com/ManuGH/infinitune/internal/metrics"
	"github.com/ManuGH/infinitune/internal/selector"
)

// Command actions, the fixed taxonomy from the wire protocol.
const (
	ActionPlay           = "play"
	ActionPause          = "pause"
	ActionStop           = "stop"
	ActionToggle         = "toggle"
	ActionSkip           = "skip"
	ActionSeek           = "seek"
	ActionSetVolume      = "setVolume"
	ActionToggleMute     = "toggleMute"
	ActionRate           = "rate"
	ActionSelectSong     = "selectSong"
	ActionResetToDefault = "resetToDefault"
	ActionSyncAll        = "syncAll"
)

// HandleCommand interprets a command and emits fan-out frames. targetDeviceID
// is empty for room-scope commands.
func (r *Room) HandleCommand(fromDeviceID, action string, payload map[string]any, targetDeviceID string) error {
	r.mu.Lock()

	var eff effects
	var transitionNeeded bool
	var manualTarget string
	var err error

	switch action {
	case ActionPlay, ActionPause, ActionToggle, ActionStop:
		switch action {
		case ActionPlay:
			r.playback.IsPlaying = true
		case ActionPause, ActionStop:
			r.playback.IsPlaying = false
		case ActionToggle:
			r.playback.IsPlaying = !r.playback.IsPlaying
		}
		eff.targeted = r.fanOutToPlayers(ExecuteFrame{Type: "execute", Action: action, Scope: ScopeRoom})

	case ActionSkip:
		transitionNeeded = true

	case ActionSeek:
		t, _ := payload["time"].(float64)
		if t < 0 {
			t = 0
		}
		if t > r.playback.Duration {
			t = r.playback.Duration
		}
		eff.targeted = r.fanOutToPlayers(ExecuteFrame{Type: "execute", Action: action, Payload: map[string]any{"time": t}, Scope: ScopeRoom})

	case ActionSetVolume:
		vol, _ := payload["volume"].(float64)
		vol = clamp01(vol)
		if targetDeviceID != "" {
			if d, ok := r.devices[targetDeviceID]; ok {
				d.VolumeOverride = &vol
				if sock, ok := r.sockets[targetDeviceID]; ok {
					payload, _ := json.Marshal(ExecuteFrame{Type: "execute", Action: action, Payload: map[string]any{"volume": vol}, Scope: ScopeDevice})
					eff.targeted = append(eff.targeted, targetedFrame{sock: sock, payload: payload})
				}
			} else {
				err = domain.ErrDeviceNotFound
			}
		} else {
			for _, d := range r.devices {
				d.VolumeOverride = nil
			}
			r.playback.Volume = vol
			eff.targeted = r.fanOutToPlayers(ExecuteFrame{Type: "execute", Action: action, Payload: map[string]any{"volume": vol}, Scope: ScopeRoom})
			eff.broadcast = r.buildStateFrame()
		}

	case ActionToggleMute:
		r.playback.IsMuted = !r.playback.IsMuted
		eff.broadcast = r.buildStateFrame()
		eff.targeted = append(eff.targeted, r.fanOutToPlayers(ExecuteFrame{Type: "execute", Action: action, Scope: ScopeRoom})...)

	case ActionRate:
		// Persistence of the rating is delegated to the storage layer via
		// the control-plane REST path; the WS command records intent only
		// and mutates no Room state.

	case ActionSelectSong:
		songID, _ := payload["songId"].(string)
		found := false
		var target domain.Song
		for _, s := range r.queue {
			if s.ID == songID {
				target = s
				found = true
				break
			}
		}
		if !found || !target.Playable(true) {
			err = domain.ErrSongNotPlayable
			break
		}
		transitionNeeded = true
		manualTarget = songID

	case ActionResetToDefault:
		if targetDeviceID == "" {
			err = domain.ErrDeviceNotFound
			break
		}
		if d, ok := r.devices[targetDeviceID]; ok {
			d.VolumeOverride = nil
			if sock, ok := r.sockets[targetDeviceID]; ok {
				p, _ := json.Marshal(ExecuteFrame{Type: "execute", Action: ActionSetVolume, Payload: map[string]any{"volume": r.playback.Volume}, Scope: ScopeDevice})
				eff.targeted = append(eff.targeted, targetedFrame{sock: sock, payload: p})
			}
		} else {
			err = domain.ErrDeviceNotFound
		}

	case ActionSyncAll:
		playPause := ActionPause
		if r.playback.IsPlaying {
			playPause = ActionPlay
		}
		eff.targeted = append(eff.targeted, r.fanOutToPlayers(ExecuteFrame{Type: "execute", Action: ActionSetVolume, Payload: map[string]any{"volume": r.playback.Volume}, Scope: ScopeRoom})...)
		eff.targeted = append(eff.targeted, r.fanOutToPlayers(ExecuteFrame{Type: "execute", Action: playPause, Scope: ScopeRoom})...)

	default:
		err = domain.ErrUnknownCommand
	}

	if err != nil {
		sock, ok := r.sockets[fromDeviceID]
		r.mu.Unlock()
		if ok {
			p, _ := json.Marshal(ErrorFrame{Type: "error", Message: err.Error()})
			sock.Send(p)
		}
		return err
	}

	if transitionNeeded {
		tEff := r.doTransitionLocked(manualTarget)
		eff.broadcast = tEff.broadcast
		eff.targeted = append(eff.targeted, tEff.targeted...)
		eff.storageWrites = append(eff.storageWrites, tEff.storageWrites...)
	}

	sockets := r.cloneSockets()
	r.mu.Unlock()

	eff.apply(r, sockets)
	return nil
}

// fanOutToPlayers marshals frame once and targets every bound player
// socket. Must be called with r.mu held.
func (r *Room) fanOutToPlayers(frame ExecuteFrame) []targetedFrame {
	payload, _ := json.Marshal(frame)
	var out []targetedFrame
	for _, sock := range r.playerSockets() {
		out = append(out, targetedFrame{sock: sock, payload: payload})
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// HandleSync accepts a player's ground-truth report. Reports from the
// authoritative player mutate playback; reports from anyone else update
// only liveness (the source mixes both "ignore" and "liveness" treatment
// of non-authoritative sync frames — this implementation resolves that
// ambiguity in favor of liveness, see DESIGN.md).
func (r *Room) HandleSync(deviceID, currentSongID string, isPlaying bool, currentTime, duration float64) {
	r.mu.Lock()
	if d, ok := r.devices[deviceID]; ok {
		d.LastSeen = time.Now()
	}

	var broadcast []byte
	if deviceID == r.authoritativePlayerID() {
		r.playback.CurrentSongID = currentSongID
		r.playback.IsPlaying = isPlaying
		r.playback.CurrentTime = currentTime
		r.playback.Duration = duration
		broadcast = r.buildStateFrame()
	}
	sockets := r.cloneSockets()
	r.mu.Unlock()

	if broadcast != nil {
		for _, s := range sockets {
			if !s.Send(broadcast) {
				metrics.IncWSSendQueueDropped()
			}
		}
	}
}

// HandleSongEnded is invoked by the authoritative player on end-of-stream.
func (r *Room) HandleSongEnded() {
	r.mu.Lock()
	eff := r.doTransitionLocked("")
	sockets := r.cloneSockets()
	r.mu.Unlock()
	eff.apply(r, sockets)
}

// HandlePing replies with pong{clientTime, serverTime} directly to the
// sender and updates the device's liveness timestamp.
func (r *Room) HandlePing(deviceID string, clientTime float64) {
	r.mu.Lock()
	if d, ok := r.devices[deviceID]; ok {
		d.LastSeen = time.Now()
	}
	sock, ok := r.sockets[deviceID]
	r.mu.Unlock()

	if !ok {
		return
	}
	p, _ := json.Marshal(PongFrame{Type: "pong", ClientTime: clientTime, ServerTime: float64(time.Now().UnixNano()) / 1e9})
	sock.Send(p)
}

// UpdateQueue replaces the queue snapshot, updates playlistEpoch, and
// broadcasts queue. If the current song disappeared or degraded, it
// advances per the transition protocol. Implements UpdateQueueSink.
func (r *Room) UpdateQueue(songs []domain.Song, epoch int64) {
	r.mu.Lock()
	r.queue = songs
	r.playlistEpoch = epoch

	queueFrame, _ := json.Marshal(QueueFrame{Type: "queue", Songs: songs})
	var eff effects

	if r.playback.CurrentSongID != "" && !r.currentSongStillPlayableLocked() {
		tEff := r.doTransitionLocked("")
		eff.targeted = append(eff.targeted, tEff.targeted...)
		eff.storageWrites = append(eff.storageWrites, tEff.storageWrites...)
		if tEff.broadcast != nil {
			eff.broadcast = tEff.broadcast // state supersedes queue frame ordering is fine, both go out
		}
	}

	sockets := r.cloneSockets()
	r.mu.Unlock()

	// queue frame always goes out, followed by any transition state.
	for _, s := range sockets {
		s.Send(queueFrame)
	}
	eff.apply(r, sockets)
}

func (r *Room) currentSongStillPlayableLocked() bool {
	for _, s := range r.queue {
		if s.ID == r.playback.CurrentSongID {
			return s.Status == domain.SongStatusReady || s.Status == domain.SongStatusPlayed
		}
	}
	return false
}

// doTransitionLocked performs the next-song transition protocol. If
// forcedSongID is non-empty, it is used directly (selectSong) instead of
// calling the Selector. Must be called with r.mu held; returns effects to
// apply after unlock.
func (r *Room) doTransitionLocked(forcedSongID string) effects {
	outgoing := r.playback.CurrentSongID
	manualMode := forcedSongID != ""

	var eff effects

	var candidate domain.Song
	found := false
	if forcedSongID != "" {
		for _, s := range r.queue {
			if s.ID == forcedSongID {
				candidate = s
				found = true
				break
			}
		}
	} else {
		cursor := r.currentOrderIndexLocked()
		result := selector.PickNext(r.queue, r.playback.CurrentSongID, r.playlistEpoch, cursor, manualMode)
		candidate, found = result.Song, result.Found
	}

	if !found {
		r.playback.CurrentSongID = ""
		r.playback.IsPlaying = false
		r.playback.CurrentTime = 0
		r.playback.Duration = 0
		eff.broadcast = r.buildStateFrame()
		return eff
	}

	if outgoing != "" && !r.markedPlayed[outgoing] {
		r.markedPlayed[outgoing] = true
		eff.storageWrites = append(eff.storageWrites, outgoing)
	}

	r.playback.CurrentSongID = candidate.ID
	r.playback.CurrentTime = 0
	r.playback.Duration = candidate.Duration
	r.playback.IsPlaying = true

	startAt := float64(time.Now().Add(r.cfg.JoinLatencyBudget).UnixNano()) / 1e9
	nextFrame, _ := json.Marshal(NextSongFrame{Type: "nextSong", SongID: candidate.ID, AudioURL: candidate.AudioURL, StartAt: startAt})
	eff.targeted = append(eff.targeted, r.toAllPlayers(nextFrame)...)

	cursor := candidate.OrderIndex
	nextResult := selector.PickNext(r.queue, candidate.ID, r.playlistEpoch, &cursor, manualMode)
	if nextResult.Found && nextResult.Song.Status == domain.SongStatusReady {
		preload, _ := json.Marshal(PreloadFrame{Type: "preload", SongID: nextResult.Song.ID, AudioURL: nextResult.Song.AudioURL})
		eff.targeted = append(eff.targeted, r.toAllPlayers(preload)...)
	}

	eff.broadcast = r.buildStateFrame()
	return eff
}

// toAllPlayers targets every bound player socket with a pre-marshaled
// payload. Must be called with r.mu held.
func (r *Room) toAllPlayers(payload []byte) []targetedFrame {
	var out []targetedFrame
	for _, sock := range r.playerSockets() {
		out = append(out, targetedFrame{sock: sock, payload: payload})
	}
	return out
}

// currentOrderIndexLocked returns the OrderIndex of the current song, or
// nil if there is none. Must be called with r.mu held.
func (r *Room) currentOrderIndexLocked() *float64 {
	for _, s := range r.queue {
		if s.ID == r.playback.CurrentSongID {
			idx := s.OrderIndex
			return &idx
		}
	}
	return nil
}

// SetRole changes the role of the sending Device.
func (r *Room) SetRole(deviceID string, role domain.DeviceRole) error {
	r.mu.Lock()
	d, ok := r.devices[deviceID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrDeviceNotFound
	}
	d.Role = role
	broadcast := r.buildStateFrame()
	sockets := r.cloneSockets()
	r.mu.Unlock()

	for _, s := range sockets {
		s.Send(broadcast)
	}
	return nil
}

// RenameDevice changes a Device's display name.
func (r *Room) RenameDevice(targetDeviceID, name string) error {
	r.mu.Lock()
	d, ok := r.devices[targetDeviceID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrDeviceNotFound
	}
	d.Name = name
	broadcast := r.buildStateFrame()
	sockets := r.cloneSockets()
	r.mu.Unlock()

	for _, s := range sockets {
		s.Send(broadcast)
	}
	return nil
}
