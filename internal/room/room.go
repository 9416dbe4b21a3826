// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package room implements the per-playlist coordination unit: playback
// state, device roster, queue snapshot, command interpretation, and
// session lifecycle. Every exported operation is atomic with respect to
// other operations on the same Room — mutation happens behind a single
// mutex; network I/O and storage calls never run while that mutex is
// held (see the effects/apply split in this file).
package room

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/infinitune/internal/domain"
	applog "github.com/ManuGH/infinitune/internal/log"
	"github.com/ManuGH/infinitune/internal/metrics"
)

// Config carries the operational parameters a Room needs that are not
// part of its identity.
type Config struct {
	JoinLatencyBudget time.Duration // added to startAt on transitions
	OutboundQueueMax  int           // OUTBOUND_QUEUE_MAX; not read: each socket's queue is fixed at 16 frames (edge.wsSendChannelSize)
	GraceInterval     time.Duration // how long an absent device is retained
}

// Room owns Playback, Device roster, Queue snapshot, and bound socket
// handles for a single playlist.
type Room struct {
	id          string
	name        string
	playlistKey string

	cfg           Config
	storageWriter StorageWriter
	logger        zerolog.Logger
	registry      goroutineRegistry

	mu             sync.Mutex
	playback       domain.Playback
	devices        map[string]*domain.Device
	sockets        map[string]Socket
	queue          []domain.Song
	playlistEpoch  int64
	emptySince     *time.Time
	markedPlayed   map[string]bool
	deviceGraceGen map[string]int // generation counter to invalidate stale grace timers
}

// New constructs a Room bound to the given id, display name, and
// playlist-key.
func New(id, name, playlistKey string, cfg Config, sw StorageWriter) *Room {
	return &Room{
		id:             id,
		name:           name,
		playlistKey:    playlistKey,
		cfg:            cfg,
		storageWriter:  sw,
		logger:         applog.WithComponent("room"),
		devices:        make(map[string]*domain.Device),
		sockets:        make(map[string]Socket),
		markedPlayed:   make(map[string]bool),
		deviceGraceGen: make(map[string]int),
	}
}

// ID implements UpdateQueueSink.
func (r *Room) ID() string { return r.id }

// PlaylistKey returns the playlist-key this Room is bound to.
func (r *Room) PlaylistKey() string { return r.playlistKey }

// DeviceCount returns the number of devices currently registered,
// regardless of whether a socket is attached.
func (r *Room) DeviceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// EmptySince reports the time at which the Room last had zero devices,
// used by the Roster's grace-period sweep. ok is false if the Room is
// currently non-empty.
func (r *Room) EmptySince() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emptySince == nil {
		return time.Time{}, false
	}
	return *r.emptySince, true
}

// Close drains Room-owned background goroutines (device grace timers,
// async storage writes). Call on final removal from the Roster.
func (r *Room) Close(ctx context.Context) error {
	return r.registry.CloseAndWait(ctx)
}

// --- effects: the non-blocking post-unlock side-effect queue ---

type targetedFrame struct {
	sock    Socket
	payload []byte
}

type effects struct {
	broadcast     []byte // sent to every currently bound socket, snapshot at unlock time
	targeted      []targetedFrame
	storageWrites []string
}

func (e *effects) apply(r *Room, sockets map[string]Socket) {
	if e.broadcast != nil {
		for _, s := range sockets {
			if !s.Send(e.broadcast) {
				metrics.IncWSSendQueueDropped()
			}
		}
	}
	for _, t := range e.targeted {
		if !t.sock.Send(t.payload) {
			metrics.IncWSSendQueueDropped()
		}
	}
	for _, songID := range e.storageWrites {
		id := songID
		r.registry.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.storageWriter.MarkSongPlayed(ctx, id); err != nil {
				r.logger.Warn().Err(err).Str(applog.FieldRoomID, r.id).Str(applog.FieldSongID, id).Msg("mark song played failed")
			}
		})
	}
}

// Join registers or updates the Device and attaches the socket. Rejoin
// with a previously known deviceId replaces the socket binding without
// dropping the Device.
func (r *Room) Join(deviceID, name string, role domain.DeviceRole, sock Socket) {
	r.mu.Lock()

	dev, existed := r.devices[deviceID]
	if !existed {
		dev = &domain.Device{ID: deviceID}
		r.devices[deviceID] = dev
	}
	dev.Name = normalizeDisplayName(name)
	dev.Role = role
	if dev.Mode == "" {
		dev.Mode = domain.ModeDefault
	}
	dev.LastSeen = time.Now()
	r.sockets[deviceID] = sock
	r.emptySince = nil
	r.invalidateGrace(deviceID)

	snapshotSockets := r.cloneSockets()
	joinAck, _ := json.Marshal(JoinAckFrame{Type: "joinAck", RoomID: r.id, DeviceID: deviceID, ProtocolVersion: ProtocolVersion})
	state := r.buildStateFrame()
	queueFrame, _ := json.Marshal(QueueFrame{Type: "queue", Songs: r.queue})

	r.mu.Unlock()

	metrics.SetDevicesActive(r.id, len(snapshotSockets))
	sock.Send(joinAck)
	sock.Send(state)
	sock.Send(queueFrame)
}

// Leave detaches the socket; the Device is retained for Config.GraceInterval
// so brief reconnects do not perturb the roster.
func (r *Room) Leave(deviceID string) {
	r.mu.Lock()
	delete(r.sockets, deviceID)
	if len(r.devices) > 0 {
		if _, ok := r.devices[deviceID]; ok && len(r.sockets) == 0 {
			now := time.Now()
			r.emptySince = &now
		}
	}
	r.deviceGraceGen[deviceID]++
	gen := r.deviceGraceGen[deviceID]
	grace := r.cfg.GraceInterval
	r.mu.Unlock()

	metrics.IncDeviceLeave("socket_closed")

	if grace <= 0 {
		return
	}
	r.registry.Go(func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		<-timer.C
		r.expireDeviceGrace(deviceID, gen)
	})
}

func (r *Room) expireDeviceGrace(deviceID string, gen int) {
	r.mu.Lock()
	if r.deviceGraceGen[deviceID] != gen {
		r.mu.Unlock() // a reconnect happened, this timer is stale
		return
	}
	if _, stillBound := r.sockets[deviceID]; stillBound {
		r.mu.Unlock()
		return
	}
	delete(r.devices, deviceID)
	delete(r.deviceGraceGen, deviceID)
	if len(r.devices) == 0 && r.emptySince == nil {
		now := time.Now()
		r.emptySince = &now
	}
	snapshotSockets := r.cloneSockets()
	state := r.buildStateFrame()
	r.mu.Unlock()

	for _, s := range snapshotSockets {
		s.Send(state)
	}
}

func (r *Room) invalidateGrace(deviceID string) {
	r.deviceGraceGen[deviceID]++
}

// cloneSockets returns a snapshot of currently bound sockets. Must be
// called with r.mu held.
func (r *Room) cloneSockets() map[string]Socket {
	out := make(map[string]Socket, len(r.sockets))
	for k, v := range r.sockets {
		out[k] = v
	}
	return out
}

// authoritativePlayerID returns the deviceId of the Device designated
// authoritative for playback-state reporting: among Devices with role
// player, the one with the smallest id lexicographically. Must be called
// with r.mu held.
func (r *Room) authoritativePlayerID() string {
	best := ""
	for id, d := range r.devices {
		if d.Role != domain.RolePlayer {
			continue
		}
		if best == "" || id < best {
			best = id
		}
	}
	return best
}

// playerSockets returns the bound sockets of every Device with role
// player. Must be called with r.mu held.
func (r *Room) playerSockets() []Socket {
	var out []Socket
	for id, sock := range r.sockets {
		if d, ok := r.devices[id]; ok && d.Role == domain.RolePlayer {
			out = append(out, sock)
		}
	}
	return out
}

// Info is the wire-safe summary of a Room's identity and size, used by
// the Edge's room-listing endpoint.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlaylistKey string `json:"playlistKey"`
	DeviceCount int    `json:"deviceCount"`
}

// Info returns a wire-safe summary of this Room's identity and size.
func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Info{ID: r.id, Name: r.name, PlaylistKey: r.playlistKey, DeviceCount: len(r.devices)}
}

// Snapshot is the wire-safe projection of a Room's current playback state,
// used by the Edge's status-bar endpoint.
type Snapshot struct {
	Playback    domain.Playback
	CurrentSong *domain.Song
	Devices     []DeviceView
}

// Snapshot returns the Room's current playback/device state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]DeviceView, 0, len(r.devices))
	for _, d := range r.devices {
		views = append(views, newDeviceView(d))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	var current *domain.Song
	if r.playback.CurrentSongID != "" {
		for i := range r.queue {
			if r.queue[i].ID == r.playback.CurrentSongID {
				cp := r.queue[i]
				current = &cp
				break
			}
		}
	}

	return Snapshot{Playback: r.playback, CurrentSong: current, Devices: views}
}

// buildStateFrame marshals the current playback/device snapshot. Must be
// called with r.mu held.
func (r *Room) buildStateFrame() []byte {
	views := make([]DeviceView, 0, len(r.devices))
	for _, d := range r.devices {
		views = append(views, newDeviceView(d))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	var current *domain.Song
	if r.playback.CurrentSongID != "" {
		for i := range r.queue {
			if r.queue[i].ID == r.playback.CurrentSongID {
				current = &r.queue[i]
				break
			}
		}
	}

	payload, _ := json.Marshal(StateFrame{
		Type:            "state",
		Playback:        r.playback,
		CurrentSong:     current,
		Devices:         views,
		ProtocolVersion: ProtocolVersion,
	})
	return payload
}
