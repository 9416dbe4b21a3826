// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Room metrics
	roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "infinitune_rooms_active",
		Help: "Number of rooms currently held by the roster",
	})

	roomsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "infinitune_rooms_created_total",
		Help: "Total number of rooms created",
	})

	roomsReapedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infinitune_rooms_reaped_total",
		Help: "Total number of rooms garbage collected by reason",
	}, []string{"reason"}) // reason=empty_grace_expired|explicit_delete

	devicesActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "infinitune_devices_active",
		Help: "Number of devices currently joined, per room",
	}, []string{"room_id"})

	deviceJoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infinitune_device_joins_total",
		Help: "Total number of device join attempts by outcome",
	}, []string{"outcome"}) // outcome=accepted|rejected_budget|rejected_auth

	deviceLeavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infinitune_device_leaves_total",
		Help: "Total number of device departures by reason",
	}, []string{"reason"}) // reason=explicit|socket_closed|evicted

	joinLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "infinitune_join_latency_seconds",
		Help:    "Time from accepted connection to joinAck being sent",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	// WebSocket frame metrics
	wsFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infinitune_ws_frames_total",
		Help: "Total number of WebSocket frames by direction and type",
	}, []string{"direction", "type"}) // direction=in|out

	wsFramesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infinitune_ws_frames_rejected_total",
		Help: "Total number of inbound WebSocket frames rejected by validation",
	}, []string{"reason"})

	wsSendQueueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "infinitune_ws_send_queue_dropped_total",
		Help: "Total number of outbound frames dropped because a device's send queue was full",
	})

	broadcastLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "infinitune_broadcast_latency_seconds",
		Help:    "Time to fan an authoritative state update out to all devices in a room",
		Buckets: prometheus.DefBuckets,
	})

	// Sync bridge metrics
	busMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infinitune_bus_messages_total",
		Help: "Total number of invalidation bus messages consumed by outcome",
	}, []string{"outcome"}) // outcome=applied|ignored_unknown_room|storage_error

	busReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "infinitune_bus_reconnects_total",
		Help: "Total number of invalidation bus reconnect attempts",
	})

	playlistCacheResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infinitune_playlist_cache_results_total",
		Help: "Playlist key to id cache lookups by result",
	}, []string{"result"}) // result=hit|miss

	// Storage metrics
	storageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infinitune_storage_errors_total",
		Help: "Total number of storage operation failures by operation",
	}, []string{"operation"})
)

// SetRoomsActive records the current number of rooms held by the roster.
func SetRoomsActive(n int) { roomsActive.Set(float64(n)) }

// IncRoomsCreated increments the rooms-created counter.
func IncRoomsCreated() { roomsCreatedTotal.Inc() }

// IncRoomsReaped increments the rooms-reaped counter for the given reason.
func IncRoomsReaped(reason string) { roomsReapedTotal.WithLabelValues(reason).Inc() }

// SetDevicesActive records the current device count for a room.
func SetDevicesActive(roomID string, n int) {
	devicesActive.WithLabelValues(roomID).Set(float64(n))
}

// DeleteDevicesActive removes the per-room device gauge, called when a room is reaped.
func DeleteDevicesActive(roomID string) {
	devicesActive.DeleteLabelValues(roomID)
}

// IncDeviceJoin increments the device join counter by outcome.
func IncDeviceJoin(outcome string) { deviceJoinsTotal.WithLabelValues(outcome).Inc() }

// IncDeviceLeave increments the device leave counter by reason.
func IncDeviceLeave(reason string) { deviceLeavesTotal.WithLabelValues(reason).Inc() }

// ObserveJoinLatency records the time to send a joinAck after connection accept.
func ObserveJoinLatency(seconds float64) { joinLatencySeconds.Observe(seconds) }

// IncWSFrame increments the frame counter for a direction and frame type.
func IncWSFrame(direction, frameType string) { wsFramesTotal.WithLabelValues(direction, frameType).Inc() }

// IncWSFrameRejected increments the rejected-frame counter by reason.
func IncWSFrameRejected(reason string) { wsFramesRejectedTotal.WithLabelValues(reason).Inc() }

// IncWSSendQueueDropped increments the dropped-outbound-frame counter.
func IncWSSendQueueDropped() { wsSendQueueDroppedTotal.Inc() }

// ObserveBroadcastLatency records the time to fan a state update out to a room.
func ObserveBroadcastLatency(seconds float64) { broadcastLatencySeconds.Observe(seconds) }

// IncBusMessage increments the bus message counter by outcome.
func IncBusMessage(outcome string) { busMessagesTotal.WithLabelValues(outcome).Inc() }

// IncBusReconnect increments the bus reconnect counter.
func IncBusReconnect() { busReconnectsTotal.Inc() }

// IncPlaylistCacheResult increments the playlist cache lookup counter by result.
func IncPlaylistCacheResult(result string) { playlistCacheResultsTotal.WithLabelValues(result).Inc() }

// IncStorageError increments the storage error counter by operation.
func IncStorageError(operation string) { storageErrorsTotal.WithLabelValues(operation).Inc() }
