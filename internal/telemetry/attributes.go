// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for the room coordinator.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Room attributes
	RoomIDKey       = "room.id"
	RoomDeviceCount = "room.device_count"
	RoomPlaylistKey = "room.playlist_key"

	// Device / WS attributes
	DeviceIDKey    = "device.id"
	WSFrameTypeKey = "ws.frame_type"
	WSDirectionKey = "ws.direction"

	// Bus attributes
	BusExchangeKey = "bus.exchange"
	BusRoutingKey  = "bus.routing_key"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// RoomAttributes creates room-scoped span attributes.
func RoomAttributes(roomID, playlistKey string, deviceCount int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if roomID != "" {
		attrs = append(attrs, attribute.String(RoomIDKey, roomID))
	}
	if playlistKey != "" {
		attrs = append(attrs, attribute.String(RoomPlaylistKey, playlistKey))
	}
	attrs = append(attrs, attribute.Int(RoomDeviceCount, deviceCount))
	return attrs
}

// WSFrameAttributes creates span attributes for a single WebSocket frame.
func WSFrameAttributes(roomID, deviceID, frameType, direction string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RoomIDKey, roomID),
		attribute.String(DeviceIDKey, deviceID),
		attribute.String(WSFrameTypeKey, frameType),
		attribute.String(WSDirectionKey, direction),
	}
}

// BusAttributes creates span attributes for an invalidation bus message.
func BusAttributes(exchange, routingKey string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(BusExchangeKey, exchange),
		attribute.String(BusRoutingKey, routingKey),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
