// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/v1/rooms", "http://localhost:8080/api/v1/rooms", 200)

	if len(attrs) != 4 {
		t.Fatalf("Expected 4 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, HTTPMethodKey, "GET")
	verifyAttribute(t, attrs, HTTPRouteKey, "/api/v1/rooms")
	verifyAttribute(t, attrs, HTTPURLKey, "http://localhost:8080/api/v1/rooms")
	verifyIntAttribute(t, attrs, HTTPStatusCodeKey, 200)
}

func TestRoomAttributes(t *testing.T) {
	tests := []struct {
		name        string
		roomID      string
		playlistKey string
		deviceCount int
		wantLen     int
	}{
		{name: "all fields", roomID: "room-1", playlistKey: "pk-1", deviceCount: 3, wantLen: 3},
		{name: "no playlist key", roomID: "room-1", playlistKey: "", deviceCount: 0, wantLen: 2},
		{name: "empty room id", roomID: "", playlistKey: "", deviceCount: 0, wantLen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := RoomAttributes(tt.roomID, tt.playlistKey, tt.deviceCount)

			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}

			if tt.roomID != "" {
				verifyAttribute(t, attrs, RoomIDKey, tt.roomID)
			}
			if tt.playlistKey != "" {
				verifyAttribute(t, attrs, RoomPlaylistKey, tt.playlistKey)
			}
			verifyIntAttribute(t, attrs, RoomDeviceCount, tt.deviceCount)
		})
	}
}

func TestWSFrameAttributes(t *testing.T) {
	attrs := WSFrameAttributes("room-1", "device-1", "command", "inbound")

	if len(attrs) != 4 {
		t.Fatalf("Expected 4 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, RoomIDKey, "room-1")
	verifyAttribute(t, attrs, DeviceIDKey, "device-1")
	verifyAttribute(t, attrs, WSFrameTypeKey, "command")
	verifyAttribute(t, attrs, WSDirectionKey, "inbound")
}

func TestBusAttributes(t *testing.T) {
	attrs := BusAttributes("infinitune.events", "playlist.updated")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, BusExchangeKey, "infinitune.events")
	verifyAttribute(t, attrs, BusRoutingKey, "playlist.updated")
}

func TestErrorAttributes(t *testing.T) {
	err := errors.New("test error")
	attrs := ErrorAttributes(err, "network_error")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "network_error")
}

func TestAttributeKeys_Consistency(t *testing.T) {
	keys := []string{
		HTTPMethodKey,
		HTTPStatusCodeKey,
		HTTPRouteKey,
		RoomIDKey,
		WSFrameTypeKey,
		BusExchangeKey,
		ErrorKey,
	}

	for _, key := range keys {
		if key == "" {
			t.Errorf("Expected non-empty attribute key")
		}
	}
}

// Helper functions for attribute verification

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
