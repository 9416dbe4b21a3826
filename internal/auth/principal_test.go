// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package auth

import "testing"

func TestNewPrincipal(t *testing.T) {
	p := NewPrincipal("device-1", SourceDeviceToken)
	if p.ID != "device-1" {
		t.Fatalf("ID = %q, want %q", p.ID, "device-1")
	}
	if p.Source != SourceDeviceToken {
		t.Fatalf("Source = %q, want %q", p.Source, SourceDeviceToken)
	}
}
