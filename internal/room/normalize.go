// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package room

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeDisplayName applies NFC normalization to a client-supplied
// device name. Two visually identical names built from different
// combining-character sequences should compare and display equal; left
// unnormalized, one device could present as another to a human glancing
// at the device list.
func normalizeDisplayName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}
