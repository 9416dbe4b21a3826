// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWhitelistFile_MissingPathIsEmpty(t *testing.T) {
	list, err := LoadWhitelistFile("")
	require.NoError(t, err)
	assert.Nil(t, list)
}

func TestLoadWhitelistFile_MissingFileIsEmpty(t *testing.T) {
	list, err := LoadWhitelistFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Nil(t, list)
}

func TestLoadWhitelistFile_ParsesList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whitelist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit_whitelist:\n  - 10.0.0.1\n  - 10.0.0.2\n"), 0o600))

	list, err := LoadWhitelistFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, list)
}

func TestWhitelistWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whitelist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit_whitelist:\n  - 10.0.0.1\n"), 0o600))

	w, err := NewWhitelistWatcher(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1"}, w.Current())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("rate_limit_whitelist:\n  - 10.0.0.1\n  - 10.0.0.2\n"), 0o600))

	require.Eventually(t, func() bool {
		list := w.Current()
		return len(list) == 2
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, w.Current())
}
