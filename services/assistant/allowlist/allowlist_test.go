// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package allowlist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeList(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowlist.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestOpen_AllowsEveryone verifies the unconfigured list is open.
func TestOpen_AllowsEveryone(t *testing.T) {
	l := Open()
	assert.True(t, l.Allowed("5215512345678@s.whatsapp.net"))
	assert.True(t, l.Allowed("anything"))
}

// TestLoad_FiltersByNumber verifies JID numbers are matched against the list
// ignoring the domain part.
func TestLoad_FiltersByNumber(t *testing.T) {
	l, err := Load(writeList(t, `["5215512345678", " 5219998887766 "]`))
	require.NoError(t, err)
	defer l.Close()

	assert.True(t, l.Allowed("5215512345678@s.whatsapp.net"))
	assert.True(t, l.Allowed("5219998887766@s.whatsapp.net"), "entries are trimmed")
	assert.False(t, l.Allowed("5210000000000@s.whatsapp.net"))
	assert.True(t, l.Allowed("5215512345678"), "bare numbers match too")
}

// TestLoad_BadFile verifies unreadable or malformed files fail loading.
func TestLoad_BadFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeList(t, `{"not": "an array"}`))
	assert.Error(t, err)
}

// TestReload_PicksUpEdits verifies a file edit takes effect without restart.
func TestReload_PicksUpEdits(t *testing.T) {
	path := writeList(t, `["111"]`)
	l, err := Load(path)
	require.NoError(t, err)
	defer l.Close()

	require.True(t, l.Allowed("111@s.whatsapp.net"))
	require.False(t, l.Allowed("222@s.whatsapp.net"))

	require.NoError(t, os.WriteFile(path, []byte(`["222"]`), 0644))

	// The watcher delivers asynchronously; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.Allowed("222@s.whatsapp.net") {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.True(t, l.Allowed("222@s.whatsapp.net"))
	assert.False(t, l.Allowed("111@s.whatsapp.net"))
}

// TestReload_BadEditKeepsOldList verifies a broken edit does not wipe the
// working list.
func TestReload_BadEditKeepsOldList(t *testing.T) {
	path := writeList(t, `["111"]`)
	l, err := Load(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0644))
	time.Sleep(100 * time.Millisecond)

	assert.True(t, l.Allowed("111@s.whatsapp.net"), "previous list should survive")
}
