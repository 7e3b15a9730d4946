// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseLevel covers the level strings and the fallback.
func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

// TestNew_FileLogging verifies the dated log file is created and written.
func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "cli"})
	logger.Info("hello", "k", "v")
	require.NoError(t, logger.Close())

	expected := filepath.Join(dir,
		"cli_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(expected)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), `"k":"v"`)
}

// TestNew_BadDirDegrades verifies an unusable log dir falls back to stderr
// instead of failing construction.
func TestNew_BadDirDegrades(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	logger := New(Config{LogDir: filepath.Join(file, "logs"), Service: "cli"})
	require.NotNil(t, logger)
	logger.Info("still works")
	assert.NoError(t, logger.Close())
}

// TestClose_Idempotent verifies double close is safe.
func TestClose_Idempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Service: "cli"})
	require.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())

	assert.NoError(t, Default().Close(), "stderr-only logger has nothing to close")
}

// TestWith_AddsAttributes verifies derived loggers keep working.
func TestWith_AddsAttributes(t *testing.T) {
	logger := Default()
	child := logger.With("session", "s1")
	require.NotNil(t, child)
	child.Info("attributed")
	assert.NotNil(t, child.Slog())
}
