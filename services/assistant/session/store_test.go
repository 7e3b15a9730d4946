// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestGet_CreatesIfAbsent verifies an unknown session id yields a fresh,
// persisted state.
func TestGet_CreatesIfAbsent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	state, err := store.Get(ctx, "5215512345678@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "5215512345678@s.whatsapp.net", state.SessionID)
	assert.Empty(t, state.Messages)
	assert.NotZero(t, state.CreatedAt)

	// Second read returns the same creation time, proving it was persisted.
	again, err := store.Get(ctx, "5215512345678@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, state.CreatedAt, again.CreatedAt)
}

// TestAppend_ExtendsTranscript verifies appends accumulate in order.
func TestAppend_ExtendsTranscript(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1",
		datatypes.NewUserMessage("hola"),
		datatypes.NewAssistantMessage("¡hola!")))
	require.NoError(t, store.Append(ctx, "s1",
		datatypes.NewUserMessage("¿mi vuelo?")))

	state, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, state.Messages, 3)
	assert.Equal(t, "hola", state.Messages[0].Content)
	assert.Equal(t, "¿mi vuelo?", state.Messages[2].Content)
}

// TestSetDownloads_ReplacesWholesale verifies each turn's download list
// overwrites the previous one.
func TestSetDownloads_ReplacesWholesale(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetDownloads(ctx, "s1", []datatypes.DownloadedFile{
		{Name: "a.pdf", LocalPath: "/tmp/a.pdf"},
		{Name: "b.pdf", LocalPath: "/tmp/b.pdf"},
	}))
	require.NoError(t, store.SetDownloads(ctx, "s1", []datatypes.DownloadedFile{
		{Name: "c.pdf", LocalPath: "/tmp/c.pdf"},
	}))

	state, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, state.DownloadedFiles, 1)
	assert.Equal(t, "c.pdf", state.DownloadedFiles[0].Name)
}

// TestListAndDelete verifies the admin view and idempotent delete.
func TestListAndDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "s2", datatypes.NewUserMessage("hola")))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	counts := map[string]int{}
	for _, s := range sessions {
		counts[s.ID] = s.MessageCount
	}
	assert.Equal(t, 0, counts["s1"])
	assert.Equal(t, 1, counts["s2"])

	require.NoError(t, store.Delete(ctx, "s1"))
	require.NoError(t, store.Delete(ctx, "s1"), "deleting twice is fine")

	sessions, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

// TestAcquire_SerializesSameSession verifies two turns on one session run
// one after the other.
func TestAcquire_SerializesSameSession(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	release1, err := store.Acquire(ctx, "s1")
	require.NoError(t, err)

	var acquired bool
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		release2, err := store.Acquire(ctx, "s1")
		if err != nil {
			return
		}
		mu.Lock()
		acquired = true
		mu.Unlock()
		release2()
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.False(t, acquired, "second acquire should wait for the first release")
	mu.Unlock()

	release1()
	wg.Wait()
	mu.Lock()
	assert.True(t, acquired)
	mu.Unlock()
}

// TestAcquire_DistinctSessionsIndependent verifies distinct sessions do not
// contend.
func TestAcquire_DistinctSessionsIndependent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	release1, err := store.Acquire(ctx, "s1")
	require.NoError(t, err)
	defer release1()

	release2, err := store.Acquire(ctx, "s2")
	require.NoError(t, err)
	release2()
}

// TestAcquire_BoundedWait verifies a held lock times out the waiter with
// ErrLockTimeout.
func TestAcquire_BoundedWait(t *testing.T) {
	cfg := InMemoryConfig()
	cfg.LockWait = 30 * time.Millisecond
	store, err := Open(cfg)
	require.NoError(t, err)
	defer store.Close()

	release, err := store.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer release()

	_, err = store.Acquire(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrLockTimeout)
}

// TestAcquire_ContextCancel verifies a cancelled context unblocks the waiter.
func TestAcquire_ContextCancel(t *testing.T) {
	store := newStore(t)

	release, err := store.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = store.Acquire(ctx, "s1")
	assert.ErrorIs(t, err, context.Canceled)
}

// TestRelease_Idempotent verifies double release does not free the lock for
// a third party twice.
func TestRelease_Idempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	release, err := store.Acquire(ctx, "s1")
	require.NoError(t, err)
	release()
	release()

	// The slot must be free exactly once.
	again, err := store.Acquire(ctx, "s1")
	require.NoError(t, err)
	again()
}
