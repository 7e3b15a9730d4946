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
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a turn could not take the session lock
// within the bounded wait. The caller should surface a busy reply rather
// than queue unboundedly.
var ErrLockTimeout = errors.New("session lock wait timed out")

// lockTable hands out one single-slot lock per session id.
//
// A slot is a buffered channel of capacity one: sending acquires, receiving
// releases. Waiters block in select with both the context and a bounded
// timer, so a stuck turn cannot strand later webhooks forever.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

func newLockTable(wait time.Duration) *lockTable {
	return &lockTable{
		slots: make(map[string]chan struct{}),
		wait:  wait,
	}
}

func (t *lockTable) slot(id string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[id]
	if !ok {
		s = make(chan struct{}, 1)
		t.slots[id] = s
	}
	return s
}

// acquire blocks until the slot is free, the context ends, or the bounded
// wait elapses. The returned release function is idempotent.
func (t *lockTable) acquire(ctx context.Context, id string) (func(), error) {
	s := t.slot(id)

	timer := time.NewTimer(t.wait)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() { <-s })
		}
		return release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrLockTimeout
	}
}
