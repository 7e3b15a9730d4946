// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package allowlist filters inbound senders against a JSON number list.
//
// The list file is a JSON array of phone numbers ("5215512345678"). When no
// file is configured the list is open and every sender is accepted. The file
// is watched with fsnotify so edits take effect without a restart.
package allowlist

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// List is a reloadable sender allow-list.
//
// # Thread Safety
//
// Safe for concurrent use; reloads swap the set under a write lock.
type List struct {
	mu      sync.RWMutex
	numbers map[string]bool
	open    bool
	path    string
	watcher *fsnotify.Watcher
}

// Open creates an always-allow list, used when no file is configured.
func Open() *List {
	return &List{open: true}
}

// Load reads the allow-list file and starts watching it for changes.
// Call Close when done to stop the watcher.
func Load(path string) (*List, error) {
	l := &List{path: path}
	if err := l.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("Failed to create allow-list watcher, reloads disabled", "error", err)
		return l, nil
	}
	if err := watcher.Add(path); err != nil {
		slog.Warn("Failed to watch allow-list file, reloads disabled", "path", path, "error", err)
		_ = watcher.Close()
		return l, nil
	}
	l.watcher = watcher
	go l.watch()

	return l, nil
}

func (l *List) reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read allow-list %s: %w", l.path, err)
	}

	var numbers []string
	if err := json.Unmarshal(data, &numbers); err != nil {
		return fmt.Errorf("parse allow-list %s: %w", l.path, err)
	}

	set := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		set[strings.TrimSpace(n)] = true
	}

	l.mu.Lock()
	l.numbers = set
	l.open = false
	l.mu.Unlock()

	slog.Info("Loaded sender allow-list", "path", l.path, "entries", len(set))
	return nil
}

func (l *List) watch() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := l.reload(); err != nil {
					slog.Warn("Allow-list reload failed, keeping the previous list", "error", err)
				}
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Allow-list watcher error", "error", err)
		}
	}
}

// Allowed reports whether the sender JID may use the assistant. The number
// is the part of the JID before "@".
func (l *List) Allowed(jid string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.open {
		return true
	}
	number := jid
	if at := strings.Index(jid, "@"); at >= 0 {
		number = jid[:at]
	}
	return l.numbers[number]
}

// Close stops the file watcher.
func (l *List) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
