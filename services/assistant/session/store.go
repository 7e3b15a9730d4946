// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session persists per-session conversation state in BadgerDB.
//
// One badger value per session, JSON-encoded ConversationState. Reads and
// writes go through badger transactions; cross-turn serialization for the
// same session goes through the lock table (see locks.go), so concurrent
// webhooks for one sender queue up while distinct senders run in parallel.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/concierge/services/assistant/datatypes"
	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces session values inside the shared badger instance.
const keyPrefix = "session/"

// Store is the conversation state persistence contract.
//
// Get creates the session if it does not exist yet. SetDownloads replaces
// the previous turn's download list wholesale.
type Store interface {
	Get(ctx context.Context, id string) (*datatypes.ConversationState, error)
	Append(ctx context.Context, id string, msgs ...datatypes.Message) error
	SetDownloads(ctx context.Context, id string, files []datatypes.DownloadedFile) error
	List(ctx context.Context) ([]datatypes.Session, error)
	Delete(ctx context.Context, id string) error

	// Acquire blocks until the per-session turn lock is held or the bounded
	// wait elapses. The returned release function must always be called.
	Acquire(ctx context.Context, id string) (release func(), err error)

	Close() error
}

// Config holds configuration for the badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Used by tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// LockWait bounds how long Acquire waits for a busy session.
	LockWait time.Duration

	// Logger is passed to BadgerDB. If nil, badger's logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable writes and a 90 second
// bounded lock wait.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		LockWait:   90 * time.Second,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O and a short
// lock wait so lock-timeout tests finish quickly.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
		LockWait: 90 * time.Second,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore implements Store over a BadgerDB instance.
type BadgerStore struct {
	db    *badger.DB
	locks *lockTable
}

// Open creates and opens a badger-backed store with the given configuration.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent session store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create session store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	wait := cfg.LockWait
	if wait <= 0 {
		wait = 90 * time.Second
	}

	return &BadgerStore{
		db:    db,
		locks: newLockTable(wait),
	}, nil
}

// Get loads the session state, creating and persisting a fresh one when the
// session does not exist yet.
func (s *BadgerStore) Get(ctx context.Context, id string) (*datatypes.ConversationState, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var state *datatypes.ConversationState
	err := s.db.Update(func(txn *badger.Txn) error {
		existing, err := readState(txn, id)
		if err == nil {
			state = existing
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		state = &datatypes.ConversationState{
			SessionID: id,
			CreatedAt: time.Now().UnixMilli(),
			Messages:  []datatypes.Message{},
		}
		return writeState(txn, state)
	})
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return state, nil
}

// Append adds messages to the session transcript.
func (s *BadgerStore) Append(ctx context.Context, id string, msgs ...datatypes.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		state, err := readState(txn, id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			state = &datatypes.ConversationState{
				SessionID: id,
				CreatedAt: time.Now().UnixMilli(),
			}
		} else if err != nil {
			return err
		}
		state.Messages = append(state.Messages, msgs...)
		return writeState(txn, state)
	})
	if err != nil {
		return fmt.Errorf("append to session %s: %w", id, err)
	}
	return nil
}

// SetDownloads replaces the session's downloaded-files list with the files
// from the most recent turn.
func (s *BadgerStore) SetDownloads(ctx context.Context, id string, files []datatypes.DownloadedFile) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		state, err := readState(txn, id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			state = &datatypes.ConversationState{
				SessionID: id,
				CreatedAt: time.Now().UnixMilli(),
			}
		} else if err != nil {
			return err
		}
		state.DownloadedFiles = files
		return writeState(txn, state)
	})
	if err != nil {
		return fmt.Errorf("set downloads for session %s: %w", id, err)
	}
	return nil
}

// List returns the administrative view of all stored sessions.
func (s *BadgerStore) List(ctx context.Context) ([]datatypes.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var sessions []datatypes.Session
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var state datatypes.ConversationState
				if err := json.Unmarshal(val, &state); err != nil {
					slog.Warn("Skipping undecodable session value",
						"key", string(it.Item().Key()), "error", err)
					return nil
				}
				sessions = append(sessions, datatypes.Session{
					ID:           state.SessionID,
					CreatedAt:    state.CreatedAt,
					MessageCount: len(state.Messages),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// Acquire takes the per-session turn lock with the configured bounded wait.
func (s *BadgerStore) Acquire(ctx context.Context, id string) (func(), error) {
	return s.locks.acquire(ctx, id)
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func readState(txn *badger.Txn, id string) (*datatypes.ConversationState, error) {
	item, err := txn.Get([]byte(keyPrefix + id))
	if err != nil {
		return nil, err
	}
	var state datatypes.ConversationState
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &state)
	})
	if err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return &state, nil
}

func writeState(txn *badger.Txn, state *datatypes.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	return txn.Set([]byte(keyPrefix+state.SessionID), data)
}

// SanitizeID normalizes an externally supplied session id (e.g. a WhatsApp
// JID) into a stable key. Badger accepts arbitrary bytes; this exists so log
// lines and admin routes show one canonical form.
func SanitizeID(raw string) string {
	return strings.TrimSpace(raw)
}
