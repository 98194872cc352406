// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists execute digests across sessions.
//
// The document itself carries each node's execute digest, but a
// freshly deserialized document from a source that strips execution
// state would re-run everything. The store is the durable copy: keyed
// by document and node id, hydrated into the document before planning
// and updated after every run.
//
// Backed by BadgerDB for embedded, low-latency local persistence; an
// in-memory configuration exists for tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no digest is stored for the key.
var ErrNotFound = errors.New("store: digest not found")

// DigestStore persists execute digests.
type DigestStore interface {
	// Get returns the stored execute digest for a node, or ErrNotFound.
	Get(ctx context.Context, docID, nodeID string) (string, error)

	// Put stores the execute digest for a node.
	Put(ctx context.Context, docID, nodeID, digest string) error

	// Delete removes the stored digest, forcing re-execution on the
	// next run that consults the store.
	Delete(ctx context.Context, docID, nodeID string) error

	// Close releases the store.
	Close() error
}

// Config holds configuration for the Badger-backed store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory
	// is true.
	Path string

	// InMemory disables disk persistence. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for the given path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Badger is the BadgerDB-backed digest store. Safe for concurrent use.
type Badger struct {
	db *badger.DB
}

// Open opens the store, creating the directory if needed.
func Open(cfg Config) (*Badger, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("store: path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
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
		return nil, fmt.Errorf("open digest store: %w", err)
	}
	return &Badger{db: db}, nil
}

func key(docID, nodeID string) []byte {
	return []byte("digest/" + docID + "/" + nodeID)
}

func (s *Badger) Get(ctx context.Context, docID, nodeID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var digest string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(docID, nodeID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			digest = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, docID, nodeID)
	}
	if err != nil {
		return "", fmt.Errorf("get digest %s/%s: %w", docID, nodeID, err)
	}
	return digest, nil
}

func (s *Badger) Put(ctx context.Context, docID, nodeID, digest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(docID, nodeID), []byte(digest))
	})
	if err != nil {
		return fmt.Errorf("put digest %s/%s: %w", docID, nodeID, err)
	}
	return nil
}

func (s *Badger) Delete(ctx context.Context, docID, nodeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(docID, nodeID))
	})
	if err != nil {
		return fmt.Errorf("delete digest %s/%s: %w", docID, nodeID, err)
	}
	return nil
}

func (s *Badger) Close() error {
	return s.db.Close()
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
