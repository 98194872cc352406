// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the engine over HTTP: document execution by POST,
// the live patch stream over a WebSocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AleutianAI/williwaw/pkg/logging"
	"github.com/AleutianAI/williwaw/services/engine/execute"
	"github.com/AleutianAI/williwaw/services/engine/kernel"
	"github.com/AleutianAI/williwaw/services/engine/kernel/calc"
	"github.com/AleutianAI/williwaw/services/engine/schema"
	"github.com/AleutianAI/williwaw/services/engine/sink"
	"github.com/AleutianAI/williwaw/services/engine/store"
)

// ErrServiceClosed is returned for calls made after Close.
var ErrServiceClosed = errors.New("api: service closed")

// ServiceConfig controls the execution service.
type ServiceConfig struct {
	// StorePath is the digest store directory. Empty selects an
	// in-memory store, which forgets digests on restart.
	StorePath string

	// Factories build the kernels each session gets. Defaults to the
	// built-in calc kernel.
	Factories []kernel.Factory

	// Logger receives the service's request and session logs. Defaults
	// to logging.Default.
	Logger *logging.Logger
}

// DefaultServiceConfig returns a config with an in-memory digest store
// and the calc kernel.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{}
}

// Service executes documents and fans applied patches out to WebSocket
// observers. Each document id gets its own session holding the kernel
// scope, so values persist between runs of the same document.
type Service struct {
	cfg   ServiceConfig
	hub   *sink.Hub
	store store.DigestStore
	log   *logging.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// session serializes runs for one document and keeps its kernels warm.
type session struct {
	mu   sync.Mutex
	pool *kernel.Pool
	exec *execute.Executor
}

// NewService opens the digest store and prepares the patch hub.
func NewService(cfg ServiceConfig) (*Service, error) {
	storeCfg := store.InMemoryConfig()
	if cfg.StorePath != "" {
		storeCfg = store.DefaultConfig(cfg.StorePath)
	}
	st, err := store.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("api: open digest store: %w", err)
	}
	if len(cfg.Factories) == 0 {
		cfg.Factories = []kernel.Factory{calc.NewFactory()}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Service{
		cfg:      cfg,
		hub:      sink.NewHub(),
		store:    st,
		log:      log,
		sessions: map[string]*session{},
	}, nil
}

// Hub returns the patch hub observers attach to.
func (s *Service) Hub() *sink.Hub { return s.hub }

// SessionCount returns the number of live document sessions.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Execute runs the document in its session. Concurrent calls for the
// same document id serialize; different documents run independently.
func (s *Service) Execute(ctx context.Context, docID string, doc *schema.Article, from []string) (*execute.RunResult, error) {
	if docID == "" {
		docID = doc.ID
	}
	sess, err := s.session(ctx, docID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.exec.Run(ctx, doc, execute.Options{From: from, DocID: docID})
}

func (s *Service) session(ctx context.Context, docID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}
	if sess, ok := s.sessions[docID]; ok {
		return sess, nil
	}

	pool, err := kernel.NewPool(ctx, s.cfg.Factories...)
	if err != nil {
		return nil, fmt.Errorf("api: kernel pool for %q: %w", docID, err)
	}
	sess := &session{
		pool: pool,
		exec: execute.New(pool, execute.WithSink(s.hub), execute.WithStore(s.store)),
	}
	s.sessions[docID] = sess
	s.log.Info("session opened", "doc_id", docID)
	return sess, nil
}

// Close terminates every session's kernels and releases the store and
// the hub. Idempotent.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = map[string]*session{}
	s.mu.Unlock()

	var errs []error
	for docID, sess := range sessions {
		if err := sess.pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session %q: %w", docID, err))
		}
	}
	if err := s.hub.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
