// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sink delivers execution patches to observers.
//
// The executor emits every patch it applies to the live document as an
// Envelope. Envelopes within a run carry a strictly increasing sequence
// number; observers that apply them in sequence order hold an exact
// replica of the document.
package sink

import (
	"context"
	"time"

	"github.com/AleutianAI/williwaw/services/engine/patch"
)

// Envelope is one patch as delivered to observers.
type Envelope struct {
	// RunID identifies the run that produced the patch.
	RunID string `json:"runId"`

	// Seq is the patch's position within the run, starting at 1.
	Seq uint64 `json:"seq"`

	// TimeMilli is the Unix timestamp in milliseconds at emission.
	TimeMilli int64 `json:"timeMilli"`

	// Patch is the applied patch. Never empty.
	Patch *patch.Patch `json:"patch"`
}

// NewEnvelope stamps a patch for delivery.
func NewEnvelope(runID string, seq uint64, p *patch.Patch) Envelope {
	return Envelope{
		RunID:     runID,
		Seq:       seq,
		TimeMilli: time.Now().UnixMilli(),
		Patch:     p,
	}
}

// Sink receives patch envelopes in emission order.
//
// Send is called serially by the executor; implementations do not need
// internal ordering but must not block indefinitely, since the executor
// waits for Send between stages.
type Sink interface {
	Send(ctx context.Context, env Envelope) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Send(ctx context.Context, env Envelope) error { return nil }
func (Nop) Close() error                                 { return nil }

// Channel forwards envelopes to a Go channel, for tests and in-process
// observers. Send drops the envelope with an error when the channel is
// full rather than stalling the run.
type Channel struct {
	C chan Envelope
}

// NewChannel returns a channel sink with the given buffer size.
func NewChannel(buffer int) *Channel {
	return &Channel{C: make(chan Envelope, buffer)}
}

func (s *Channel) Send(ctx context.Context, env Envelope) error {
	select {
	case s.C <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Channel) Close() error {
	close(s.C)
	return nil
}

// Multi fans out to several sinks. The first error is returned but
// every sink still receives the envelope.
type Multi struct {
	sinks []Sink
}

// NewMulti combines sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Send(ctx context.Context, env Envelope) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Send(ctx, env); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Multi) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
