// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub broadcasts patch envelopes to connected websocket clients.
//
// A slow client is disconnected rather than allowed to stall the run:
// each client has a buffered outbox, and a full outbox drops the
// connection.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]bool
	closed  bool
}

type hubClient struct {
	conn *websocket.Conn
	out  chan Envelope
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*hubClient]bool)}
}

// Attach registers a websocket connection and starts its writer. The
// hub owns the connection from this point and closes it on detach.
func (h *Hub) Attach(conn *websocket.Conn) {
	c := &hubClient{conn: conn, out: make(chan Envelope, 256)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = true
	h.mu.Unlock()

	slog.Info("patch observer connected", "remote", conn.RemoteAddr().String())
	go h.writeLoop(c)
}

func (h *Hub) writeLoop(c *hubClient) {
	defer func() {
		_ = c.conn.Close()
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()
	for env := range c.out {
		if err := c.conn.WriteJSON(env); err != nil {
			slog.Info("patch observer disconnected", "error", err.Error())
			return
		}
	}
}

// ClientCount returns the number of attached observers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Send queues the envelope on every client. Clients whose outbox is
// full are dropped.
func (h *Hub) Send(ctx context.Context, env Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.out <- env:
		default:
			slog.Warn("dropping slow patch observer", "remote", c.conn.RemoteAddr().String())
			close(c.out)
			delete(h.clients, c)
		}
	}
	return nil
}

// Close detaches every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		close(c.out)
		delete(h.clients, c)
	}
	return nil
}
