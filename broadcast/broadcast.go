// Copyright (C) 2025-2026 Cliprally, Inc.
// This file is part of cliprally
//
// cliprally is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// cliprally is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with cliprally.  If not, see <https://www.gnu.org/licenses/>.

// Package broadcast pushes vote-update events to connected viewers over
// websockets. Publishing is fire and forget: a slow or dead client drops
// events rather than stalling the vote path, and publish failures are
// observability only.
package broadcast

import (
	"net/http"
	"time"

	"github.com/algorand/go-deadlock"
	"github.com/gorilla/websocket"

	"github.com/cliprally/cliprally/logging"
	"github.com/cliprally/cliprally/vote"
)

const (
	writeWait      = 5 * time.Second
	sendQueueDepth = 16
)

// Update is the vote-update event sent to viewers.
type Update struct {
	Type          string `json:"type"`
	ItemID        string `json:"itemId"`
	NewCount      uint64 `json:"newCount"`
	WeightedScore uint64 `json:"weightedScore"`
}

const updateType = "vote-update"

type client struct {
	conn *websocket.Conn
	send chan Update
}

// Hub tracks connected viewers and fans updates out to them.
type Hub struct {
	mu      deadlock.Mutex
	clients map[*client]struct{}
	closed  bool

	upgrader websocket.Upgrader
	log      logging.Logger
}

// NewHub returns an empty hub.
func NewHub(log logging.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// viewers connect from the web app on another origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP upgrades the request to a websocket and registers the viewer
// until the connection drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debugf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan Update, sendQueueDepth)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debugf("viewer connected (%d total)", n)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound frames; it exists to detect the close.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for update := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(update); err != nil {
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// Publish fans the item's new totals out to every connected viewer.
// Viewers whose queues are full miss this update; the next one carries
// the fresher totals anyway.
func (h *Hub) Publish(itemID string, totals vote.Totals) {
	update := Update{
		Type:          updateType,
		ItemID:        itemID,
		NewCount:      totals.Count,
		WeightedScore: totals.WeightedScore,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- update:
		default:
		}
	}
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all viewers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
