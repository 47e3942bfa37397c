// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/labelops/services/console/datatypes"
	"github.com/AleutianAI/labelops/services/labeler/engine"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub broadcasts batch progress and notifications to every connected
// console client. It is the websocket face of the coordinator's
// progress and notification sinks.
//
// # Thread Safety
//
// Safe for concurrent use. Writes to a single connection are
// serialized by the hub mutex; gorilla/websocket does not allow
// concurrent writers.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	logger  *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		logger:  logger.With("component", "console.Hub"),
	}
}

// Publish implements engine.ProgressSink.
func (h *Hub) Publish(p engine.Progress) {
	h.broadcast(datatypes.Event{
		Type:      "progress",
		BatchID:   p.BatchID,
		Processed: p.Processed,
		Total:     p.Total,
		Phase:     string(p.Phase),
	})
}

// Clear implements engine.ProgressSink. The batch id scopes the frame
// so one batch's deferred clear cannot blank another's live display.
func (h *Hub) Clear(batchID string) {
	h.broadcast(datatypes.Event{Type: "clear", BatchID: batchID})
}

// Notify implements engine.Notifier.
func (h *Hub) Notify(message string, severity engine.Severity) {
	h.broadcast(datatypes.Event{
		Type:     "notification",
		Message:  message,
		Severity: string(severity),
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast writes an event to every client, dropping dead connections.
func (h *Hub) broadcast(ev datatypes.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Debug("dropping websocket client", "error", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Handle upgrades the request and keeps the connection registered until
// the client goes away. Clients are listeners only; inbound frames are
// read and discarded to service control messages.
func (h *Hub) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Error("websocket upgrade failed", "error", err)
			return
		}

		h.mu.Lock()
		h.clients[conn] = struct{}{}
		h.mu.Unlock()
		h.logger.Info("websocket client connected")

		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			_ = conn.Close()
			h.logger.Info("websocket client disconnected")
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
