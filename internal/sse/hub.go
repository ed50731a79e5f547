// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package sse streams application status changes to connected users.
package sse

import (
	"context"
	"sync"

	"codeberg.org/kantama/portal/internal/events"
	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/services/applications"
	"github.com/samber/lo"
)

// client is one open stream. The user is the snapshot taken at connect time.
type client struct {
	ch   chan string
	user models.User
}

// Hub fans status events out to the streams of users allowed to see the
// application. A user may hold several streams (tabs, devices).
type Hub struct {
	clients map[int64][]client
	mu      sync.RWMutex
}

// NewHub creates a new SSE hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[int64][]client)}
}

// Register adds a stream for user and returns the channel to read events
// from.
func (h *Hub) Register(user *models.User) chan string {
	ch := make(chan string, 10) // buffered to prevent blocking

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[user.ID] = append(h.clients[user.ID], client{ch: ch, user: *user})
	return ch
}

// Unregister removes and closes a stream. Streams already ended by Close
// are ignored.
func (h *Hub) Unregister(userID int64, ch chan string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[userID]
	if !lo.ContainsBy(clients, func(c client) bool { return c.ch == ch }) {
		return
	}
	h.clients[userID] = lo.Filter(clients, func(c client, _ int) bool {
		return c.ch != ch
	})
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
	close(ch)
}

// Close ends every open stream.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for _, c := range clients {
			close(c.ch)
		}
	}
	clear(h.clients)
}

// SendToUser sends a message to all streams of a user.
func (h *Hub) SendToUser(userID int64, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients[userID] {
		send(c.ch, message)
	}
}

// PublishStatusChanged implements events.Publisher. Each stream receives the
// event when its user can view the application.
func (h *Hub) PublishStatusChanged(_ context.Context, event events.StatusChanged) error {
	message, err := FormatStatusChanged(event)
	if err != nil {
		return err
	}
	app := &models.Application{
		ID:          event.ApplicationID,
		CustomerID:  event.CustomerID,
		FinancierID: event.FinancierID,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for _, c := range clients {
			if applications.CanView(&c.user, app) {
				send(c.ch, message)
			}
		}
	}
	return nil
}

// ClientCount returns the total number of open streams.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return lo.SumBy(lo.Values(h.clients), func(clients []client) int {
		return len(clients)
	})
}

// UserCount returns the number of unique users with open streams.
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// send drops the message when the stream is not keeping up.
func send(ch chan string, message string) {
	select {
	case ch <- message:
	default:
	}
}
