// Package backend is a reference chat backend speaking the dialogs
// protocol: it answers page requests and deletes from a Store and pushes
// message events to every connected client.
package backend

import (
	"sync"

	"github.com/omochice/dialog-session/internal/transport"
)

// Client represents a connected client with transport-agnostic connection.
type Client struct {
	ID        string
	Conn      transport.Conn
	PushToken string
	Outgoing  chan []byte
}

// Hub manages all connected clients and handles broadcast.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues data for every client and returns how many accepted it.
// Clients whose outgoing buffer is full are skipped.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for client := range h.clients {
		select {
		case client.Outgoing <- data:
			sent++
		default:
		}
	}
	return sent
}

// CloseAll closes every registered connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		_ = client.Conn.Close()
	}
}
