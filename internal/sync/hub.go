// Package sync pushes link and auto-match events to connected clients
// over websockets, keyed by user so progress streams stay private.
package sync

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]string // conn -> user id
	logger  *slog.Logger
}

type Stats struct {
	Clients int `json:"clients"`
	Users   int `json:"users"`
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]string),
		logger:  logger,
	}
}

func (h *Hub) Add(ws *websocket.Conn, userID string) {
	h.mu.Lock()
	h.clients[ws] = userID
	h.mu.Unlock()
}

func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// Notify sends an event to every socket the user holds open. Dead
// connections are dropped on write failure.
func (h *Hub) Notify(userID string, event any) {
	h.send(event, func(owner string) bool { return owner == userID })
}

// Broadcast sends an event to every connected socket.
func (h *Hub) Broadcast(event any) {
	h.send(event, func(string) bool { return true })
}

func (h *Hub) send(event any, match func(owner string) bool) {
	b, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("marshal hub event", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ws, owner := range h.clients {
		if !match(owner) {
			continue
		}
		_ = ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = ws.Close()
			delete(h.clients, ws)
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	users := make(map[string]struct{}, len(h.clients))
	for _, owner := range h.clients {
		users[owner] = struct{}{}
	}
	return Stats{Clients: len(h.clients), Users: len(users)}
}
