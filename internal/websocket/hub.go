package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/registry"
)

// MessageAccountStatus is the message type carrying an AccountStatusEvent
const MessageAccountStatus = "account_status"

const (
	broadcastBuffer = 64
	writeTimeout    = 5 * time.Second
)

// AccountStatusEvent is the content of an account_status message
type AccountStatusEvent struct {
	AccountID string          `json:"accountId"`
	Platform  models.Platform `json:"platform"`
	Name      string          `json:"name,omitempty"`
	State     string          `json:"state"`
	Previous  string          `json:"previous,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Error     string          `json:"error,omitempty"`
	At        time.Time       `json:"at"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	mu          sync.Mutex
	connections map[*websocket.Conn]bool
	last        map[string]registry.State

	// Messages to be broadcast to all connected clients
	broadcast chan models.Message

	upgrader websocket.Upgrader
	logger   *logrus.Entry
}

// NewHub creates a new hub for managing WebSocket connections
func NewHub(logger *logrus.Logger) *Hub {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return &Hub{
		connections: make(map[*websocket.Conn]bool),
		last:        make(map[string]registry.State),
		broadcast:   make(chan models.Message, broadcastBuffer),
		upgrader:    upgrader,
		logger:      logger.WithField("component", "websocket"),
	}
}

// Run sends queued messages to every client until ctx is done, then closes all clients.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case msg := <-h.broadcast:
			h.send(msg)
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.connections {
				client.Close()
				delete(h.connections, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) send(msg models.Message) {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.connections))
	for client := range h.connections {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteJSON(msg); err != nil {
			h.logger.WithError(err).Debug("Error sending message to client")
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connections[client] {
		delete(h.connections, client)
		client.Close()
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// HandleWebSocket upgrades an HTTP connection to WebSocket
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Error upgrading to WebSocket")
		return
	}

	h.mu.Lock()
	h.connections[ws] = true
	h.mu.Unlock()

	// Read messages from the client (to keep the connection alive)
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				h.remove(ws)
				return
			}
		}
	}()
}

// Broadcast queues a message for all connected clients. When the queue is full the message
// is dropped.
func (h *Hub) Broadcast(msg models.Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.logger.WithField("type", msg.Type).Warn("Broadcast queue full, dropping message")
		return false
	}
}

// AccountStateChanged broadcasts registry transitions as account_status messages
func (h *Hub) AccountStateChanged(ctx context.Context, ev registry.Event) {
	h.mu.Lock()
	previous := h.last[ev.AccountID]
	if ev.State == registry.StateUnconnected {
		delete(h.last, ev.AccountID)
	} else {
		h.last[ev.AccountID] = ev.State
	}
	h.mu.Unlock()

	content := AccountStatusEvent{
		AccountID: ev.AccountID,
		Platform:  ev.Platform,
		Name:      ev.Name,
		State:     string(ev.State),
		Previous:  string(previous),
		Reason:    ev.Reason,
		At:        ev.At,
	}
	if ev.Err != nil {
		content.Error = ev.Err.Error()
	}
	h.Broadcast(models.Message{Type: MessageAccountStatus, Content: content})
}
