// Package gateway is the realtime edge: it upgrades authenticated HTTP
// requests to websockets, tracks per-trip rooms, and fans trip and chat
// events out to connected sessions. Delivery is best-effort; slow consumers
// are dropped rather than allowed to block the rest.
package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"campusride/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 8192
	sendBuffer     = 64
)

// frame is the outbound wire shape.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// client is one websocket session. Writes go through the send channel so a
// single goroutine owns the connection's write side.
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks connected sessions and their room membership.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		rooms:   make(map[string]map[*client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	observability.WSSessions.Inc()
}

// remove drops the session and its room memberships. Chat participation is
// roster-based and survives the disconnect.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for tripID, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, tripID)
			}
		}
	}
	close(c.send)
	observability.WSSessions.Dec()
}

func (h *Hub) joinRoom(tripID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[tripID]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[tripID] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) leaveRoom(tripID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[tripID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, tripID)
		}
	}
}

// ToUser delivers to every session authenticated as userID.
func (h *Hub) ToUser(userID, event string, payload any) {
	msg, err := marshalFrame(event, payload)
	if err != nil {
		h.logger.Error("frame marshal failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.userID == userID {
			h.deliver(c, msg, event)
		}
	}
}

// ToRoom delivers to every session joined to the trip's room.
func (h *Hub) ToRoom(tripID, event string, payload any) {
	h.toRoom(tripID, nil, event, payload)
}

// toRoomExcept delivers to the trip's room, skipping one session. Used for
// chat fan-out where the sender gets a separate acknowledgement instead.
func (h *Hub) toRoomExcept(tripID string, skip *client, event string, payload any) {
	h.toRoom(tripID, skip, event, payload)
}

func (h *Hub) toRoom(tripID string, skip *client, event string, payload any) {
	msg, err := marshalFrame(event, payload)
	if err != nil {
		h.logger.Error("frame marshal failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[tripID] {
		if c == skip {
			continue
		}
		h.deliver(c, msg, event)
	}
}

// Broadcast delivers to every connected session.
func (h *Hub) Broadcast(event string, payload any) {
	msg, err := marshalFrame(event, payload)
	if err != nil {
		h.logger.Error("frame marshal failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.deliver(c, msg, event)
	}
}

// sendTo delivers to one session, if it is still registered.
func (h *Hub) sendTo(c *client, event string, payload any) {
	msg, err := marshalFrame(event, payload)
	if err != nil {
		h.logger.Error("frame marshal failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		h.deliver(c, msg, event)
	}
}

// deliver queues a message without blocking. A full buffer means the consumer
// stopped draining; the message is dropped and the read loop will reap the
// connection on the next ping failure.
func (h *Hub) deliver(c *client, msg []byte, event string) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("session send buffer full, dropping frame", "user_id", c.userID, "event", event)
	}
}

func marshalFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(frame{Event: event, Data: payload})
}

// writePump owns the connection's write side: queued frames plus keepalive
// pings. Exits when the send channel closes or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
