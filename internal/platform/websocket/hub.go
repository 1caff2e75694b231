// Package websocket provides the real-time messaging transport. It implements
// a hub-and-spoke pattern where clients join rooms and receive events
// broadcast to those rooms.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
)

// Event represents a real-time event sent to WebSocket clients.
type Event struct {
	Type      string          `json:"type"`
	Room      string          `json:"room"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventPublisher defines the interface for publishing events to room members.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single WebSocket connection.
type Client struct {
	ID    string
	Rooms []string
	Send  chan []byte
	conn  Conn
}

// NewClient wraps a connection in a Client with a buffered send queue.
func NewClient(conn Conn) *Client {
	return &Client{
		ID:    uuid.New().String(),
		Rooms: []string{},
		Send:  make(chan []byte, 256),
		conn:  conn,
	}
}

// WritePump drains the Send channel onto the connection. It returns when the
// channel is closed by Unregister or the connection fails.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.Send {
		if err := c.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

// ReadPump reads inbound frames and hands them to onMessage until the
// connection drops, then unregisters the client from the hub.
func (c *Client) ReadPump(hub *Hub, onMessage func(data []byte)) {
	defer func() {
		hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		onMessage(message)
	}
}

// Hub is the central connection manager that tracks clients and their room
// memberships. All operations are thread-safe via sync.RWMutex.
type Hub struct {
	mu      sync.RWMutex
	members map[string]map[*Client]struct{} // room -> set of clients
	all     map[*Client]struct{}            // all connected clients
}

// NewHub creates a new Hub ready to manage WebSocket clients.
func NewHub() *Hub {
	return &Hub{
		members: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// Register adds a client to the hub and joins it to its initial rooms.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}

	for _, room := range client.Rooms {
		if h.members[room] == nil {
			h.members[room] = make(map[*Client]struct{})
		}
		h.members[room][client] = struct{}{}
	}
}

// Unregister removes a client from the hub and all its rooms, and closes the
// client's Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, room := range client.Rooms {
		if members, ok := h.members[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.members, room)
			}
		}
	}

	delete(h.all, client)
	close(client.Send)
}

// Close disconnects every client: room memberships are dropped and each Send
// channel is closed, so write pumps drain their queues and close the
// underlying connections. Clients observe a normal close, not a silent drop.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.all {
		close(client.Send)
	}
	h.all = make(map[*Client]struct{})
	h.members = make(map[string]map[*Client]struct{})
}

// Join adds an already-registered client to a room.
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.members[room] == nil {
		h.members[room] = make(map[*Client]struct{})
	}
	if _, already := h.members[room][client]; already {
		return
	}
	h.members[room][client] = struct{}{}
	client.Rooms = append(client.Rooms, room)
}

// Leave removes an already-registered client from a room.
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.members[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.members, room)
		}
	}

	remaining := make([]string, 0, len(client.Rooms))
	for _, r := range client.Rooms {
		if r != room {
			remaining = append(remaining, r)
		}
	}
	client.Rooms = remaining
}

// InRoom reports whether the client is currently a member of the room.
func (h *Hub) InRoom(client *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.members[room][client]
	return ok
}

// Broadcast sends an event to all clients in the given room.
func (h *Hub) Broadcast(room string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket: failed to marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.members[room]
	if !ok {
		return
	}

	for client := range members {
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking the room.
		}
	}
}

// Send delivers an event to a single client only.
func (h *Hub) Send(client *Client, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket: failed to marshal event: %v", err)
		return
	}

	select {
	case client.Send <- data:
	default:
	}
}

// Publish implements the EventPublisher interface by broadcasting the event
// to members of the event's room.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Room, event)
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// RoomCount returns the number of clients currently in a specific room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[room])
}

// GorillaConn wraps a gorilla/websocket.Conn to satisfy the Conn interface.
type GorillaConn struct {
	Conn *gorillawebsocket.Conn
}

func (a *GorillaConn) ReadMessage() (int, []byte, error) {
	return a.Conn.ReadMessage()
}

func (a *GorillaConn) WriteMessage(messageType int, data []byte) error {
	return a.Conn.WriteMessage(messageType, data)
}

func (a *GorillaConn) Close() error {
	return a.Conn.Close()
}
