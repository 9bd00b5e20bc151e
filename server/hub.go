package server

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lowerthirds/lowerthirds/internal/protocol"
)

// Client represents a connected WebSocket client.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	closed bool
	sendMu sync.Mutex
	rooms  map[string]bool // Joined channel slugs
	roomMu sync.RWMutex
}

// Hub manages WebSocket connections and per-channel rooms.
type Hub struct {
	clients    map[*Client]bool
	clientsMu  sync.RWMutex
	rooms      map[string]map[*Client]bool // slug -> clients
	roomsMu    sync.RWMutex
	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomMessage
	done       chan struct{}
	stopOnce   sync.Once
}

type roomMessage struct {
	// room is empty for messages to every client
	room string
	data []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			glog.V(1).Infof("[hub]client connected %s\n", client.id)

		case client := <-h.unregister:
			h.drop(client)

		case msg := <-h.broadcast:
			var targets []*Client
			if msg.room == "" {
				targets = h.Clients()
			} else {
				h.roomsMu.RLock()
				for client := range h.rooms[msg.room] {
					targets = append(targets, client)
				}
				h.roomsMu.RUnlock()
			}

			for _, client := range targets {
				if !client.Send(msg.data) {
					// Client buffer full, disconnect
					glog.Infof("[hub]client %s is lagging, dropping\n", client.id)
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.clientsMu.Unlock()
	if !ok {
		return
	}

	// Remove from all rooms
	client.roomMu.RLock()
	for slug := range client.rooms {
		h.leaveRoom(client, slug)
	}
	client.roomMu.RUnlock()
	client.close()
	glog.V(1).Infof("[hub]client disconnected %s\n", client.id)
}

// Join adds a client to a channel room.
func (h *Hub) Join(client *Client, slug string) {
	h.roomsMu.Lock()
	if h.rooms[slug] == nil {
		h.rooms[slug] = make(map[*Client]bool)
	}
	h.rooms[slug][client] = true
	h.roomsMu.Unlock()

	client.roomMu.Lock()
	client.rooms[slug] = true
	client.roomMu.Unlock()
}

// Leave removes a client from a channel room.
func (h *Hub) Leave(client *Client, slug string) {
	h.leaveRoom(client, slug)

	client.roomMu.Lock()
	delete(client.rooms, slug)
	client.roomMu.Unlock()
}

func (h *Hub) leaveRoom(client *Client, slug string) {
	h.roomsMu.Lock()
	if clients, ok := h.rooms[slug]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, slug)
		}
	}
	h.roomsMu.Unlock()
}

// RoomSize returns the number of clients in a channel room.
func (h *Hub) RoomSize(slug string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[slug])
}

// BroadcastRoom sends an event to every client in a channel room.
func (h *Hub) BroadcastRoom(slug string, msgType protocol.MessageType, data interface{}) {
	h.queue(slug, msgType, data)
}

// BroadcastAll sends an event to every connected client.
func (h *Hub) BroadcastAll(msgType protocol.MessageType, data interface{}) {
	h.queue("", msgType, data)
}

func (h *Hub) queue(room string, msgType protocol.MessageType, data interface{}) {
	raw, err := protocol.Marshal(msgType, data)
	if err != nil {
		glog.Errorf("[hub]failed to marshal %s: %v\n", msgType, err)
		return
	}
	select {
	case h.broadcast <- &roomMessage{room: room, data: raw}:
	case <-h.done:
	}
}

// NewClient creates a new client for the hub.
func (h *Hub) NewClient(conn *websocket.Conn) *Client {
	return &Client{
		id:    uuid.New().String(),
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, 256),
		rooms: make(map[string]bool),
	}
}

// Register registers a client with the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

// Unregister unregisters a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Clients returns all connected clients.
func (h *Hub) Clients() []*Client {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// ID returns the session id of the client.
func (c *Client) ID() string {
	return c.id
}

// Send queues data for the client. It reports false if the client is gone
// or its buffer is full.
func (c *Client) Send(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SendEnvelope sends a protocol envelope to the client.
func (c *Client) SendEnvelope(msgType protocol.MessageType, data interface{}) error {
	raw, err := protocol.Marshal(msgType, data)
	if err != nil {
		return err
	}
	c.Send(raw)
	return nil
}

// SendError sends an error message to the client.
func (c *Client) SendError(code, message string) {
	c.SendEnvelope(protocol.TypeError, protocol.ErrorMessage{
		Code:    code,
		Message: message,
	})
}

// Conn returns the client's WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the client's send channel.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Joined reports whether the client is in a channel room.
func (c *Client) Joined(slug string) bool {
	c.roomMu.RLock()
	defer c.roomMu.RUnlock()
	return c.rooms[slug]
}
