package hub

import (
	"sync"

	"github.com/hirewire/chat-service/pkg/log"
)

// Hub is the authoritative registry of live connections and room
// membership. All maps are guarded by a single mutex; broadcasts
// snapshot their recipients under the read lock and deliver outside it
// so no lock is held across queue writes.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client            // connection id -> client
	rooms     map[string]map[string]*Client // room id -> connection id -> client
	userConns map[string]map[string]struct{} // user id -> set of connection ids
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		userConns: make(map[string]map[string]struct{}),
	}
}

// Register adds a freshly connected client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldConnID, c.ID).Msg("client registered")
}

// Unregister removes a client from the registry and every room it was
// a member of, and closes its send queue. Idempotent.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		for roomID, members := range h.rooms {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
		delete(h.clients, c.ID)
	}
	h.mu.Unlock()

	c.closeSend()

	l := log.L()
	l.Debug().Str(log.FieldConnID, c.ID).Msg("client unregistered")
}

// BindUser associates an authenticated connection with its user and
// reports whether this is the user's first live connection (the
// online transition for global presence).
func (h *Hub) BindUser(c *Client) bool {
	userID := c.Session.UserID()
	if userID == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.userConns[userID]
	if !ok {
		conns = make(map[string]struct{})
		h.userConns[userID] = conns
	}
	first := len(conns) == 0
	conns[c.ID] = struct{}{}
	return first
}

// UnbindUser removes the connection from its user's set and reports
// whether it was the user's last live connection (the offline
// transition for global presence).
func (h *Hub) UnbindUser(c *Client) bool {
	userID := c.Session.UserID()
	if userID == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.userConns[userID]
	if !ok {
		return false
	}
	if _, member := conns[c.ID]; !member {
		return false
	}
	delete(conns, c.ID)
	if len(conns) == 0 {
		delete(h.userConns, userID)
		return true
	}
	return false
}

// UserOnline reports whether the user has at least one live connection.
func (h *Hub) UserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID]) > 0
}

// Clients returns a snapshot of all registered clients.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// BroadcastAll delivers an event to every registered client except the
// excluded connection.
func (h *Hub) BroadcastAll(event interface{}, exclude string) {
	for _, c := range h.Clients() {
		if c.ID == exclude {
			continue
		}
		c.SendMessage(event)
	}
}
