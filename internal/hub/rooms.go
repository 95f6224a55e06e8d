package hub

import (
	"github.com/hirewire/chat-service/pkg/log"
)

// JoinRoom adds the client to a room, creating the room lazily.
// Authorization happens before this call; the hub only routes.
func (h *Hub) JoinRoom(c *Client, roomID string) {
	h.mu.Lock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[c.ID] = c
	h.mu.Unlock()

	c.Session.JoinRoom(roomID)

	l := log.L()
	l.Debug().Str(log.FieldConnID, c.ID).Str(log.FieldRoomID, roomID).Msg("client joined room")
}

// LeaveRoom removes the client from a room. It reports whether the
// client was actually a member, so callers can keep leave idempotent.
// Empty rooms are removed from the map.
func (h *Hub) LeaveRoom(c *Client, roomID string) bool {
	h.mu.Lock()
	members, ok := h.rooms[roomID]
	wasMember := false
	if ok {
		if _, wasMember = members[c.ID]; wasMember {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.mu.Unlock()

	c.Session.LeaveRoom(roomID)

	if wasMember {
		l := log.L()
		l.Debug().Str(log.FieldConnID, c.ID).Str(log.FieldRoomID, roomID).Msg("client left room")
	}
	return wasMember
}

// RoomClients returns a snapshot of a room's members.
func (h *Hub) RoomClients(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	clients := make([]*Client, 0, len(members))
	for _, c := range members {
		clients = append(clients, c)
	}
	return clients
}

// RoomMemberCount returns the number of connections in a room.
func (h *Hub) RoomMemberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// IsRoomMember reports whether the connection is currently in the room.
func (h *Hub) IsRoomMember(connectionID, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	_, member := members[connectionID]
	return member
}

// BroadcastToRoom delivers an event to every member of a room except
// the excluded connection. The member list is snapshotted under the
// read lock; queue writes happen outside it.
func (h *Hub) BroadcastToRoom(roomID string, event interface{}, exclude string) {
	for _, c := range h.RoomClients(roomID) {
		if c.ID == exclude {
			continue
		}
		c.SendMessage(event)
	}
}
