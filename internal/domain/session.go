package domain

import (
	"sync"
	"time"
)

// Status is a user's presence status.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Session is the per-connection state. One session exists per live
// transport connection, not per user; a user may hold several sessions
// at once. Sessions are never persisted.
type Session struct {
	ID           string // connection id
	userID       string
	displayName  string
	status       Status
	lastSeenAt   time.Time
	joinedRooms  map[string]struct{}
	createdAt    time.Time
	mu           sync.RWMutex
}

// NewSession creates an unauthenticated session for a connection.
func NewSession(connectionID string) *Session {
	now := time.Now()
	return &Session{
		ID:          connectionID,
		status:      StatusOffline,
		lastSeenAt:  now,
		createdAt:   now,
		joinedRooms: make(map[string]struct{}),
	}
}

// Authenticate populates the session with the verified user identity.
func (s *Session) Authenticate(userID, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.displayName = displayName
	s.status = StatusOnline
	s.lastSeenAt = time.Now()
}

// IsAuthenticated reports whether the session has a verified user.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID != ""
}

// UserID returns the authenticated user id, or "" before authentication.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// DisplayName returns the authenticated user's display name.
func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

// JoinRoom records room membership on the session.
func (s *Session) JoinRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joinedRooms[roomID] = struct{}{}
	s.lastSeenAt = time.Now()
}

// LeaveRoom removes room membership. It reports whether the session was
// actually a member, so callers can keep leave idempotent without
// emitting duplicate presence events.
func (s *Session) LeaveRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.joinedRooms[roomID]; !ok {
		return false
	}
	delete(s.joinedRooms, roomID)
	s.lastSeenAt = time.Now()
	return true
}

// InRoom reports whether the session is a member of the room.
func (s *Session) InRoom(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.joinedRooms[roomID]
	return ok
}

// Rooms returns a snapshot of the joined room ids.
func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.joinedRooms))
	for id := range s.joinedRooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// SetStatus updates the presence status.
func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.lastSeenAt = time.Now()
}

// GetStatus returns the presence status.
func (s *Session) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// UpdateActivity refreshes the last-seen timestamp.
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeenAt = time.Now()
}

// LastSeenAt returns the last activity timestamp.
func (s *Session) LastSeenAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeenAt
}
