package presence

import (
	"context"
	"sync"
	"time"

	"github.com/hirewire/chat-service/internal/domain"
)

// memoryStore is an in-memory presence store for single-instance
// deployments and tests.
type memoryStore struct {
	mu       sync.RWMutex
	statuses map[string]UserStatus
}

// NewMemoryStore creates an in-memory presence store.
func NewMemoryStore() Store {
	return &memoryStore{statuses: make(map[string]UserStatus)}
}

func (s *memoryStore) SetStatus(ctx context.Context, userID string, status domain.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[userID] = UserStatus{UserID: userID, Status: status, LastSeen: at}
	return nil
}

func (s *memoryStore) GetStatus(ctx context.Context, userID string) (*UserStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if us, ok := s.statuses[userID]; ok {
		copied := us
		return &copied, nil
	}
	return &UserStatus{UserID: userID, Status: domain.StatusOffline}, nil
}

func (s *memoryStore) Close() error {
	return nil
}
