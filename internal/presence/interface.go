package presence

import (
	"context"
	"time"

	"github.com/hirewire/chat-service/internal/domain"
)

// UserStatus is the persisted presence record for a user. Unlike
// sessions, it survives process restarts so profile pages can show
// last-seen after the chat service rolls.
type UserStatus struct {
	UserID   string        `json:"user_id"`
	Status   domain.Status `json:"status"`
	LastSeen time.Time     `json:"last_seen"`
}

// Store persists user presence status and last-seen timestamps.
type Store interface {
	// SetStatus records a user's status transition.
	SetStatus(ctx context.Context, userID string, status domain.Status, at time.Time) error

	// GetStatus returns a user's last recorded status. Users never seen
	// before are reported offline with a zero last-seen.
	GetStatus(ctx context.Context, userID string) (*UserStatus, error)

	Close() error
}
