package store

import (
	"context"
	"errors"
	"time"

	"github.com/hirewire/chat-service/internal/domain"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotMessageOwner = errors.New("message belongs to another user")
)

// Direction controls history pagination order.
type Direction string

const (
	DirectionBackward Direction = "backward" // DESC - from newest to oldest
	DirectionForward  Direction = "forward"  // ASC - from oldest to newest
)

// ParseDirection parses a direction string, defaulting to backward.
func ParseDirection(s string) Direction {
	if s == "forward" {
		return DirectionForward
	}
	return DirectionBackward
}

// MessageStore is the durable persistence layer for chat messages. It
// is the single writer of message rows; Create serializes writes per
// job so per-room delivery order matches persistence order.
type MessageStore interface {
	// Create persists a new message, assigning its id and timestamps.
	Create(ctx context.Context, msg *domain.Message) error

	// GetByID returns a single message.
	GetByID(ctx context.Context, id string) (*domain.Message, error)

	// GetByIDs returns the messages for the given ids. Unknown ids are
	// silently skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Message, error)

	// ListByJob returns a page of a job's history. The cursor is the
	// next_cursor of a previous page, or empty for the newest page.
	ListByJob(ctx context.Context, jobID, cursor string, limit int, dir Direction) (messages []*domain.Message, nextCursor string, hasMore bool, err error)

	// MarkRead flips is_read/read_at on the given message ids. Caller
	// is responsible for authorization and sender exclusion.
	MarkRead(ctx context.Context, ids []string, at time.Time) error

	// UnreadCount returns the number of unread messages in a job's chat
	// not authored by userID.
	UnreadCount(ctx context.Context, jobID, userID string) (int64, error)

	// UnreadTotal returns the user's unread count across all jobs they
	// participate in.
	UnreadTotal(ctx context.Context, userID string) (int64, error)

	// Search returns up to limit messages in a job's chat whose content
	// contains the query substring, newest first.
	Search(ctx context.Context, jobID, query string, limit int) ([]*domain.Message, error)

	// DeleteOwn removes a message if and only if userID authored it.
	DeleteOwn(ctx context.Context, messageID, userID string) error

	// ListRooms returns the chat rooms for jobs the user participates
	// in, with last-message preview and unread count, most recent first.
	ListRooms(ctx context.Context, userID string) ([]*domain.RoomPreview, error)
}
