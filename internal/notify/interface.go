package notify

import "context"

// Notification types consumed by the marketplace notification service.
const (
	TypeNewMessage = "NEW_MESSAGE"
	TypeChatJoined = "CHAT_JOINED"
)

// Notification is the payload handed to the notification pipeline.
type Notification struct {
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	ActionURL string `json:"action_url,omitempty"`
	JobID     string `json:"job_id,omitempty"`
}

// Notifier delivers notifications to the external notification
// pipeline. Delivery is fire-and-forget: implementations log failures
// and callers never block the chat flow on the result.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
	Close() error
}
