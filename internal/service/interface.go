package service

import (
	"context"

	"github.com/hirewire/chat-service/internal/domain"
	"github.com/hirewire/chat-service/internal/hub"
)

// ChatService is the per-connection protocol state machine. The
// websocket handler decodes events and dispatches them here; all
// authorization, validation, persistence and fan-out decisions live in
// this layer.
type ChatService interface {
	HandleAuthenticate(ctx context.Context, c *hub.Client, token string) error
	HandleJoinRoom(ctx context.Context, c *hub.Client, jobID string) error
	HandleLeaveRoom(ctx context.Context, c *hub.Client, jobID string) error
	HandleSendMessage(ctx context.Context, c *hub.Client, ev *domain.SendMessageEvent) error
	HandleMarkRead(ctx context.Context, c *hub.Client, messageIDs []string) error
	HandleTyping(ctx context.Context, c *hub.Client, jobID, eventType string) error
	HandleUpdateStatus(ctx context.Context, c *hub.Client, status domain.Status) error
	HandlePing(ctx context.Context, c *hub.Client, timestamp int64) error
	HandleDisconnect(ctx context.Context, c *hub.Client) error

	// MarkMessagesRead is the transport-agnostic read-receipt core. It
	// returns the message ids actually flipped.
	MarkMessagesRead(ctx context.Context, readerID string, messageIDs []string) ([]string, error)

	// PostMessage sends a message over the REST surface: same policy and
	// validation as the websocket path, with broadcast to live members.
	PostMessage(ctx context.Context, senderID string, ev *domain.SendMessageEvent) (*domain.Message, error)

	// SendSystemMessage posts a system-sender message into a job's chat
	// (job assigned, payment released). Called by marketplace flows,
	// not by clients.
	SendSystemMessage(ctx context.Context, jobID, content string) error
}
