package domain

import "time"

// WebSocket event types from client.
const (
	EventAuthenticate = "authenticate"
	EventJoinJobRoom  = "join_job_room"
	EventLeaveJobRoom = "leave_job_room"
	EventSendMessage  = "send_message"
	EventMarkRead     = "mark_messages_read"
	EventTypingStart  = "typing_start"
	EventTypingStop   = "typing_stop"
	EventUpdateStatus = "update_status"
	EventPing         = "ping"
)

// WebSocket event types to client.
const (
	EventAuthenticated     = "authenticated"
	EventAuthFailed        = "authentication_failed"
	EventJoinedRoom        = "joined_room"
	EventLeftRoom          = "left_room"
	EventRoomError         = "room_error"
	EventMessageSent       = "message_sent"
	EventMessageReceived   = "message_received"
	EventMessagesRead      = "messages_read"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
	EventUserStatusChanged = "user_status_changed"
	EventError             = "error"
	EventPong              = "pong"
)

// Error codes carried on error and room_error events.
const (
	ErrCodeAuthRequired      = "AUTH_REQUIRED"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeNotParticipant    = "NOT_PARTICIPANT"
	ErrCodeJobNotFound       = "JOB_NOT_FOUND"
	ErrCodeMessageNotFound   = "MESSAGE_NOT_FOUND"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodePersistenceFailed = "PERSISTENCE_FAILED"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// BaseEvent is the envelope used to pick the concrete event type.
type BaseEvent struct {
	Type string `json:"type"`
}

// Client -> Server events

type AuthenticateEvent struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type JoinJobRoomEvent struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

type LeaveJobRoomEvent struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

type SendMessageEvent struct {
	Type        string      `json:"type"`
	JobID       string      `json:"jobId"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType,omitempty"`
	Attachment  *Attachment `json:"attachment,omitempty"`
}

type MarkReadEvent struct {
	Type       string   `json:"type"`
	MessageIDs []string `json:"messageIds"`
}

type TypingEvent struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

type UpdateStatusEvent struct {
	Type   string `json:"type"`
	Status Status `json:"status"`
}

type PingEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Server -> Client events

type AuthenticatedEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type AuthFailedEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type JoinedRoomEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	RoomType string `json:"roomType"`
}

type LeftRoomEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type RoomErrorEvent struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Error  string `json:"error"`
	RoomID string `json:"roomId,omitempty"`
}

type MessageSentEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

type MessageReceivedEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

type MessagesReadEvent struct {
	Type       string    `json:"type"`
	MessageIDs []string  `json:"messageIds"`
	ReadBy     string    `json:"readBy"`
	ReadAt     time.Time `json:"readAt"`
}

type TypingBroadcastEvent struct {
	Type     string `json:"type"` // typing_start or typing_stop
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	RoomID   string `json:"roomId"`
}

type UserPresenceEvent struct {
	Type     string `json:"type"` // user_online or user_offline
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type UserStatusChangedEvent struct {
	Type     string    `json:"type"`
	UserID   string    `json:"userId"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type PongEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// NewErrorEvent builds a typed error event.
func NewErrorEvent(code, message string) *ErrorEvent {
	return &ErrorEvent{
		Type:    EventError,
		Code:    code,
		Message: message,
	}
}

// NewRoomErrorEvent builds a room-scoped error event.
func NewRoomErrorEvent(code, message, roomID string) *RoomErrorEvent {
	return &RoomErrorEvent{
		Type:   EventRoomError,
		Code:   code,
		Error:  message,
		RoomID: roomID,
	}
}
