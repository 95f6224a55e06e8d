package domain

import (
	"time"
)

// SystemSenderID is the reserved sender identity for system-generated
// messages (job status changes, payment events). It is not a real user
// and the access policy treats it as always-authorized.
const SystemSenderID = "system"

// MessageType enumerates the kinds of chat messages.
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeSystem MessageType = "SYSTEM"
)

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// Attachment holds metadata for IMAGE/FILE messages. The blob itself is
// uploaded through the media pipeline; chat only carries the reference.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

// Message represents a persisted chat message. Messages are immutable
// except for IsRead/ReadAt, which only a non-sender participant may set.
type Message struct {
	ID          string      `json:"id"`
	JobID       string      `json:"job_id"`
	SenderID    string      `json:"sender_id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	IsRead      bool        `json:"is_read"`
	ReadAt      *time.Time  `json:"read_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsSystem reports whether the message was sent by the system sentinel.
func (m *Message) IsSystem() bool {
	return m.SenderID == SystemSenderID
}

// MessageModel is the GORM persistence model for Message.
type MessageModel struct {
	ID                 string `gorm:"primaryKey"`
	JobID              string `gorm:"index:idx_messages_job_created,priority:1;not null"`
	SenderID           string `gorm:"index;not null"`
	Content            string `gorm:"type:text;not null"`
	MessageType        string `gorm:"not null;default:TEXT"`
	AttachmentURL      string
	AttachmentFilename string
	AttachmentSize     int64
	AttachmentMime     string
	IsRead             bool `gorm:"not null;default:false"`
	ReadAt             *time.Time
	CreatedAt          time.Time `gorm:"index:idx_messages_job_created,priority:2"`
	UpdatedAt          time.Time
}

// TableName overrides the GORM table name.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts the persistence model to the domain message.
func (m *MessageModel) ToDomain() *Message {
	msg := &Message{
		ID:          m.ID,
		JobID:       m.JobID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		MessageType: MessageType(m.MessageType),
		IsRead:      m.IsRead,
		ReadAt:      m.ReadAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.AttachmentURL != "" {
		msg.Attachment = &Attachment{
			URL:      m.AttachmentURL,
			Filename: m.AttachmentFilename,
			Size:     m.AttachmentSize,
			MimeType: m.AttachmentMime,
		}
	}
	return msg
}

// MessageToModel converts a domain message to its persistence model.
func MessageToModel(msg *Message) *MessageModel {
	model := &MessageModel{
		ID:          msg.ID,
		JobID:       msg.JobID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		MessageType: string(msg.MessageType),
		IsRead:      msg.IsRead,
		ReadAt:      msg.ReadAt,
		CreatedAt:   msg.CreatedAt,
		UpdatedAt:   msg.UpdatedAt,
	}
	if msg.Attachment != nil {
		model.AttachmentURL = msg.Attachment.URL
		model.AttachmentFilename = msg.Attachment.Filename
		model.AttachmentSize = msg.Attachment.Size
		model.AttachmentMime = msg.Attachment.MimeType
	}
	return model
}

// RoomPreview is the read-model row for the chat-rooms listing: one row
// per job the user participates in, with last-message preview and
// unread count.
type RoomPreview struct {
	JobID       string     `json:"job_id"`
	RoomID      string     `json:"room_id"`
	LastMessage *Message   `json:"last_message,omitempty"`
	UnreadCount int64      `json:"unread_count"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}
