package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hirewire/chat-service/internal/audit"
	"github.com/hirewire/chat-service/internal/directory"
	"github.com/hirewire/chat-service/internal/domain"
	"github.com/hirewire/chat-service/internal/hub"
	"github.com/hirewire/chat-service/internal/notify"
	"github.com/hirewire/chat-service/internal/policy"
	"github.com/hirewire/chat-service/internal/presence"
	"github.com/hirewire/chat-service/internal/store"
	"github.com/hirewire/chat-service/pkg/log"
)

const notificationPreviewLength = 80

type chatService struct {
	hub      *hub.Hub
	store    store.MessageStore
	policy   *policy.AccessPolicy
	tokens   directory.TokenVerifier
	users    directory.UserDirectory
	jobs     directory.JobDirectory
	presence presence.Store
	notifier notify.Notifier

	clock func() time.Time
}

// NewChatService wires the protocol handler.
func NewChatService(
	h *hub.Hub,
	msgStore store.MessageStore,
	accessPolicy *policy.AccessPolicy,
	tokens directory.TokenVerifier,
	users directory.UserDirectory,
	jobs directory.JobDirectory,
	presenceStore presence.Store,
	notifier notify.Notifier,
) ChatService {
	return &chatService{
		hub:      h,
		store:    msgStore,
		policy:   accessPolicy,
		tokens:   tokens,
		users:    users,
		jobs:     jobs,
		presence: presenceStore,
		notifier: notifier,
		clock:    time.Now,
	}
}

func (s *chatService) HandleAuthenticate(ctx context.Context, c *hub.Client, token string) error {
	fail := func(reason string) error {
		c.SendMessage(&domain.AuthFailedEvent{Type: domain.EventAuthFailed, Error: reason})
		audit.Log(ctx, audit.ActionAuthFailed, c.Session.UserID(), reason)
		// Authentication failures are terminal for the connection.
		c.Close()
		return fmt.Errorf("authentication failed: %s", reason)
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return fail("invalid or expired token")
	}

	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return fail("unknown user")
		}
		return fail("user lookup failed")
	}
	if !user.IsVerified {
		return fail("account is not verified")
	}

	c.Session.Authenticate(user.ID, user.DisplayName)
	first := s.hub.BindUser(c)

	if err := c.SendMessage(&domain.AuthenticatedEvent{
		Type:     domain.EventAuthenticated,
		UserID:   user.ID,
		UserName: user.DisplayName,
	}); err != nil {
		return err
	}

	if first {
		s.userOnline(ctx, c)
	}

	audit.Log(ctx, audit.ActionAuth, user.ID, "connection authenticated")
	return nil
}

// requireAuth gates privileged events. Unauthenticated connections get
// a typed error and the event is dropped.
func (s *chatService) requireAuth(c *hub.Client) bool {
	if c.Session.IsAuthenticated() {
		return true
	}
	c.SendMessage(domain.NewErrorEvent(domain.ErrCodeAuthRequired, "authenticate first"))
	return false
}

// authorize runs the access policy and reports denials to the client
// with the precise reason. It is called on join and re-run inline on
// every send so a reassigned worker loses access immediately.
func (s *chatService) authorize(ctx context.Context, c *hub.Client, jobID string) (domain.Role, bool) {
	role, err := s.policy.Authorize(ctx, c.Session.UserID(), jobID)
	if err == nil {
		return role, true
	}

	roomID := domain.RoomID(jobID)
	switch {
	case errors.Is(err, policy.ErrJobNotFound):
		c.SendMessage(domain.NewRoomErrorEvent(domain.ErrCodeJobNotFound, "job not found", roomID))
	case errors.Is(err, policy.ErrNotParticipant):
		c.SendMessage(domain.NewRoomErrorEvent(domain.ErrCodeNotParticipant, "you are not a participant of this job", roomID))
	default:
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldJobID, jobID).Msg("access policy lookup failed")
		c.SendMessage(domain.NewErrorEvent(domain.ErrCodeInternalError, "authorization check failed"))
	}
	return "", false
}

func (s *chatService) HandleJoinRoom(ctx context.Context, c *hub.Client, jobID string) error {
	if !s.requireAuth(c) {
		return nil
	}
	if jobID == "" {
		return c.SendMessage(domain.NewErrorEvent(domain.ErrCodeBadRequest, "jobId is required"))
	}

	role, ok := s.authorize(ctx, c, jobID)
	if !ok {
		return nil
	}

	roomID := domain.RoomID(jobID)
	s.hub.JoinRoom(c, roomID)

	if err := c.SendMessage(&domain.JoinedRoomEvent{
		Type:     domain.EventJoinedRoom,
		RoomID:   roomID,
		RoomType: "job",
	}); err != nil {
		return err
	}

	// Presence goes to the other members only, not globally.
	s.broadcastRoomPresence(c, roomID, domain.EventUserOnline)

	audit.LogWithDetail(ctx, audit.ActionJoinRoom, c.Session.UserID(), string(role), "joined "+roomID)
	return nil
}

func (s *chatService) HandleLeaveRoom(ctx context.Context, c *hub.Client, jobID string) error {
	if !s.requireAuth(c) {
		return nil
	}

	roomID := domain.RoomID(jobID)
	wasMember := s.hub.LeaveRoom(c, roomID)

	if err := c.SendMessage(&domain.LeftRoomEvent{Type: domain.EventLeftRoom, RoomID: roomID}); err != nil {
		return err
	}

	// Leaving twice is a no-op: no duplicate presence broadcast.
	if wasMember {
		s.broadcastRoomPresence(c, roomID, domain.EventUserOffline)
		audit.Log(ctx, audit.ActionLeaveRoom, c.Session.UserID(), "left "+roomID)
	}
	return nil
}

func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, ev *domain.SendMessageEvent) error {
	if !s.requireAuth(c) {
		return nil
	}
	if ev.JobID == "" {
		return c.SendMessage(domain.NewErrorEvent(domain.ErrCodeBadRequest, "jobId is required"))
	}

	// Cached room membership is routing state, not authorization: the
	// policy runs inline on every send.
	if _, ok := s.authorize(ctx, c, ev.JobID); !ok {
		return nil
	}

	msg, err := composeMessage(c.Session.UserID(), ev)
	if err != nil {
		return c.SendMessage(domain.NewErrorEvent(domain.ErrCodeValidationFailed, err.Error()))
	}

	// Persistence happens-before broadcast: a message no other client
	// can ever observe on the wire without it being durable first.
	if err := s.store.Create(ctx, msg); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldJobID, ev.JobID).Msg("message persistence failed")
		return c.SendMessage(domain.NewErrorEvent(domain.ErrCodePersistenceFailed, "message could not be saved, please retry"))
	}

	roomID := domain.RoomID(ev.JobID)

	// The sender gets an explicit ack, other members get the broadcast.
	if err := c.SendMessage(&domain.MessageSentEvent{Type: domain.EventMessageSent, Message: msg}); err != nil {
		return err
	}
	s.hub.BroadcastToRoom(roomID, &domain.MessageReceivedEvent{
		Type:    domain.EventMessageReceived,
		Message: msg,
	}, c.ID)

	s.notifyCounterpart(ctx, c.Session.UserID(), c.Session.DisplayName(), msg)

	audit.LogWithDetail(ctx, audit.ActionSendMessage, c.Session.UserID(), msg.ID, "message sent to "+roomID)
	return nil
}

// composeMessage validates a client send request and builds the
// unpersisted message. The SYSTEM type is reserved for server-originated
// messages and is rejected here.
func composeMessage(senderID string, ev *domain.SendMessageEvent) (*domain.Message, error) {
	msgType := ev.MessageType
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	if !domain.ValidMessageType(msgType) || msgType == domain.MessageTypeSystem {
		return nil, domain.ErrBadMessageType
	}

	content, err := domain.ValidateContent(ev.Content)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateAttachment(ev.Attachment, msgType); err != nil {
		return nil, err
	}

	return &domain.Message{
		JobID:       ev.JobID,
		SenderID:    senderID,
		Content:     content,
		MessageType: msgType,
		Attachment:  ev.Attachment,
	}, nil
}

// PostMessage is the REST send path. It shares the websocket path's
// policy check and validation before persisting and broadcasting to
// live room members. Callers map the returned errors to HTTP statuses.
func (s *chatService) PostMessage(ctx context.Context, senderID string, ev *domain.SendMessageEvent) (*domain.Message, error) {
	if _, err := s.policy.Authorize(ctx, senderID, ev.JobID); err != nil {
		return nil, err
	}

	msg, err := composeMessage(senderID, ev)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	s.hub.BroadcastToRoom(domain.RoomID(ev.JobID), &domain.MessageReceivedEvent{
		Type:    domain.EventMessageReceived,
		Message: msg,
	}, "")

	senderName := senderID
	if user, err := s.users.GetUser(ctx, senderID); err == nil {
		senderName = user.DisplayName
	}
	s.notifyCounterpart(ctx, senderID, senderName, msg)

	audit.LogWithDetail(ctx, audit.ActionSendMessage, senderID, msg.ID, "message posted to "+domain.RoomID(ev.JobID))
	return msg, nil
}

// notifyCounterpart emits one external notification to the job's other
// participant. Failures are logged and swallowed: notifications never
// abort the send flow.
func (s *chatService) notifyCounterpart(ctx context.Context, senderID, senderName string, msg *domain.Message) {
	job, err := s.jobs.GetParticipants(ctx, msg.JobID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldJobID, msg.JobID).Msg("notification skipped, participants unavailable")
		return
	}

	recipient := job.PosterID
	if senderID == job.PosterID {
		recipient = job.WorkerID
	}
	if recipient == "" || recipient == senderID {
		return
	}

	preview := msg.Content
	if runes := []rune(preview); len(runes) > notificationPreviewLength {
		preview = string(runes[:notificationPreviewLength]) + "…"
	}

	n := &notify.Notification{
		UserID:    recipient,
		Title:     "New message from " + senderName,
		Message:   preview,
		Type:      notify.TypeNewMessage,
		ActionURL: "/jobs/" + msg.JobID + "/chat",
		JobID:     msg.JobID,
	}

	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.notifier.Notify(notifyCtx, n); err != nil {
			l := log.L()
			l.Warn().Err(err).Str(log.FieldUserID, recipient).Msg("notification delivery failed")
		}
	}()
}

func (s *chatService) HandleMarkRead(ctx context.Context, c *hub.Client, messageIDs []string) error {
	if !s.requireAuth(c) {
		return nil
	}
	if len(messageIDs) == 0 {
		return c.SendMessage(domain.NewErrorEvent(domain.ErrCodeBadRequest, "messageIds is required"))
	}

	if _, err := s.MarkMessagesRead(ctx, c.Session.UserID(), messageIDs); err != nil {
		return c.SendMessage(domain.NewErrorEvent(domain.ErrCodePersistenceFailed, "could not mark messages read"))
	}
	return nil
}

// MarkMessagesRead flips read state for the eligible subset of the
// given messages and broadcasts one receipt per affected room. Messages
// the reader authored, already-read messages, unknown ids and jobs the
// reader is no longer a participant of are silently skipped. It returns
// the ids actually marked.
func (s *chatService) MarkMessagesRead(ctx context.Context, readerID string, messageIDs []string) ([]string, error) {
	messages, err := s.store.GetByIDs(ctx, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	eligibleByJob := make(map[string][]string)
	authorized := make(map[string]bool)
	for _, msg := range messages {
		if msg.SenderID == readerID || msg.IsRead {
			continue
		}
		allowed, checked := authorized[msg.JobID]
		if !checked {
			_, err := s.policy.Authorize(ctx, readerID, msg.JobID)
			allowed = err == nil
			authorized[msg.JobID] = allowed
		}
		if !allowed {
			continue
		}
		eligibleByJob[msg.JobID] = append(eligibleByJob[msg.JobID], msg.ID)
	}

	if len(eligibleByJob) == 0 {
		return nil, nil
	}

	readAt := s.clock().UTC()
	var all []string
	for _, ids := range eligibleByJob {
		all = append(all, ids...)
	}
	if err := s.store.MarkRead(ctx, all, readAt); err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}

	// One receipt per affected room, delivered to the room even when the
	// reader is not currently joined to it.
	for jobID, ids := range eligibleByJob {
		s.hub.BroadcastToRoom(domain.RoomID(jobID), &domain.MessagesReadEvent{
			Type:       domain.EventMessagesRead,
			MessageIDs: ids,
			ReadBy:     readerID,
			ReadAt:     readAt,
		}, "")
	}

	audit.Log(ctx, audit.ActionMarkRead, readerID, fmt.Sprintf("marked %d messages read", len(all)))
	return all, nil
}

func (s *chatService) HandleTyping(ctx context.Context, c *hub.Client, jobID, eventType string) error {
	if !s.requireAuth(c) {
		return nil
	}

	roomID := domain.RoomID(jobID)

	// Typing storms stay off the access policy: room membership was
	// gated at join time and is enough here.
	if !s.hub.IsRoomMember(c.ID, roomID) {
		return nil
	}

	s.hub.BroadcastToRoom(roomID, &domain.TypingBroadcastEvent{
		Type:     eventType,
		UserID:   c.Session.UserID(),
		UserName: c.Session.DisplayName(),
		RoomID:   roomID,
	}, c.ID)
	return nil
}

func (s *chatService) HandleUpdateStatus(ctx context.Context, c *hub.Client, status domain.Status) error {
	if !s.requireAuth(c) {
		return nil
	}
	if status != domain.StatusOnline && status != domain.StatusOffline {
		return c.SendMessage(domain.NewErrorEvent(domain.ErrCodeBadRequest, "status must be online or offline"))
	}

	c.Session.SetStatus(status)
	now := s.clock().UTC()

	if err := s.presence.SetStatus(ctx, c.Session.UserID(), status, now); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, c.Session.UserID()).Msg("presence store update failed")
	}

	// Any user's profile may show another user's status, so this goes to
	// every session, not just room members.
	s.hub.BroadcastAll(&domain.UserStatusChangedEvent{
		Type:     domain.EventUserStatusChanged,
		UserID:   c.Session.UserID(),
		Status:   status,
		LastSeen: now,
	}, c.ID)
	return nil
}

func (s *chatService) HandlePing(ctx context.Context, c *hub.Client, timestamp int64) error {
	c.Session.UpdateActivity()
	return c.SendMessage(&domain.PongEvent{Type: domain.EventPong, Timestamp: timestamp})
}

// HandleDisconnect runs the terminal transition: room-scoped offline
// presence for every joined room, then the global offline transition if
// this was the user's last connection. Further events on the connection
// are no-ops because the hub drops it right after.
func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	for _, roomID := range c.Session.Rooms() {
		if s.hub.LeaveRoom(c, roomID) {
			s.broadcastRoomPresence(c, roomID, domain.EventUserOffline)
		}
	}

	if !c.Session.IsAuthenticated() {
		return nil
	}

	if last := s.hub.UnbindUser(c); last {
		s.userOffline(ctx, c)
	}

	audit.Log(ctx, audit.ActionDisconnect, c.Session.UserID(), "connection closed")
	return nil
}

func (s *chatService) SendSystemMessage(ctx context.Context, jobID, content string) error {
	clean, err := domain.ValidateContent(content)
	if err != nil {
		return err
	}

	msg := &domain.Message{
		JobID:       jobID,
		SenderID:    domain.SystemSenderID,
		Content:     clean,
		MessageType: domain.MessageTypeSystem,
	}
	if err := s.store.Create(ctx, msg); err != nil {
		return fmt.Errorf("failed to persist system message: %w", err)
	}

	s.hub.BroadcastToRoom(domain.RoomID(jobID), &domain.MessageReceivedEvent{
		Type:    domain.EventMessageReceived,
		Message: msg,
	}, "")
	return nil
}
