package service

import (
	"context"

	"github.com/hirewire/chat-service/internal/domain"
	"github.com/hirewire/chat-service/internal/hub"
	"github.com/hirewire/chat-service/pkg/log"
)

// userOnline runs the global online transition: the presence store gets
// the durable status and every other session hears user_online.
func (s *chatService) userOnline(ctx context.Context, c *hub.Client) {
	userID := c.Session.UserID()

	if err := s.presence.SetStatus(ctx, userID, domain.StatusOnline, s.clock().UTC()); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("presence store update failed")
	}

	s.hub.BroadcastAll(&domain.UserPresenceEvent{
		Type:     domain.EventUserOnline,
		UserID:   userID,
		UserName: c.Session.DisplayName(),
	}, c.ID)
}

// userOffline runs the global offline transition after the user's last
// connection dropped.
func (s *chatService) userOffline(ctx context.Context, c *hub.Client) {
	userID := c.Session.UserID()

	if err := s.presence.SetStatus(ctx, userID, domain.StatusOffline, s.clock().UTC()); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("presence store update failed")
	}

	s.hub.BroadcastAll(&domain.UserPresenceEvent{
		Type:     domain.EventUserOffline,
		UserID:   userID,
		UserName: c.Session.DisplayName(),
	}, c.ID)
}

// broadcastRoomPresence tells the other members of a room that this
// user entered or left it. eventType is user_online or user_offline.
func (s *chatService) broadcastRoomPresence(c *hub.Client, roomID, eventType string) {
	s.hub.BroadcastToRoom(roomID, &domain.UserPresenceEvent{
		Type:     eventType,
		UserID:   c.Session.UserID(),
		UserName: c.Session.DisplayName(),
	}, c.ID)
}
