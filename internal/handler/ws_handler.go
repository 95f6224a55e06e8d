package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hirewire/chat-service/internal/config"
	"github.com/hirewire/chat-service/internal/domain"
	"github.com/hirewire/chat-service/internal/hub"
	"github.com/hirewire/chat-service/internal/service"
	"github.com/hirewire/chat-service/pkg/log"
)

// WSHandler owns the websocket endpoint: upgrade, connection lifecycle
// and decoding wire events into service calls.
type WSHandler struct {
	hub      *hub.Hub
	svc      service.ChatService
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewWSHandler creates the websocket handler.
func NewWSHandler(h *hub.Hub, svc service.ChatService, cfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub: h,
		svc: svc,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks are enforced at the API gateway.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /ws. The connection starts unauthenticated and must
// send an authenticate event before the deadline or it is closed.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.NewString(), h.hub, conn, h.cfg)
	h.hub.Register(client)
	client.EnforceAuthDeadline(h.cfg.AuthDeadline)

	go client.WritePump()
	go client.ReadPump(h.dispatch, h.onDisconnect)
}

func (h *WSHandler) onDisconnect(c *hub.Client) {
	ctx := h.connContext(c)
	if err := h.svc.HandleDisconnect(ctx, c); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("disconnect transition failed")
	}
}

func (h *WSHandler) connContext(c *hub.Client) context.Context {
	logger := log.L().With().Str(log.FieldConnID, c.ID).Logger()
	return log.WithLogger(context.Background(), logger)
}

// dispatch decodes one wire event and routes it to the service. Handler
// errors are already reported to the client as typed events; they are
// logged here and never tear the connection down, except for
// authentication failures which close it themselves.
func (h *WSHandler) dispatch(c *hub.Client, raw []byte) {
	ctx := h.connContext(c)

	var base domain.BaseEvent
	if err := json.Unmarshal(raw, &base); err != nil {
		c.SendMessage(domain.NewErrorEvent(domain.ErrCodeBadRequest, "malformed event"))
		return
	}

	var err error
	switch base.Type {
	case domain.EventAuthenticate:
		var ev domain.AuthenticateEvent
		if err = json.Unmarshal(raw, &ev); err == nil {
			err = h.svc.HandleAuthenticate(ctx, c, ev.Token)
		}

	case domain.EventJoinJobRoom:
		var ev domain.JoinJobRoomEvent
		if err = json.Unmarshal(raw, &ev); err == nil {
			err = h.svc.HandleJoinRoom(ctx, c, ev.JobID)
		}

	case domain.EventLeaveJobRoom:
		var ev domain.LeaveJobRoomEvent
		if err = json.Unmarshal(raw, &ev); err == nil {
			err = h.svc.HandleLeaveRoom(ctx, c, ev.JobID)
		}

	case domain.EventSendMessage:
		var ev domain.SendMessageEvent
		if err = json.Unmarshal(raw, &ev); err == nil {
			err = h.svc.HandleSendMessage(ctx, c, &ev)
		}

	case domain.EventMarkRead:
		var ev domain.MarkReadEvent
		if err = json.Unmarshal(raw, &ev); err == nil {
			err = h.svc.HandleMarkRead(ctx, c, ev.MessageIDs)
		}

	case domain.EventTypingStart, domain.EventTypingStop:
		var ev domain.TypingEvent
		if err = json.Unmarshal(raw, &ev); err == nil {
			err = h.svc.HandleTyping(ctx, c, ev.JobID, base.Type)
		}

	case domain.EventUpdateStatus:
		var ev domain.UpdateStatusEvent
		if err = json.Unmarshal(raw, &ev); err == nil {
			err = h.svc.HandleUpdateStatus(ctx, c, ev.Status)
		}

	case domain.EventPing:
		var ev domain.PingEvent
		if err = json.Unmarshal(raw, &ev); err == nil {
			err = h.svc.HandlePing(ctx, c, ev.Timestamp)
		}

	default:
		c.SendMessage(domain.NewErrorEvent(domain.ErrCodeBadRequest, "unknown event type: "+base.Type))
		return
	}

	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("event_type", base.Type).Msg("event handling failed")
	}
}
