package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hirewire/chat-service/internal/domain"
	"github.com/hirewire/chat-service/internal/middleware"
	"github.com/hirewire/chat-service/internal/policy"
	"github.com/hirewire/chat-service/internal/presence"
	"github.com/hirewire/chat-service/internal/service"
	"github.com/hirewire/chat-service/internal/store"
	"github.com/hirewire/chat-service/pkg/log"
	"github.com/hirewire/chat-service/pkg/response"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// HTTPHandler is the synchronous REST companion to the websocket
// surface: history, unread counts, room previews and an HTTP send path
// for clients without a live connection.
type HTTPHandler struct {
	store    store.MessageStore
	policy   *policy.AccessPolicy
	svc      service.ChatService
	presence presence.Store
}

// NewHTTPHandler creates the REST handler.
func NewHTTPHandler(msgStore store.MessageStore, accessPolicy *policy.AccessPolicy, svc service.ChatService, presenceStore presence.Store) *HTTPHandler {
	return &HTTPHandler{store: msgStore, policy: accessPolicy, svc: svc, presence: presenceStore}
}

// RegisterRoutes mounts the REST surface. All /api/v1 routes require the
// bearer auth middleware.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine, auth gin.HandlerFunc) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1", auth)
	api.GET("/jobs/:job_id/messages", h.ListMessages)
	api.POST("/jobs/:job_id/messages", h.PostMessage)
	api.GET("/jobs/:job_id/messages/search", h.SearchMessages)
	api.POST("/messages/read", h.MarkRead)
	api.GET("/messages/unread-count", h.UnreadCount)
	api.DELETE("/messages/:message_id", h.DeleteMessage)
	api.GET("/chat-rooms", h.ListRooms)
	api.GET("/users/:user_id/status", h.UserStatus)
}

// Health handles GET /health.
func (h *HTTPHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "healthy", "service": "chat-service"})
}

// authorizeJob runs the access policy for a job-scoped route. It writes
// the error response itself and reports whether the caller may proceed.
func (h *HTTPHandler) authorizeJob(c *gin.Context, jobID string) bool {
	_, err := h.policy.Authorize(c.Request.Context(), middleware.UserID(c), jobID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, policy.ErrJobNotFound):
		response.Error(c, http.StatusNotFound, domain.ErrCodeJobNotFound, "job not found")
	case errors.Is(err, policy.ErrNotParticipant):
		response.Error(c, http.StatusForbidden, domain.ErrCodeNotParticipant, "you are not a participant of this job")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldJobID, jobID).Msg("access policy lookup failed")
		response.InternalError(c, "authorization check failed")
	}
	return false
}

// ListMessages handles GET /api/v1/jobs/:job_id/messages.
// Query: cursor (opaque, from a previous page), limit, direction
// (backward|forward, default backward).
func (h *HTTPHandler) ListMessages(c *gin.Context) {
	jobID := c.Param("job_id")
	if !h.authorizeJob(c, jobID) {
		return
	}

	limit := parseLimit(c.Query("limit"))
	dir := store.ParseDirection(c.Query("direction"))

	messages, nextCursor, hasMore, err := h.store.ListByJob(c.Request.Context(), jobID, c.Query("cursor"), limit, dir)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldJobID, jobID).Msg("failed to list messages")
		response.InternalError(c, "failed to load message history")
		return
	}

	response.Success(c, gin.H{
		"messages":    messages,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

type postMessageRequest struct {
	Content     string             `json:"content"`
	MessageType domain.MessageType `json:"message_type"`
	Attachment  *domain.Attachment `json:"attachment"`
}

// PostMessage handles POST /api/v1/jobs/:job_id/messages.
func (h *HTTPHandler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	msg, err := h.svc.PostMessage(c.Request.Context(), middleware.UserID(c), &domain.SendMessageEvent{
		JobID:       c.Param("job_id"),
		Content:     req.Content,
		MessageType: req.MessageType,
		Attachment:  req.Attachment,
	})
	if err != nil {
		switch {
		case errors.Is(err, policy.ErrJobNotFound):
			response.Error(c, http.StatusNotFound, domain.ErrCodeJobNotFound, "job not found")
		case errors.Is(err, policy.ErrNotParticipant):
			response.Error(c, http.StatusForbidden, domain.ErrCodeNotParticipant, "you are not a participant of this job")
		case domain.IsValidationError(err):
			response.UnprocessableEntity(c, err.Error())
		default:
			l := log.Ctx(c.Request.Context())
			l.Error().Err(err).Msg("failed to post message")
			response.Error(c, http.StatusInternalServerError, domain.ErrCodePersistenceFailed, "message could not be saved")
		}
		return
	}

	response.Created(c, msg)
}

type markReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

// MarkRead handles POST /api/v1/messages/read.
func (h *HTTPHandler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.MessageIDs) == 0 {
		response.BadRequest(c, "message_ids is required")
		return
	}

	marked, err := h.svc.MarkMessagesRead(c.Request.Context(), middleware.UserID(c), req.MessageIDs)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to mark messages read")
		response.Error(c, http.StatusInternalServerError, domain.ErrCodePersistenceFailed, "could not mark messages read")
		return
	}

	response.Success(c, gin.H{"marked_ids": marked})
}

// UnreadCount handles GET /api/v1/messages/unread-count. With a job_id
// query it scopes to one job, otherwise it totals across all of the
// user's jobs.
func (h *HTTPHandler) UnreadCount(c *gin.Context) {
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	if jobID := c.Query("job_id"); jobID != "" {
		if !h.authorizeJob(c, jobID) {
			return
		}
		count, err := h.store.UnreadCount(ctx, jobID, userID)
		if err != nil {
			response.InternalError(c, "failed to count unread messages")
			return
		}
		response.Success(c, gin.H{"unread_count": count, "job_id": jobID})
		return
	}

	count, err := h.store.UnreadTotal(ctx, userID)
	if err != nil {
		response.InternalError(c, "failed to count unread messages")
		return
	}
	response.Success(c, gin.H{"unread_count": count})
}

// DeleteMessage handles DELETE /api/v1/messages/:message_id. Users may
// only delete their own messages.
func (h *HTTPHandler) DeleteMessage(c *gin.Context) {
	messageID := c.Param("message_id")

	err := h.store.DeleteOwn(c.Request.Context(), messageID, middleware.UserID(c))
	switch {
	case err == nil:
		response.Success(c, gin.H{"deleted": messageID})
	case errors.Is(err, store.ErrMessageNotFound):
		response.Error(c, http.StatusNotFound, domain.ErrCodeMessageNotFound, "message not found")
	case errors.Is(err, store.ErrNotMessageOwner):
		response.Forbidden(c, "you can only delete your own messages")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldMessageID, messageID).Msg("failed to delete message")
		response.InternalError(c, "failed to delete message")
	}
}

// ListRooms handles GET /api/v1/chat-rooms.
func (h *HTTPHandler) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to list chat rooms")
		response.InternalError(c, "failed to load chat rooms")
		return
	}
	response.Success(c, gin.H{"rooms": rooms})
}

// UserStatus handles GET /api/v1/users/:user_id/status. It reads the
// durable presence record, so last-seen survives chat-service restarts.
func (h *HTTPHandler) UserStatus(c *gin.Context) {
	userID := c.Param("user_id")

	status, err := h.presence.GetStatus(c.Request.Context(), userID)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to read presence status")
		response.InternalError(c, "failed to load user status")
		return
	}

	response.Success(c, status)
}

// SearchMessages handles GET /api/v1/jobs/:job_id/messages/search?q=.
func (h *HTTPHandler) SearchMessages(c *gin.Context) {
	jobID := c.Param("job_id")
	query := c.Query("q")
	if query == "" {
		response.BadRequest(c, "q is required")
		return
	}
	if !h.authorizeJob(c, jobID) {
		return
	}

	messages, err := h.store.Search(c.Request.Context(), jobID, query, parseLimit(c.Query("limit")))
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldJobID, jobID).Msg("message search failed")
		response.InternalError(c, "search failed")
		return
	}

	response.Success(c, gin.H{"messages": messages, "query": query})
}

func parseLimit(s string) int {
	limit, err := strconv.Atoi(s)
	if err != nil || limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
