package audit

import (
	"context"

	"github.com/hirewire/chat-service/pkg/log"
)

// Action names the auditable chat operations.
type Action string

const (
	ActionAuth        Action = "chat.auth"
	ActionAuthFailed  Action = "chat.auth_failed"
	ActionJoinRoom    Action = "chat.join_room"
	ActionLeaveRoom   Action = "chat.leave_room"
	ActionSendMessage Action = "chat.send_message"
	ActionMarkRead    Action = "chat.mark_read"
	ActionDisconnect  Action = "chat.disconnect"
)

// Log emits a structured audit record. Audit entries ride the regular
// log pipeline, tagged so downstream filters can split them out.
func Log(ctx context.Context, action Action, userID, detail string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str("action", string(action)).
		Str(log.FieldUserID, userID).
		Msg(detail)
}

// LogWithDetail adds a reference (a message id, a role) to the record.
func LogWithDetail(ctx context.Context, action Action, userID, ref, detail string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str("action", string(action)).
		Str(log.FieldUserID, userID).
		Str("ref", ref).
		Msg(detail)
}
