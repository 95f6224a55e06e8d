package notify

import (
	"context"

	"github.com/hirewire/chat-service/pkg/log"
)

// LogNotifier writes notifications to the log. Used when Kafka is
// disabled (local development, single-instance deployments).
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, notification *Notification) error {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldUserID, notification.UserID).
		Str("notification_type", notification.Type).
		Str("title", notification.Title).
		Msg("notification emitted")
	return nil
}

func (n *LogNotifier) Close() error {
	return nil
}
