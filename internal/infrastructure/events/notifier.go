package events

import (
	"context"
	"log/slog"

	"github.com/oziev02/PostEngagement/internal/domain"
)

// LogNotifier пишет уведомления об откате в журнал
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier создает новый экземпляр LogNotifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// Notify записывает уведомление
func (n *LogNotifier) Notify(ctx context.Context, note domain.Notification) {
	n.logger.InfoContext(ctx, "user notified",
		"user", note.UserID,
		"kind", note.Kind,
		"post_id", note.PostID,
		"subject_id", note.SubjectID,
		"message", note.Message,
	)
}
