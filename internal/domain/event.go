package domain

import (
	"context"
	"time"
)

// MutationKind - вид пользовательской мутации
type MutationKind string

const (
	MutationLike    MutationKind = "like"
	MutationComment MutationKind = "comment"
	MutationReply   MutationKind = "reply"
	MutationEdit    MutationKind = "edit"
	MutationDelete  MutationKind = "delete"
	MutationShare   MutationKind = "share"
	MutationView    MutationKind = "view"
)

// EngagementEvent описывает подтвержденную бэкендом мутацию
type EngagementEvent struct {
	ID         string       `json:"id"`
	Kind       MutationKind `json:"kind"`
	UserID     UserID       `json:"userId"`
	PostID     string       `json:"postId"`
	ParentID   string       `json:"parentId,omitempty"`
	SubjectID  string       `json:"subjectId"`
	Liked      *bool        `json:"liked,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// EventPublisher передает подтвержденные события внешнему потребителю (уведомления)
type EventPublisher interface {
	Publish(ctx context.Context, event EngagementEvent) error
}

// Notification - сообщение пользователю об откате мутации
type Notification struct {
	ID         string       `json:"id"`
	UserID     UserID       `json:"userId"`
	Kind       MutationKind `json:"kind"`
	PostID     string       `json:"postId"`
	SubjectID  string       `json:"subjectId"`
	Message    string       `json:"message"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// Notifier показывает пользователю ошибку синхронизации
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
