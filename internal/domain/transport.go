package domain

import "context"

// LikeResult - ответ бэкенда на переключение лайка
type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likesCount"`
}

// ShareResult - ответ бэкенда на репост
type ShareResult struct {
	SharesCount int `json:"sharesCount"`
}

// Transport определяет интерфейс авторитетного бэкенда.
// Личность вызывающего передается через context (см. пакет identity).
type Transport interface {
	GetPost(ctx context.Context, postID string) (*Post, error)

	TogglePostLike(ctx context.Context, postID string) (LikeResult, error)
	ToggleCommentLike(ctx context.Context, postID, commentID string) (LikeResult, error)
	ToggleReplyLike(ctx context.Context, postID, parentID, replyID string) (LikeResult, error)

	AddComment(ctx context.Context, postID, content string) (*Comment, error)
	AddReply(ctx context.Context, postID, parentID, content string) (*Comment, error)
	EditComment(ctx context.Context, postID, commentID, content string) (*Comment, error)
	EditReply(ctx context.Context, postID, parentID, replyID, content string) (*Comment, error)
	DeleteComment(ctx context.Context, postID, commentID string) error
	DeleteReply(ctx context.Context, postID, parentID, replyID string) error

	SharePost(ctx context.Context, postID string) (ShareResult, error)
	RegisterView(ctx context.Context, postID string) error
}
