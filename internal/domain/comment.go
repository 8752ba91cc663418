package domain

import (
	"time"
)

// Глубина узлов дерева комментариев
const (
	// DepthComment - комментарий верхнего уровня, принадлежит посту
	DepthComment = 0
	// DepthReply - ответ на комментарий, максимальная глубина дерева
	DepthReply = 1
)

// Comment представляет комментарий или ответ в дереве.
// Узел не хранит ссылку на родителя: дерево обходится только сверху вниз.
type Comment struct {
	ID        string     `json:"id"`
	AuthorID  UserID     `json:"authorId"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Likes     []Like     `json:"likes"`
	Replies   []Comment  `json:"replies"`
	Depth     int        `json:"depth"`
}

// LikesCount возвращает количество лайков комментария
func (c *Comment) LikesCount() int {
	return len(c.Likes)
}

// IsLikedBy проверяет, лайкнул ли пользователь комментарий
func (c *Comment) IsLikedBy(user UserID) bool {
	return hasLike(c.Likes, user)
}

// ReplyPolicy определяет поведение при ответе на ответ
type ReplyPolicy string

const (
	// ReplyPolicyReject отклоняет ответ глубже DepthReply с ErrMaxDepthExceeded
	ReplyPolicyReject ReplyPolicy = "reject"
	// ReplyPolicyFlatten добавляет такой ответ к комментарию верхнего уровня
	ReplyPolicyFlatten ReplyPolicy = "flatten"
)
