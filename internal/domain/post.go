package domain

import "time"

// UserID - каноничный идентификатор пользователя после Identity Resolver
type UserID string

// Image - изображение поста, ядро передает его без изменений
type Image struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// Like - отметка "нравится" одного пользователя на одном субъекте
type Like struct {
	UserID    UserID    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Post представляет пост с его вовлеченностью
type Post struct {
	ID        string    `json:"id"`
	AuthorID  UserID    `json:"authorId"`
	Content   string    `json:"content"`
	Images    []Image   `json:"images"`
	CreatedAt time.Time `json:"createdAt"`
	Likes     []Like    `json:"likes"`
	Comments  []Comment `json:"comments"`
	Shares    int       `json:"shares"`
	Views     []UserID  `json:"views"`
}

// LikesCount возвращает количество лайков поста
func (p *Post) LikesCount() int {
	return len(p.Likes)
}

// CommentsCount возвращает количество комментариев верхнего уровня
func (p *Post) CommentsCount() int {
	return len(p.Comments)
}

// IsLikedBy проверяет, лайкнул ли пользователь пост
func (p *Post) IsLikedBy(user UserID) bool {
	return hasLike(p.Likes, user)
}

func hasLike(likes []Like, user UserID) bool {
	for _, l := range likes {
		if l.UserID == user {
			return true
		}
	}
	return false
}
