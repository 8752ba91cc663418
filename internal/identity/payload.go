package identity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oziev02/PostEngagement/internal/domain"
)

// Ключи, под которыми разные версии бэкенда присылают одни и те же поля
var (
	idKeys      = []string{"_id", "id"}
	authorKeys  = []string{"author", "user", "authorId", "userId"}
	contentKeys = []string{"content", "text"}
	sharesKeys  = []string{"shares", "sharesCount"}
)

type object map[string]json.RawMessage

func (o object) pick(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := o[k]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

func (o object) ref(keys ...string) (domain.UserID, error) {
	raw, ok := o.pick(keys...)
	if !ok {
		return "", nil
	}
	return Resolve(raw)
}

func (o object) id() (string, error) {
	id, err := o.ref(idKeys...)
	return string(id), err
}

func (o object) decode(dst any, keys ...string) error {
	raw, ok := o.pick(keys...)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", keys[0], err)
	}
	return nil
}

// DecodePost разбирает payload поста, нормализуя все ссылки на пользователей
func DecodePost(data []byte) (*domain.Post, error) {
	var o object
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode post: %w", err)
	}

	id, err := o.id()
	if err != nil {
		return nil, fmt.Errorf("failed to decode post id: %w", err)
	}
	author, err := o.ref(authorKeys...)
	if err != nil {
		return nil, fmt.Errorf("failed to decode post author: %w", err)
	}

	post := &domain.Post{
		ID:       id,
		AuthorID: author,
		Images:   []domain.Image{},
		Likes:    []domain.Like{},
		Comments: []domain.Comment{},
		Views:    []domain.UserID{},
	}

	if err := o.decode(&post.Content, contentKeys...); err != nil {
		return nil, err
	}
	if err := o.decode(&post.CreatedAt, "createdAt"); err != nil {
		return nil, err
	}
	if err := o.decode(&post.Shares, sharesKeys...); err != nil {
		return nil, err
	}

	if raw, ok := o.pick("images"); ok {
		if post.Images, err = decodeImages(raw); err != nil {
			return nil, err
		}
	}
	if raw, ok := o.pick("likes"); ok {
		if post.Likes, err = decodeLikes(raw); err != nil {
			return nil, err
		}
	}
	if raw, ok := o.pick("views"); ok {
		var refs []Ref
		if err := json.Unmarshal(raw, &refs); err != nil {
			return nil, fmt.Errorf("failed to decode views: %w", err)
		}
		for _, r := range refs {
			post.Views = append(post.Views, r.ID)
		}
	}
	if raw, ok := o.pick("comments"); ok {
		if post.Comments, err = decodeComments(raw, domain.DepthComment); err != nil {
			return nil, err
		}
	}

	return post, nil
}

// DecodeComment разбирает payload комментария; depth задается вызывающим,
// вложенные ответы получают depth+1.
func DecodeComment(data []byte, depth int) (*domain.Comment, error) {
	var o object
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode comment: %w", err)
	}
	return decodeCommentObject(o, depth)
}

func decodeCommentObject(o object, depth int) (*domain.Comment, error) {
	id, err := o.id()
	if err != nil {
		return nil, fmt.Errorf("failed to decode comment id: %w", err)
	}
	author, err := o.ref(authorKeys...)
	if err != nil {
		return nil, fmt.Errorf("failed to decode comment author: %w", err)
	}

	c := &domain.Comment{
		ID:       id,
		AuthorID: author,
		Likes:    []domain.Like{},
		Replies:  []domain.Comment{},
		Depth:    depth,
	}
	if err := o.decode(&c.Content, contentKeys...); err != nil {
		return nil, err
	}
	if err := o.decode(&c.CreatedAt, "createdAt"); err != nil {
		return nil, err
	}
	var updated time.Time
	if err := o.decode(&updated, "updatedAt"); err != nil {
		return nil, err
	}
	if !updated.IsZero() {
		c.UpdatedAt = &updated
	}

	if raw, ok := o.pick("likes"); ok {
		if c.Likes, err = decodeLikes(raw); err != nil {
			return nil, err
		}
	}
	if raw, ok := o.pick("replies"); ok {
		if c.Replies, err = decodeComments(raw, depth+1); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func decodeComments(raw json.RawMessage, depth int) ([]domain.Comment, error) {
	var items []object
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode comments: %w", err)
	}
	comments := make([]domain.Comment, 0, len(items))
	for _, item := range items {
		c, err := decodeCommentObject(item, depth)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, nil
}

// decodeLikes принимает как массив идентификаторов, так и массив объектов {user, createdAt}
func decodeLikes(raw json.RawMessage) ([]domain.Like, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode likes: %w", err)
	}

	likes := make([]domain.Like, 0, len(items))
	seen := make(map[domain.UserID]bool, len(items))
	for _, item := range items {
		var like domain.Like
		var o object
		if err := json.Unmarshal(item, &o); err == nil {
			user, err := o.ref("user", "userId", "userRef", "_id", "id")
			if err != nil {
				return nil, fmt.Errorf("failed to decode like: %w", err)
			}
			like.UserID = user
			if err := o.decode(&like.CreatedAt, "createdAt"); err != nil {
				return nil, err
			}
		} else {
			user, err := Resolve(item)
			if err != nil {
				return nil, fmt.Errorf("failed to decode like: %w", err)
			}
			like.UserID = user
		}

		// бэкенд может прислать дубль, лайк уникален по пользователю
		if like.UserID == "" || seen[like.UserID] {
			continue
		}
		seen[like.UserID] = true
		likes = append(likes, like)
	}
	return likes, nil
}

func decodeImages(raw json.RawMessage) ([]domain.Image, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}
	images := make([]domain.Image, 0, len(items))
	for _, item := range items {
		var url string
		if err := json.Unmarshal(item, &url); err == nil {
			images = append(images, domain.Image{URL: url})
			continue
		}
		var img domain.Image
		if err := json.Unmarshal(item, &img); err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		images = append(images, img)
	}
	return images, nil
}
