package session

import (
	"slices"
	"time"

	"github.com/oziev02/PostEngagement/internal/domain"
)

// likeEntry хранит лайки субъекта. Счетчик всегда выводится из набора.
type likeEntry struct {
	likes []domain.Like
}

// LikeToggle - примененное переключение лайка, достаточное для точного отката
type LikeToggle struct {
	Key   string
	User  domain.UserID
	Liked bool
	// like и index заполнены, когда переключение сняло лайк
	like  domain.Like
	index int
}

// LikeLedger отслеживает лайки по паре (субъект, пользователь)
type LikeLedger struct {
	entries map[string]*likeEntry
}

// NewLikeLedger создает новый экземпляр LikeLedger
func NewLikeLedger() *LikeLedger {
	return &LikeLedger{entries: make(map[string]*likeEntry)}
}

// Load заменяет лайки субъекта
func (l *LikeLedger) Load(key string, likes []domain.Like) {
	entry := &likeEntry{likes: make([]domain.Like, 0, len(likes))}
	for _, like := range likes {
		if like.UserID == "" || indexOf(entry.likes, like.UserID) >= 0 {
			continue
		}
		entry.likes = append(entry.likes, like)
	}
	l.entries[key] = entry
}

func (l *LikeLedger) entry(key string) *likeEntry {
	e, ok := l.entries[key]
	if !ok {
		e = &likeEntry{likes: []domain.Like{}}
		l.entries[key] = e
	}
	return e
}

// Toggle переключает лайк пользователя на субъекте
func (l *LikeLedger) Toggle(key string, user domain.UserID, at time.Time) (LikeToggle, error) {
	if user == "" {
		return LikeToggle{}, domain.ErrUnauthorized
	}

	e := l.entry(key)
	t := LikeToggle{Key: key, User: user}
	if i := indexOf(e.likes, user); i >= 0 {
		t.like = e.likes[i]
		t.index = i
		e.likes = slices.Delete(e.likes, i, i+1)
		return t, nil
	}

	e.likes = append(e.likes, domain.Like{UserID: user, CreatedAt: at})
	t.Liked = true
	return t, nil
}

// Revert применяет обратное переключение: снятый лайк возвращается на прежнее место
// с прежним временем, поставленный снимается.
func (l *LikeLedger) Revert(t LikeToggle) {
	e := l.entry(t.Key)
	i := indexOf(e.likes, t.User)

	if t.Liked {
		if i >= 0 {
			e.likes = slices.Delete(e.likes, i, i+1)
		}
		return
	}

	if i < 0 {
		pos := min(t.index, len(e.likes))
		e.likes = slices.Insert(e.likes, pos, t.like)
	}
}

// Set приводит лайк пользователя к нужному состоянию, возвращает true при изменении
func (l *LikeLedger) Set(key string, user domain.UserID, liked bool, at time.Time) bool {
	e := l.entry(key)
	i := indexOf(e.likes, user)
	switch {
	case liked && i < 0:
		e.likes = append(e.likes, domain.Like{UserID: user, CreatedAt: at})
		return true
	case !liked && i >= 0:
		e.likes = slices.Delete(e.likes, i, i+1)
		return true
	}
	return false
}

// Confirm применяет авторитетное состояние лайка вызывающего
func (l *LikeLedger) Confirm(key string, user domain.UserID, liked bool, at time.Time) {
	l.Set(key, user, liked, at)
}

// Has проверяет, стоит ли лайк пользователя на субъекте
func (l *LikeLedger) Has(key string, user domain.UserID) bool {
	e, ok := l.entries[key]
	return ok && indexOf(e.likes, user) >= 0
}

// Count возвращает число лайков субъекта
func (l *LikeLedger) Count(key string) int {
	if e, ok := l.entries[key]; ok {
		return len(e.likes)
	}
	return 0
}

// Likes возвращает копию лайков субъекта
func (l *LikeLedger) Likes(key string) []domain.Like {
	e, ok := l.entries[key]
	if !ok {
		return []domain.Like{}
	}
	return slices.Clone(e.likes)
}

// Rename переносит лайки на новый ключ (временный id заменен настоящим)
func (l *LikeLedger) Rename(oldKey, newKey string) {
	if e, ok := l.entries[oldKey]; ok {
		delete(l.entries, oldKey)
		l.entries[newKey] = e
	}
}

// Drop удаляет лайки субъектов
func (l *LikeLedger) Drop(keys ...string) {
	for _, k := range keys {
		delete(l.entries, k)
	}
}

// Export возвращает копии записей для последующего Import (откат удаления)
func (l *LikeLedger) Export(keys ...string) map[string]likeEntry {
	out := make(map[string]likeEntry, len(keys))
	for _, k := range keys {
		if e, ok := l.entries[k]; ok {
			out[k] = likeEntry{likes: slices.Clone(e.likes)}
		}
	}
	return out
}

// Import восстанавливает записи, сохраненные Export
func (l *LikeLedger) Import(entries map[string]likeEntry) {
	for k, e := range entries {
		l.entries[k] = &likeEntry{likes: slices.Clone(e.likes)}
	}
}

func indexOf(likes []domain.Like, user domain.UserID) int {
	return slices.IndexFunc(likes, func(l domain.Like) bool {
		return l.UserID == user
	})
}
