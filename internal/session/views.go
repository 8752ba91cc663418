package session

import (
	"slices"

	"github.com/oziev02/PostEngagement/internal/domain"
)

// ViewCounter хранит просмотры: не больше одного на пару (пост, пользователь)
type ViewCounter struct {
	views map[string][]domain.UserID
}

// NewViewCounter создает новый экземпляр ViewCounter
func NewViewCounter() *ViewCounter {
	return &ViewCounter{views: make(map[string][]domain.UserID)}
}

// Load заменяет просмотры поста, повторы отбрасываются
func (v *ViewCounter) Load(postID string, views []domain.UserID) {
	list := make([]domain.UserID, 0, len(views))
	for _, u := range views {
		if u != "" && !slices.Contains(list, u) {
			list = append(list, u)
		}
	}
	v.views[postID] = list
}

// Register добавляет просмотр, false - пользователь уже учтен
func (v *ViewCounter) Register(postID string, user domain.UserID) bool {
	if slices.Contains(v.views[postID], user) {
		return false
	}
	v.views[postID] = append(v.views[postID], user)
	return true
}

// Unregister убирает просмотр, добавленный неподтвержденной мутацией
func (v *ViewCounter) Unregister(postID string, user domain.UserID) {
	list := v.views[postID]
	if i := slices.Index(list, user); i >= 0 {
		v.views[postID] = slices.Delete(list, i, i+1)
	}
}

// Has проверяет, учтен ли просмотр пользователя
func (v *ViewCounter) Has(postID string, user domain.UserID) bool {
	return slices.Contains(v.views[postID], user)
}

// List возвращает копию просмотров поста
func (v *ViewCounter) List(postID string) []domain.UserID {
	if list, ok := v.views[postID]; ok {
		return slices.Clone(list)
	}
	return []domain.UserID{}
}

// Drop удаляет просмотры поста
func (v *ViewCounter) Drop(postID string) {
	delete(v.views, postID)
}
