// Package ordering строит упорядоченное и отфильтрованное представление
// списка комментариев, не изменяя исходный список.
package ordering

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/oziev02/PostEngagement/internal/domain"
)

// Mode - режим сортировки
type Mode string

const (
	Newest    Mode = "newest"
	Oldest    Mode = "oldest"
	MostLiked Mode = "most-liked"
)

// DefaultPageSize - размер страницы по умолчанию
const DefaultPageSize = 50

// ErrUnknownMode - неизвестный режим сортировки
var ErrUnknownMode = errors.New("unknown sort mode")

// ParseMode разбирает режим сортировки; пустая строка дает Newest
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return Newest, nil
	case Newest, Oldest, MostLiked:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownMode, s)
	}
}

// Filter содержит параметры фильтрации и пагинации
type Filter struct {
	Mode     Mode
	AuthorID domain.UserID
	Search   string
	Page     int
	PageSize int
}

// Page - страница результата
type Page struct {
	Comments []domain.Comment `json:"comments"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// Order возвращает новый срез, упорядоченный по режиму.
// Элементы не копируются глубоко, но исходный срез не меняется.
func Order(comments []domain.Comment, mode Mode) []domain.Comment {
	out := slices.Clone(comments)
	if out == nil {
		out = []domain.Comment{}
	}
	slices.SortStableFunc(out, compare(mode))
	return out
}

func compare(mode Mode) func(a, b domain.Comment) int {
	newest := func(a, b domain.Comment) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	}
	switch mode {
	case Oldest:
		return func(a, b domain.Comment) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	case MostLiked:
		return func(a, b domain.Comment) int {
			if c := cmp.Compare(len(b.Likes), len(a.Likes)); c != 0 {
				return c
			}
			return newest(a, b)
		}
	default:
		return newest
	}
}

// Apply фильтрует, сортирует и разбивает комментарии на страницы.
// Комментарий верхнего уровня проходит поиск, если совпал он сам или любой его ответ.
func Apply(comments []domain.Comment, f Filter) Page {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	matched := lo.Filter(comments, func(c domain.Comment, _ int) bool {
		if f.AuthorID != "" && c.AuthorID != f.AuthorID {
			return false
		}
		return search == "" || matches(c, search)
	})

	ordered := Order(matched, f.Mode)

	// Номер страницы сверяется до умножения: большие page и page_size не переполняют смещение
	page := []domain.Comment{}
	if n := len(ordered); n > 0 && f.Page-1 <= (n-1)/f.PageSize {
		start := (f.Page - 1) * f.PageSize
		page = ordered[start : start+min(f.PageSize, n-start)]
	}

	return Page{
		Comments: page,
		Total:    len(ordered),
		Page:     f.Page,
		PageSize: f.PageSize,
	}
}

func matches(c domain.Comment, search string) bool {
	if strings.Contains(strings.ToLower(c.Content), search) {
		return true
	}
	return lo.ContainsBy(c.Replies, func(r domain.Comment) bool {
		return matches(r, search)
	})
}
