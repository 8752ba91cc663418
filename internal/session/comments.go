package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oziev02/PostEngagement/internal/domain"
)

// TempIDPrefix - префикс id узлов, созданных до подтверждения бэкендом
const TempIDPrefix = "tmp-"

// IsTempID проверяет, что id временный
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// ContentEdit - примененная правка, достаточная для отката
type ContentEdit struct {
	PostID      string
	ID          string
	content     string
	prevContent string
	prevUpdated *time.Time
}

// Content возвращает примененный текст после нормализации
func (e ContentEdit) Content() string {
	return e.content
}

// Removal - примененное удаление поддерева
type Removal struct {
	PostID   string
	ParentID string
	ID       string
	removed  *removedNode
}

// Keys возвращает ключи всех удаленных узлов
func (r *Removal) Keys() []string {
	return r.removed.Keys()
}

// RepliesRemoved возвращает число удаленных вместе с узлом ответов
func (r *Removal) RepliesRemoved() int {
	return len(r.removed.nodes) - 1
}

func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", domain.ErrEmptyContent
	}
	return content, nil
}

func (st *State) newComment(author domain.UserID, content string) domain.Comment {
	return domain.Comment{
		ID:        TempIDPrefix + uuid.NewString(),
		AuthorID:  author,
		Content:   content,
		CreatedAt: st.now(),
		Likes:     []domain.Like{},
		Replies:   []domain.Comment{},
	}
}

// AddComment добавляет временный комментарий верхнего уровня
func (st *State) AddComment(postID string, author domain.UserID, content string) (domain.Comment, error) {
	if author == "" {
		return domain.Comment{}, domain.ErrUnauthorized
	}
	content, err := normalizeContent(content)
	if err != nil {
		return domain.Comment{}, err
	}
	if _, err := st.requirePost(postID); err != nil {
		return domain.Comment{}, err
	}

	c := st.newComment(author, content)
	c.Depth = domain.DepthComment
	st.tree.InsertComment(postID, c, true)
	st.ledger.Load(nodeKey(postID, c.ID), nil)
	return c, nil
}

// AddReply добавляет временный ответ. Возвращает ответ и id родителя,
// в replies которого он попал (при ReplyPolicyFlatten это предок верхнего уровня).
func (st *State) AddReply(postID, parentID string, author domain.UserID, content string) (domain.Comment, string, error) {
	if author == "" {
		return domain.Comment{}, "", domain.ErrUnauthorized
	}
	content, err := normalizeContent(content)
	if err != nil {
		return domain.Comment{}, "", err
	}
	if _, err := st.requirePost(postID); err != nil {
		return domain.Comment{}, "", err
	}

	parent, ok := st.tree.Parent(postID, parentID)
	if !ok {
		return domain.Comment{}, "", fmt.Errorf("%w: %s", domain.ErrParentNotFound, parentID)
	}
	if parent.pending {
		return domain.Comment{}, "", fmt.Errorf("%w: parent %s", domain.ErrPendingSubject, parentID)
	}

	if parent.depth >= domain.DepthReply {
		if st.policy != domain.ReplyPolicyFlatten {
			return domain.Comment{}, "", fmt.Errorf("%w: %s is already a reply", domain.ErrMaxDepthExceeded, parentID)
		}
		top, ok := st.tree.TopAncestor(postID, parentID)
		if !ok {
			return domain.Comment{}, "", fmt.Errorf("%w: %s", domain.ErrParentNotFound, parentID)
		}
		parent = top
	}

	c := st.newComment(author, content)
	c.Depth = parent.depth + 1
	st.tree.InsertReply(postID, parent, c, true)
	st.ledger.Load(nodeKey(postID, c.ID), nil)
	return c, parent.id, nil
}

// ConfirmCreated заменяет временный узел подтвержденным: id, содержимое и время берутся у бэкенда.
// Если узел с настоящим id уже пришел со снимком, временный просто удаляется.
func (st *State) ConfirmCreated(postID, parentID, tempID string, confirmed *domain.Comment) {
	if _, exists := st.tree.lookup(postID, confirmed.ID); exists && confirmed.ID != tempID {
		st.DiscardCreated(postID, parentID, tempID)
		return
	}

	n, ok := st.tree.lookup(postID, tempID)
	if !ok {
		return
	}
	if confirmed.ID != "" && confirmed.ID != tempID {
		st.tree.Rename(postID, parentID, tempID, confirmed.ID)
		st.ledger.Rename(nodeKey(postID, tempID), nodeKey(postID, confirmed.ID))
	}
	n.pending = false
	if confirmed.Content != "" {
		n.content = confirmed.Content
	}
	if !confirmed.CreatedAt.IsZero() {
		n.createdAt = confirmed.CreatedAt
	}
	if confirmed.AuthorID != "" {
		n.authorID = confirmed.AuthorID
	}
}

// DiscardCreated удаляет именно этот временный узел
func (st *State) DiscardCreated(postID, parentID, tempID string) {
	if r, ok := st.tree.Remove(postID, parentID, tempID); ok {
		st.ledger.Drop(r.Keys()...)
	}
}

// ReinsertCreated возвращает временный узел после Load, если снимок его не содержит
func (st *State) ReinsertCreated(postID, parentID string, c domain.Comment) {
	if !st.HasPost(postID) {
		return
	}
	if _, exists := st.tree.lookup(postID, c.ID); exists {
		return
	}
	if parentID == "" {
		st.tree.InsertComment(postID, c, true)
	} else {
		parent, ok := st.tree.Parent(postID, parentID)
		if !ok {
			return
		}
		st.tree.InsertReply(postID, parent, c, true)
	}
	st.ledger.Load(nodeKey(postID, c.ID), nil)
}

// Comment материализует один узел вместе с ответами
func (st *State) Comment(postID, id string) (domain.Comment, bool) {
	if _, ok := st.tree.lookup(postID, id); !ok {
		return domain.Comment{}, false
	}
	return st.tree.materialize(postID, []string{id}, st.ledger)[0], true
}

// target находит цель правки или удаления: в replies родителя или среди верхнего уровня
func (st *State) target(postID, parentID, id string) (*node, bool) {
	if parentID != "" {
		return st.tree.Reply(postID, parentID, id)
	}
	return st.tree.Top(postID, id)
}

// EditComment меняет содержимое узла. Править может только автор.
func (st *State) EditComment(postID, parentID, id string, editor domain.UserID, content string) (ContentEdit, error) {
	if editor == "" {
		return ContentEdit{}, domain.ErrUnauthorized
	}
	content, err := normalizeContent(content)
	if err != nil {
		return ContentEdit{}, err
	}
	if _, err := st.requirePost(postID); err != nil {
		return ContentEdit{}, err
	}

	n, ok := st.target(postID, parentID, id)
	if !ok {
		return ContentEdit{}, fmt.Errorf("%w: %s", domain.ErrCommentNotFound, id)
	}
	if n.pending {
		return ContentEdit{}, fmt.Errorf("%w: %s", domain.ErrPendingSubject, id)
	}
	if n.authorID != editor {
		return ContentEdit{}, domain.ErrForbidden
	}

	edit := ContentEdit{PostID: postID, ID: id, content: content, prevContent: n.content, prevUpdated: n.updatedAt}
	now := st.now()
	n.content = content
	n.updatedAt = &now
	return edit, nil
}

// SetContent применяет содержимое без проверок (подтверждение или повтор после Load)
func (st *State) SetContent(postID, id, content string, updatedAt *time.Time) {
	if n, ok := st.tree.lookup(postID, id); ok {
		n.content = content
		if updatedAt != nil {
			u := *updatedAt
			n.updatedAt = &u
		}
	}
}

// RevertEdit возвращает содержимое до правки
func (st *State) RevertEdit(e ContentEdit) {
	if n, ok := st.tree.lookup(e.PostID, e.ID); ok {
		n.content = e.prevContent
		n.updatedAt = e.prevUpdated
	}
}

// DeleteComment удаляет узел; у комментария верхнего уровня вместе с ответами.
// found=false означает, что узла уже нет: это не ошибка.
func (st *State) DeleteComment(postID, parentID, id string, requester domain.UserID) (*Removal, bool, error) {
	if requester == "" {
		return nil, false, domain.ErrUnauthorized
	}
	if !st.HasPost(postID) {
		return nil, false, nil
	}

	n, ok := st.target(postID, parentID, id)
	if !ok {
		return nil, false, nil
	}
	if n.pending {
		return nil, false, fmt.Errorf("%w: %s", domain.ErrPendingSubject, id)
	}
	if n.authorID != requester {
		return nil, false, domain.ErrForbidden
	}

	return st.removeNode(postID, parentID, id), true, nil
}

// PruneComment удаляет узел, исчезнувший на бэкенде
func (st *State) PruneComment(postID, parentID, id string) {
	st.removeNode(postID, parentID, id)
}

func (st *State) removeNode(postID, parentID, id string) *Removal {
	removed, ok := st.tree.Remove(postID, parentID, id)
	if !ok {
		return nil
	}
	keys := removed.Keys()
	removed.likes = st.ledger.Export(keys...)
	st.ledger.Drop(keys...)
	return &Removal{PostID: postID, ParentID: parentID, ID: id, removed: removed}
}

// RestoreRemoval возвращает удаленное поддерево и его лайки
func (st *State) RestoreRemoval(r *Removal) bool {
	if r == nil || !st.HasPost(r.PostID) {
		return false
	}
	if _, exists := st.tree.lookup(r.PostID, r.ID); exists {
		return false
	}
	if !st.tree.Restore(r.removed) {
		return false
	}
	st.ledger.Import(r.removed.likes)
	return true
}

// ReapplyRemoval повторяет удаление после Load
func (st *State) ReapplyRemoval(r *Removal) {
	if removed, ok := st.tree.Remove(r.PostID, r.ParentID, r.ID); ok {
		st.ledger.Drop(removed.Keys()...)
	}
}

// ResolveSubject проверяет, что субъект лайка существует и подтвержден
func (st *State) ResolveSubject(ref domain.SubjectRef) error {
	if _, err := st.requirePost(ref.PostID); err != nil {
		return err
	}

	var (
		n  *node
		ok bool
	)
	switch ref.Kind {
	case domain.SubjectPost:
		return nil
	case domain.SubjectComment:
		n, ok = st.tree.Top(ref.PostID, ref.ID)
	case domain.SubjectReply:
		n, ok = st.tree.Reply(ref.PostID, ref.ParentID, ref.ID)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrCommentNotFound, ref)
	}
	if n.pending {
		return fmt.Errorf("%w: %s", domain.ErrPendingSubject, ref)
	}
	return nil
}

// ToggleLike переключает лайк владельца сессии на субъекте
func (st *State) ToggleLike(ref domain.SubjectRef) (LikeToggle, error) {
	if st.user == "" {
		return LikeToggle{}, domain.ErrUnauthorized
	}
	if err := st.ResolveSubject(ref); err != nil {
		return LikeToggle{}, err
	}
	return st.ledger.Toggle(ref.Key(), st.user, st.now())
}

// PruneSubject удаляет из сессии субъект, исчезнувший на бэкенде
func (st *State) PruneSubject(ref domain.SubjectRef) {
	switch ref.Kind {
	case domain.SubjectPost:
		st.PrunePost(ref.PostID)
	case domain.SubjectComment:
		st.PruneComment(ref.PostID, "", ref.ID)
	case domain.SubjectReply:
		st.PruneComment(ref.PostID, ref.ParentID, ref.ID)
	}
}
