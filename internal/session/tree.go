package session

import (
	"slices"
	"time"

	"github.com/oziev02/PostEngagement/internal/domain"
)

// node - узел арены. Родитель не хранится: ответы принадлежат списку replies
// родителя, а операции над ответом получают id родителя от вызывающего.
type node struct {
	id        string
	postID    string
	authorID  domain.UserID
	content   string
	createdAt time.Time
	updatedAt *time.Time
	depth     int
	replies   []string
	pending   bool
}

// removedNode - удаленное поддерево и его позиция, достаточные для восстановления
type removedNode struct {
	postID   string
	parentID string
	index    int
	nodes    []node
	likes    map[string]likeEntry
}

// Keys возвращает ключи всех удаленных узлов
func (r *removedNode) Keys() []string {
	keys := make([]string, 0, len(r.nodes))
	for _, n := range r.nodes {
		keys = append(keys, nodeKey(n.postID, n.id))
	}
	return keys
}

// CommentTree - арена комментариев с поиском по id за O(1)
type CommentTree struct {
	nodes map[string]*node
	roots map[string][]string // post id -> id комментариев верхнего уровня
}

// NewCommentTree создает новый экземпляр CommentTree
func NewCommentTree() *CommentTree {
	return &CommentTree{
		nodes: make(map[string]*node),
		roots: make(map[string][]string),
	}
}

func nodeKey(postID, id string) string {
	return domain.CommentSubject(postID, id).Key()
}

func newNode(postID string, c domain.Comment, depth int, pending bool) *node {
	return &node{
		id:        c.ID,
		postID:    postID,
		authorID:  c.AuthorID,
		content:   c.Content,
		createdAt: c.CreatedAt,
		updatedAt: c.UpdatedAt,
		depth:     depth,
		replies:   []string{},
		pending:   pending,
	}
}

// InsertComment добавляет комментарий верхнего уровня в конец списка поста
func (t *CommentTree) InsertComment(postID string, c domain.Comment, pending bool) {
	n := newNode(postID, c, domain.DepthComment, pending)
	t.nodes[nodeKey(postID, c.ID)] = n
	t.roots[postID] = append(t.roots[postID], c.ID)
}

// InsertReply добавляет ответ в конец списка replies родителя
func (t *CommentTree) InsertReply(postID string, parent *node, c domain.Comment, pending bool) {
	n := newNode(postID, c, parent.depth+1, pending)
	t.nodes[nodeKey(postID, c.ID)] = n
	parent.replies = append(parent.replies, c.ID)
}

func (t *CommentTree) lookup(postID, id string) (*node, bool) {
	n, ok := t.nodes[nodeKey(postID, id)]
	return n, ok
}

// Top находит комментарий верхнего уровня
func (t *CommentTree) Top(postID, id string) (*node, bool) {
	n, ok := t.lookup(postID, id)
	if !ok || n.depth != domain.DepthComment {
		return nil, false
	}
	return n, true
}

// Reply находит ответ в списке replies указанного родителя
func (t *CommentTree) Reply(postID, parentID, id string) (*node, bool) {
	parent, ok := t.lookup(postID, parentID)
	if !ok || !slices.Contains(parent.replies, id) {
		return nil, false
	}
	return t.lookup(postID, id)
}

// Parent находит узел, который может быть родителем ответа (глубина 0 или 1)
func (t *CommentTree) Parent(postID, id string) (*node, bool) {
	n, ok := t.lookup(postID, id)
	if !ok || n.depth > domain.DepthReply {
		return nil, false
	}
	return n, true
}

// TopAncestor находит комментарий верхнего уровня, в replies которого лежит ответ
func (t *CommentTree) TopAncestor(postID, replyID string) (*node, bool) {
	for _, id := range t.roots[postID] {
		n := t.nodes[nodeKey(postID, id)]
		if slices.Contains(n.replies, replyID) {
			return n, true
		}
	}
	return nil, false
}

// Remove удаляет узел вместе с поддеревом. parentID пустой для верхнего уровня.
func (t *CommentTree) Remove(postID, parentID, id string) (*removedNode, bool) {
	var siblings *[]string
	if parentID == "" {
		list := t.roots[postID]
		siblings = &list
	} else {
		parent, ok := t.lookup(postID, parentID)
		if !ok {
			return nil, false
		}
		siblings = &parent.replies
	}

	index := slices.Index(*siblings, id)
	if index < 0 {
		return nil, false
	}
	*siblings = slices.Delete(*siblings, index, index+1)
	if parentID == "" {
		t.roots[postID] = *siblings
	}

	removed := &removedNode{postID: postID, parentID: parentID, index: index}
	t.collect(postID, id, removed)
	for _, n := range removed.nodes {
		delete(t.nodes, nodeKey(postID, n.id))
	}
	return removed, true
}

func (t *CommentTree) collect(postID, id string, into *removedNode) {
	n, ok := t.lookup(postID, id)
	if !ok {
		return
	}
	cp := *n
	cp.replies = slices.Clone(n.replies)
	into.nodes = append(into.nodes, cp)
	for _, child := range n.replies {
		t.collect(postID, child, into)
	}
}

// Restore возвращает удаленное поддерево на прежнюю позицию.
// Если родитель тоже исчез, восстанавливать некуда.
func (t *CommentTree) Restore(r *removedNode) bool {
	if len(r.nodes) == 0 {
		return false
	}
	rootID := r.nodes[0].id

	if r.parentID == "" {
		list := t.roots[r.postID]
		t.roots[r.postID] = slices.Insert(list, min(r.index, len(list)), rootID)
	} else {
		parent, ok := t.lookup(r.postID, r.parentID)
		if !ok {
			return false
		}
		parent.replies = slices.Insert(parent.replies, min(r.index, len(parent.replies)), rootID)
	}

	for i := range r.nodes {
		n := r.nodes[i]
		n.replies = slices.Clone(n.replies)
		t.nodes[nodeKey(r.postID, n.id)] = &n
	}
	return true
}

// Rename заменяет временный id подтвержденным
func (t *CommentTree) Rename(postID, parentID, oldID, newID string) bool {
	n, ok := t.lookup(postID, oldID)
	if !ok {
		return false
	}

	var siblings []string
	if parentID == "" {
		siblings = t.roots[postID]
	} else if parent, ok := t.lookup(postID, parentID); ok {
		siblings = parent.replies
	}
	if i := slices.Index(siblings, oldID); i >= 0 {
		siblings[i] = newID
	}

	delete(t.nodes, nodeKey(postID, oldID))
	n.id = newID
	t.nodes[nodeKey(postID, newID)] = n
	return true
}

// RootIDs возвращает копию списка комментариев верхнего уровня
func (t *CommentTree) RootIDs(postID string) []string {
	return slices.Clone(t.roots[postID])
}

// DropPost удаляет все узлы поста и возвращает их ключи
func (t *CommentTree) DropPost(postID string) []string {
	var keys []string
	for _, id := range t.roots[postID] {
		r := &removedNode{}
		t.collect(postID, id, r)
		keys = append(keys, r.Keys()...)
	}
	for _, k := range keys {
		delete(t.nodes, k)
	}
	delete(t.roots, postID)
	return keys
}

// Materialize строит вложенные domain.Comment в каноничном порядке
func (t *CommentTree) Materialize(postID string, ledger *LikeLedger) []domain.Comment {
	return t.materialize(postID, t.roots[postID], ledger)
}

func (t *CommentTree) materialize(postID string, ids []string, ledger *LikeLedger) []domain.Comment {
	out := make([]domain.Comment, 0, len(ids))
	for _, id := range ids {
		n, ok := t.lookup(postID, id)
		if !ok {
			continue
		}
		c := domain.Comment{
			ID:        n.id,
			AuthorID:  n.authorID,
			Content:   n.content,
			CreatedAt: n.createdAt,
			Likes:     ledger.Likes(nodeKey(postID, n.id)),
			Replies:   t.materialize(postID, n.replies, ledger),
			Depth:     n.depth,
		}
		if n.updatedAt != nil {
			u := *n.updatedAt
			c.UpdatedAt = &u
		}
		out = append(out, c)
	}
	return out
}
