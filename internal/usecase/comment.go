package usecase

import (
	"context"
	"fmt"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/session"
)

// CommentOutcome - итог создания комментария или ответа
type CommentOutcome struct {
	Outcome
	Comment domain.Comment `json:"comment"`
	// ParentID - родитель, в replies которого попал ответ
	ParentID string `json:"parentId,omitempty"`
}

type createMutation struct {
	baseMutation
	postID   string
	parentID string
	author   domain.UserID
	content  string

	created   domain.Comment
	effective string
	confirmed *domain.Comment
}

func (m *createMutation) isReply() bool { return m.parentID != "" }

func (m *createMutation) kind() domain.MutationKind {
	if m.isReply() {
		return domain.MutationReply
	}
	return domain.MutationComment
}

func (m *createMutation) key() string { return coalesceKey(m.ref, m.kind(), m.content) }

func (m *createMutation) facet() string { return session.Facet(m.ref.Key(), "replies") }

func (m *createMutation) apply(st *session.State) (bool, error) {
	var err error
	if m.isReply() {
		m.created, m.effective, err = st.AddReply(m.postID, m.parentID, m.author, m.content)
	} else {
		m.created, err = st.AddComment(m.postID, m.author, m.content)
	}
	if err != nil {
		return false, err
	}
	m.content = m.created.Content
	return true, nil
}

func (m *createMutation) send(ctx context.Context, t domain.Transport) error {
	var (
		c   *domain.Comment
		err error
	)
	if m.isReply() {
		c, err = t.AddReply(ctx, m.postID, m.effective, m.content)
	} else {
		c, err = t.AddComment(ctx, m.postID, m.content)
	}
	if err != nil {
		return err
	}
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: created comment without id", domain.ErrTransport)
	}
	m.confirmed = c
	return nil
}

// commit подтверждает созданный узел независимо от свежести: каждый узел
// создается своей мутацией, поэтому более новых данных для него быть не может.
func (m *createMutation) commit(st *session.State, _ bool) {
	st.ConfirmCreated(m.postID, m.effective, m.created.ID, m.confirmed)
}

func (m *createMutation) revert(st *session.State) {
	st.DiscardCreated(m.postID, m.effective, m.created.ID)
}

func (m *createMutation) reapply(st *session.State) {
	st.ReinsertCreated(m.postID, m.effective, m.created)
}

func (m *createMutation) gone(st *session.State) bool {
	st.DiscardCreated(m.postID, m.effective, m.created.ID)
	st.PruneSubject(m.ref)
	return false
}

func (m *createMutation) describe(ev *domain.EngagementEvent) {
	ev.ParentID = m.effective
	if m.confirmed != nil {
		ev.SubjectID = m.confirmed.ID
	}
}

func (m *createMutation) message() string {
	if m.isReply() {
		return "Could not post your reply. It has been removed."
	}
	return "Could not post your comment. It has been removed."
}

// AddComment добавляет комментарий верхнего уровня к посту
func (c *Coordinator) AddComment(ctx context.Context, s *session.Session, postID, content string) (CommentOutcome, error) {
	m := &createMutation{
		baseMutation: baseMutation{ref: domain.PostSubject(postID)},
		postID:       postID,
		author:       s.User(),
		content:      content,
	}
	return c.create(ctx, s, m)
}

// AddReply добавляет ответ на комментарий
func (c *Coordinator) AddReply(ctx context.Context, s *session.Session, postID, parentID, content string) (CommentOutcome, error) {
	m := &createMutation{
		baseMutation: baseMutation{ref: domain.CommentSubject(postID, parentID)},
		postID:       postID,
		parentID:     parentID,
		author:       s.User(),
		content:      content,
	}
	return c.create(ctx, s, m)
}

func (c *Coordinator) create(ctx context.Context, s *session.Session, m *createMutation) (CommentOutcome, error) {
	out, err := c.run(ctx, s, m)
	res := CommentOutcome{Outcome: out, ParentID: m.effective}
	switch {
	case out.State == StateCommitted && m.confirmed != nil:
		res.Comment = *m.confirmed
		res.Comment.Depth = m.created.Depth
		if res.Comment.Likes == nil {
			res.Comment.Likes = []domain.Like{}
		}
		if res.Comment.Replies == nil {
			res.Comment.Replies = []domain.Comment{}
		}
	case out.Applied:
		res.Comment = m.created
	}
	return res, err
}
