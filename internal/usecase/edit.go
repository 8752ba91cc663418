package usecase

import (
	"context"
	"time"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/session"
)

// EditOutcome - итог правки
type EditOutcome struct {
	Outcome
	Content   string     `json:"content"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type editMutation struct {
	baseMutation
	editor  domain.UserID
	content string

	// undo - точка отката; может прийти от более старой неудавшейся правки
	undo      session.ContentEdit
	appliedAt time.Time
	confirmed *domain.Comment
}

func (m *editMutation) kind() domain.MutationKind { return domain.MutationEdit }

func (m *editMutation) key() string { return coalesceKey(m.ref, domain.MutationEdit, m.content) }

func (m *editMutation) facet() string { return session.Facet(m.ref.Key(), "content") }

func (m *editMutation) apply(st *session.State) (bool, error) {
	e, err := st.EditComment(m.ref.PostID, m.ref.ParentID, m.ref.ID, m.editor, m.content)
	if err != nil {
		return false, err
	}
	m.undo = e
	m.appliedAt = st.Now()
	m.content = e.Content()
	return true, nil
}

func (m *editMutation) send(ctx context.Context, t domain.Transport) error {
	var err error
	if m.ref.Kind == domain.SubjectReply {
		m.confirmed, err = t.EditReply(ctx, m.ref.PostID, m.ref.ParentID, m.ref.ID, m.content)
	} else {
		m.confirmed, err = t.EditComment(ctx, m.ref.PostID, m.ref.ID, m.content)
	}
	return err
}

func (m *editMutation) commit(st *session.State, latest bool) {
	if !latest || m.confirmed == nil || m.confirmed.Content == "" {
		return
	}
	st.SetContent(m.ref.PostID, m.ref.ID, m.confirmed.Content, m.confirmed.UpdatedAt)
}

func (m *editMutation) revert(st *session.State) {
	st.RevertEdit(m.undo)
}

func (m *editMutation) adopt(older mutation) bool {
	o, ok := older.(*editMutation)
	if !ok {
		return false
	}
	m.undo = o.undo
	return true
}

func (m *editMutation) reapply(st *session.State) {
	at := m.appliedAt
	st.SetContent(m.ref.PostID, m.ref.ID, m.content, &at)
}

func (m *editMutation) message() string {
	return "Could not save your edit. The previous text has been restored."
}

// EditComment меняет текст комментария (parentID пустой) или ответа
func (c *Coordinator) EditComment(ctx context.Context, s *session.Session, postID, parentID, commentID, content string) (EditOutcome, error) {
	ref := domain.CommentSubject(postID, commentID)
	if parentID != "" {
		ref = domain.ReplySubject(postID, parentID, commentID)
	}
	m := &editMutation{baseMutation: baseMutation{ref: ref}, editor: s.User(), content: content}

	out, err := c.run(ctx, s, m)
	res := EditOutcome{Outcome: out}
	_ = s.Update(func(st *session.State) error {
		if found, ok := st.Comment(postID, commentID); ok {
			res.Content = found.Content
			res.UpdatedAt = found.UpdatedAt
		}
		return nil
	})
	return res, err
}
