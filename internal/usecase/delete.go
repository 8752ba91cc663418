package usecase

import (
	"context"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/session"
)

type deleteMutation struct {
	baseMutation
	requester domain.UserID
	removal   *session.Removal
}

func (m *deleteMutation) kind() domain.MutationKind { return domain.MutationDelete }

func (m *deleteMutation) key() string { return coalesceKey(m.ref, domain.MutationDelete) }

func (m *deleteMutation) facet() string { return session.Facet(m.ref.Key(), "presence") }

func (m *deleteMutation) apply(st *session.State) (bool, error) {
	r, found, err := st.DeleteComment(m.ref.PostID, m.ref.ParentID, m.ref.ID, m.requester)
	if err != nil || !found {
		return false, err
	}
	m.removal = r
	return true, nil
}

func (m *deleteMutation) send(ctx context.Context, t domain.Transport) error {
	if m.ref.Kind == domain.SubjectReply {
		return t.DeleteReply(ctx, m.ref.PostID, m.ref.ParentID, m.ref.ID)
	}
	return t.DeleteComment(ctx, m.ref.PostID, m.ref.ID)
}

func (m *deleteMutation) commit(*session.State, bool) {}

func (m *deleteMutation) revert(st *session.State) {
	st.RestoreRemoval(m.removal)
}

func (m *deleteMutation) reapply(st *session.State) {
	st.ReapplyRemoval(m.removal)
}

// gone: узла уже нет на бэкенде, удаление достигло цели
func (m *deleteMutation) gone(*session.State) bool { return true }

func (m *deleteMutation) message() string {
	return "Could not delete the comment. It has been restored."
}

// DeleteComment удаляет комментарий (parentID пустой) вместе с ответами или один ответ.
// Удаление отсутствующего узла - успех без вызова бэкенда.
func (c *Coordinator) DeleteComment(ctx context.Context, s *session.Session, postID, parentID, commentID string) (Outcome, error) {
	ref := domain.CommentSubject(postID, commentID)
	if parentID != "" {
		ref = domain.ReplySubject(postID, parentID, commentID)
	}
	return c.run(ctx, s, &deleteMutation{baseMutation: baseMutation{ref: ref}, requester: s.User()})
}
