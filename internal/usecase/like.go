package usecase

import (
	"context"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/session"
)

// LikeOutcome - итог переключения лайка и состояние субъекта после него
type LikeOutcome struct {
	Outcome
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likesCount"`
}

type likeMutation struct {
	baseMutation
	user   domain.UserID
	toggle session.LikeToggle
	// undo - точка отката; может прийти от более старой неудавшейся мутации
	undo   session.LikeToggle
	result domain.LikeResult
	// drift - счетчик бэкенда разошелся с локальным набором
	drift  bool
}

func (m *likeMutation) kind() domain.MutationKind { return domain.MutationLike }

func (m *likeMutation) key() string { return coalesceKey(m.ref, domain.MutationLike) }

func (m *likeMutation) facet() string { return session.Facet(m.ref.Key(), "likes") }

func (m *likeMutation) apply(st *session.State) (bool, error) {
	t, err := st.ToggleLike(m.ref)
	if err != nil {
		return false, err
	}
	m.toggle = t
	m.undo = t
	return true, nil
}

func (m *likeMutation) send(ctx context.Context, t domain.Transport) error {
	var err error
	switch m.ref.Kind {
	case domain.SubjectPost:
		m.result, err = t.TogglePostLike(ctx, m.ref.PostID)
	case domain.SubjectComment:
		m.result, err = t.ToggleCommentLike(ctx, m.ref.PostID, m.ref.ID)
	case domain.SubjectReply:
		m.result, err = t.ToggleReplyLike(ctx, m.ref.PostID, m.ref.ParentID, m.ref.ID)
	}
	return err
}

func (m *likeMutation) commit(st *session.State, latest bool) {
	if !latest {
		return
	}
	st.Ledger().Confirm(m.ref.Key(), m.user, m.result.Liked, st.Now())
	m.drift = st.Ledger().Count(m.ref.Key()) != m.result.LikesCount
}

func (m *likeMutation) revert(st *session.State) {
	st.Ledger().Revert(m.undo)
}

func (m *likeMutation) adopt(older mutation) bool {
	o, ok := older.(*likeMutation)
	if !ok {
		return false
	}
	m.undo = o.undo
	return true
}

func (m *likeMutation) reapply(st *session.State) {
	if st.ResolveSubject(m.ref) != nil {
		return
	}
	st.Ledger().Set(m.ref.Key(), m.user, m.toggle.Liked, st.Now())
}

func (m *likeMutation) syncErr() error { return domain.ErrLikeSyncFailed }

func (m *likeMutation) describe(ev *domain.EngagementEvent) {
	liked := m.result.Liked
	ev.Liked = &liked
}

func (m *likeMutation) message() string {
	if m.toggle.Liked {
		return "Could not save your like. It has been removed."
	}
	return "Could not remove your like. It has been restored."
}

// ToggleLike переключает лайк вызывающего на посте, комментарии или ответе
func (c *Coordinator) ToggleLike(ctx context.Context, s *session.Session, ref domain.SubjectRef) (LikeOutcome, error) {
	m := &likeMutation{baseMutation: baseMutation{ref: ref}, user: s.User()}
	out, err := c.run(ctx, s, m)

	// Другие пользователи изменили лайки: набор сводится снимком бэкенда
	if err == nil && m.drift {
		if _, rerr := c.Refresh(ctx, s, ref.PostID); rerr != nil {
			c.logger.Warn("failed to reconcile likes", "subject", ref.String(), "error", rerr)
		}
	}

	res := LikeOutcome{Outcome: out}
	_ = s.Update(func(st *session.State) error {
		res.Liked = st.Ledger().Has(ref.Key(), s.User())
		res.LikesCount = st.Ledger().Count(ref.Key())
		return nil
	})
	return res, err
}

// LikePost переключает лайк поста
func (c *Coordinator) LikePost(ctx context.Context, s *session.Session, postID string) (LikeOutcome, error) {
	return c.ToggleLike(ctx, s, domain.PostSubject(postID))
}

// LikeComment переключает лайк комментария верхнего уровня
func (c *Coordinator) LikeComment(ctx context.Context, s *session.Session, postID, commentID string) (LikeOutcome, error) {
	return c.ToggleLike(ctx, s, domain.CommentSubject(postID, commentID))
}

// LikeReply переключает лайк ответа; id родителя передает вызывающий
func (c *Coordinator) LikeReply(ctx context.Context, s *session.Session, postID, parentID, replyID string) (LikeOutcome, error) {
	return c.ToggleLike(ctx, s, domain.ReplySubject(postID, parentID, replyID))
}
