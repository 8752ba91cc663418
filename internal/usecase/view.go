package usecase

import (
	"context"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/session"
)

// ViewOutcome - итог регистрации просмотра
type ViewOutcome struct {
	Outcome
	ViewsCount int `json:"viewsCount"`
}

type viewMutation struct {
	baseMutation
	user domain.UserID
}

func (m *viewMutation) kind() domain.MutationKind { return domain.MutationView }

func (m *viewMutation) key() string { return coalesceKey(m.ref, domain.MutationView) }

func (m *viewMutation) facet() string { return session.Facet(m.ref.Key(), "views") }

func (m *viewMutation) apply(st *session.State) (bool, error) {
	if !st.HasPost(m.ref.PostID) {
		return false, domain.ErrPostNotFound
	}
	return st.Views().Register(m.ref.PostID, m.user), nil
}

func (m *viewMutation) send(ctx context.Context, t domain.Transport) error {
	return t.RegisterView(ctx, m.ref.PostID)
}

func (m *viewMutation) commit(*session.State, bool) {}

func (m *viewMutation) revert(st *session.State) {
	st.Views().Unregister(m.ref.PostID, m.user)
}

func (m *viewMutation) reapply(st *session.State) {
	st.Views().Register(m.ref.PostID, m.user)
}

func (m *viewMutation) message() string {
	return "Could not register the view."
}

// RegisterView учитывает просмотр поста один раз на пользователя
func (c *Coordinator) RegisterView(ctx context.Context, s *session.Session, postID string) (ViewOutcome, error) {
	out, err := c.run(ctx, s, &viewMutation{baseMutation: baseMutation{ref: domain.PostSubject(postID)}, user: s.User()})
	res := ViewOutcome{Outcome: out}
	_ = s.Update(func(st *session.State) error {
		res.ViewsCount = len(st.Views().List(postID))
		return nil
	})
	return res, err
}
