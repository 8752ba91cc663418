package usecase

import (
	"context"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/session"
)

// ShareOutcome - итог репоста
type ShareOutcome struct {
	Outcome
	SharesCount int `json:"sharesCount"`
}

type shareMutation struct {
	baseMutation
	result domain.ShareResult
}

func (m *shareMutation) kind() domain.MutationKind { return domain.MutationShare }

func (m *shareMutation) key() string { return coalesceKey(m.ref, domain.MutationShare) }

func (m *shareMutation) facet() string { return session.Facet(m.ref.Key(), "shares") }

func (m *shareMutation) apply(st *session.State) (bool, error) {
	if err := st.AddShares(m.ref.PostID, 1); err != nil {
		return false, err
	}
	return true, nil
}

func (m *shareMutation) send(ctx context.Context, t domain.Transport) error {
	var err error
	m.result, err = t.SharePost(ctx, m.ref.PostID)
	return err
}

func (m *shareMutation) commit(st *session.State, latest bool) {
	if latest {
		st.SetShares(m.ref.PostID, m.result.SharesCount)
	}
}

func (m *shareMutation) revert(st *session.State) {
	_ = st.AddShares(m.ref.PostID, -1)
}

func (m *shareMutation) reapply(st *session.State) {
	_ = st.AddShares(m.ref.PostID, 1)
}

func (m *shareMutation) message() string {
	return "Could not share the post."
}

// SharePost увеличивает счетчик репостов
func (c *Coordinator) SharePost(ctx context.Context, s *session.Session, postID string) (ShareOutcome, error) {
	out, err := c.run(ctx, s, &shareMutation{baseMutation: baseMutation{ref: domain.PostSubject(postID)}})
	res := ShareOutcome{Outcome: out}
	_ = s.Update(func(st *session.State) error {
		res.SharesCount = st.Shares(postID)
		return nil
	})
	return res, err
}
