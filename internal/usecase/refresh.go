package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/session"
)

// Refresh загружает снимок поста с бэкенда и сводит его с сессией:
// снимок заменяет пост, неподтвержденные дельты применяются поверх.
// Снимок, запрошенный до фиксации другой мутации этого поста, отбрасывается.
func (c *Coordinator) Refresh(ctx context.Context, s *session.Session, postID string) (*domain.Post, error) {
	if _, err := c.caller(ctx, s); err != nil {
		return nil, err
	}

	facet := commitFacet(postID)
	var rev uint64
	_ = s.Update(func(st *session.State) error {
		rev = st.Stamp(facet)
		return nil
	})

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.MutationTimeout)
	post, err := c.transport.GetPost(callCtx, postID)
	cancel()

	if errors.Is(err, domain.ErrSubjectGone) {
		_ = s.Update(func(st *session.State) error {
			st.PrunePost(postID)
			return nil
		})
		c.metrics.Refresh("gone")
		return nil, fmt.Errorf("%w: %w", domain.ErrPostNotFound, err)
	}
	if err != nil {
		c.metrics.Refresh("failed")
		return nil, fmt.Errorf("failed to refresh post: %w", err)
	}

	stale := false
	err = s.Update(func(st *session.State) error {
		if st.HasPost(postID) && st.Superseded(facet, rev) {
			stale = true
			return nil
		}
		post.ID = postID
		st.Load(post)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if stale {
		c.metrics.Refresh("stale")
		c.logger.Debug("stale snapshot discarded", "post_id", postID)
	} else {
		c.metrics.Refresh("loaded")
	}
	return s.Post(postID)
}
