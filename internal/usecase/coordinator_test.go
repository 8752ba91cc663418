package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/identity"
	"github.com/oziev02/PostEngagement/internal/metrics"
	"github.com/oziev02/PostEngagement/internal/session"
)

var errBackendDown = fmt.Errorf("%w: status 503", domain.ErrTransport)

type fixture struct {
	coord   *Coordinator
	backend *fakeBackend
	events  *recordingPublisher
	notices *recordingNotifier
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		backend: newFakeBackend(),
		events:  &recordingPublisher{},
		notices: &recordingNotifier{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.coord = NewCoordinator(f.backend, cfg,
		WithPublisher(f.events),
		WithNotifier(f.notices),
		WithMetrics(f.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}

func defaultConfig() Config {
	return Config{MutationTimeout: time.Second, Coalesce: true}
}

func callerCtx(user domain.UserID) context.Context {
	return identity.WithCaller(context.Background(), identity.Caller{UserID: user, Token: "token-" + string(user)})
}

// open создает сессию пользователя и загружает в нее пост
func (f *fixture) open(t *testing.T, user domain.UserID, postID string, opts ...session.Option) (*session.Session, context.Context) {
	t.Helper()
	opts = append([]session.Option{session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	s := session.New(user, opts...)
	ctx := callerCtx(user)
	_, err := f.coord.Refresh(ctx, s, postID)
	require.NoError(t, err)
	return s, ctx
}

func mustPost(t *testing.T, s *session.Session, postID string) *domain.Post {
	t.Helper()
	post, err := s.Post(postID)
	require.NoError(t, err)
	return post
}

func commentIDs(comments []domain.Comment) []string {
	out := make([]string, 0, len(comments))
	for _, c := range comments {
		out = append(out, c.ID)
	}
	return out
}

func mutations(f *fixture, kind, outcome string) float64 {
	return testutil.ToFloat64(f.metrics.MutationsTotal.WithLabelValues(kind, outcome))
}

func TestLikePost_Commits(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")

	res, err := f.coord.LikePost(ctx, s, "p1")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.True(t, res.Applied)
	assert.True(t, res.Liked)
	assert.Equal(t, 2, res.LikesCount)

	post := mustPost(t, s, "p1")
	assert.True(t, post.IsLikedBy("u1"))
	assert.Equal(t, 2, post.LikesCount())
	assert.Equal(t, []string{"get p1", "like post:p1"}, f.backend.callLog())

	events := f.events.published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.MutationLike, events[0].Kind)
	assert.Equal(t, res.ID, events[0].ID)
	require.NotNil(t, events[0].Liked)
	assert.True(t, *events[0].Liked)
	assert.Equal(t, 1.0, mutations(f, "like", metrics.OutcomeCommitted))
}

func TestToggleLike_FailureRestoresExactState(t *testing.T) {
	t.Run("like rolled back", func(t *testing.T) {
		f := newFixture(t, defaultConfig())
		s, ctx := f.open(t, "u1", "p1")
		before := mustPost(t, s, "p1")
		f.backend.failOn("like node:p1/c1", errBackendDown)

		res, err := f.coord.LikeComment(ctx, s, "p1", "c1")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrLikeSyncFailed)
		assert.ErrorIs(t, err, domain.ErrTransport)
		assert.Equal(t, StateRolledBack, res.State)
		assert.False(t, res.Liked)
		assert.Equal(t, 1, res.LikesCount)
		assert.Equal(t, before, mustPost(t, s, "p1"))
	})

	t.Run("unlike rolled back", func(t *testing.T) {
		f := newFixture(t, defaultConfig())
		s, ctx := f.open(t, "u2", "p1")
		before := mustPost(t, s, "p1")
		f.backend.failOn("like node:p1/c1", errBackendDown)

		res, err := f.coord.LikeComment(ctx, s, "p1", "c1")
		require.ErrorIs(t, err, domain.ErrLikeSyncFailed)
		assert.True(t, res.Liked)
		assert.Equal(t, before, mustPost(t, s, "p1"))

		notes := s.Notifications()
		require.Len(t, notes, 1)
		assert.Equal(t, domain.MutationLike, notes[0].Kind)
		assert.Equal(t, domain.UserID("u2"), notes[0].UserID)
		assert.Equal(t, "c1", notes[0].SubjectID)
		assert.Contains(t, notes[0].Message, "restored")

		assert.Len(t, f.notices.received(), 1)
		assert.Empty(t, f.events.published())
		assert.Equal(t, 1.0, mutations(f, "like", metrics.OutcomeRolledBack))
	})
}

func TestToggleLike_CountMatchesMembership(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")

	for i := range 6 {
		if i == 3 {
			f.backend.failOn("like post:p1", errBackendDown)
		}
		res, _ := f.coord.LikePost(ctx, s, "p1")
		post := mustPost(t, s, "p1")
		assert.Len(t, post.Likes, res.LikesCount)
		assert.Equal(t, post.IsLikedBy("u1"), res.Liked)
	}
}

func TestToggleLike_DuplicateWhileApplyingIsCoalesced(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.setAfter(func(context.Context, string) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.LikePost(ctx, s, "p1")
		done <- err
	}()
	<-entered

	dup, err := f.coord.LikePost(ctx, s, "p1")
	require.NoError(t, err)
	assert.False(t, dup.Applied)
	assert.Equal(t, StateIdle, dup.State)
	assert.True(t, dup.Liked)

	close(release)
	require.NoError(t, <-done)

	post := mustPost(t, s, "p1")
	assert.True(t, post.IsLikedBy("u1"))
	assert.Equal(t, 2, post.LikesCount())
	assert.Equal(t, []string{"get p1", "like post:p1"}, f.backend.callLog())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CoalescedTotal.WithLabelValues("like")))
}

func TestToggleLike_ReorderedConfirmationsConverge(t *testing.T) {
	f := newFixture(t, Config{MutationTimeout: time.Second})
	s, ctx := f.open(t, "u1", "p1")

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	f.backend.setAfter(func(context.Context, string) error {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.LikePost(ctx, s, "p1")
		done <- err
	}()
	<-entered

	// второе нажатие подтверждается раньше первого
	second, err := f.coord.LikePost(ctx, s, "p1")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, second.State)
	assert.False(t, second.Liked)

	close(release)
	require.NoError(t, <-done)

	post := mustPost(t, s, "p1")
	assert.False(t, post.IsLikedBy("u1"))
	assert.Equal(t, 1, post.LikesCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StaleConfirmationsTotal.WithLabelValues("like")))
}

func TestSharePost_OlderFailureDoesNotUndoNewerConfirmation(t *testing.T) {
	f := newFixture(t, Config{MutationTimeout: time.Second})
	s, ctx := f.open(t, "u1", "p1")

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	f.backend.setAfter(func(context.Context, string) error {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
			return errBackendDown
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.SharePost(ctx, s, "p1")
		done <- err
	}()
	<-entered

	second, err := f.coord.SharePost(ctx, s, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, second.SharesCount)

	close(release)
	assert.ErrorIs(t, <-done, domain.ErrMutationSyncFailed)
	assert.Equal(t, 3, mustPost(t, s, "p1").Shares)
	assert.Len(t, s.Notifications(), 1)
}

func TestToggleLike_SubjectGoneIsPruned(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")
	f.backend.mutate(func(posts map[string]*domain.Post) {
		posts["p1"].Comments = posts["p1"].Comments[:1]
	})

	res, err := f.coord.LikeComment(ctx, s, "p1", "c2")
	require.ErrorIs(t, err, domain.ErrSubjectGone)
	assert.Equal(t, StateRolledBack, res.State)

	assert.Equal(t, []string{"c1"}, commentIDs(mustPost(t, s, "p1").Comments))
	assert.Len(t, s.Notifications(), 1)
	assert.Equal(t, 1.0, mutations(f, "like", metrics.OutcomeGone))

	_, err = f.coord.LikeComment(ctx, s, "p1", "c2")
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)
}

func TestMutation_TimeoutRollsBack(t *testing.T) {
	f := newFixture(t, Config{MutationTimeout: 20 * time.Millisecond, Coalesce: true})
	s, ctx := f.open(t, "u1", "p1")
	f.backend.setAfter(func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	})

	res, err := f.coord.LikePost(ctx, s, "p1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrLikeSyncFailed)
	assert.Equal(t, StateRolledBack, res.State)
	assert.False(t, mustPost(t, s, "p1").IsLikedBy("u1"))
}

func TestMutation_RequiresSessionOwner(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, _ := f.open(t, "u1", "p1")

	_, err := f.coord.LikePost(context.Background(), s, "p1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.coord.AddComment(callerCtx("u2"), s, "p1", "not my session")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.coord.Refresh(callerCtx("u2"), s, "p1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Equal(t, []string{"get p1"}, f.backend.callLog())
}

func TestAddComment_ScenarioA(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p2")

	res, err := f.coord.AddComment(ctx, s, "p2", "Great event!")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, "srv-1", res.Comment.ID)
	assert.Equal(t, domain.DepthComment, res.Comment.Depth)
	assert.Empty(t, res.ParentID)

	post := mustPost(t, s, "p2")
	require.Len(t, post.Comments, 1)
	c := post.Comments[0]
	assert.Equal(t, "srv-1", c.ID)
	assert.Equal(t, "Great event!", c.Content)
	assert.Equal(t, domain.DepthComment, c.Depth)
	assert.Equal(t, domain.UserID("u1"), c.AuthorID)
	assert.False(t, session.IsTempID(c.ID))

	events := f.events.published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.MutationComment, events[0].Kind)
	assert.Equal(t, "srv-1", events[0].SubjectID)
}

func TestAddReply_ScenarioB(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s1, ctx1 := f.open(t, "u1", "p2")
	created, err := f.coord.AddComment(ctx1, s1, "p2", "Great event!")
	require.NoError(t, err)

	s2, ctx2 := f.open(t, "u2", "p2")
	reply, err := f.coord.AddReply(ctx2, s2, "p2", created.Comment.ID, "Agreed")
	require.NoError(t, err)
	assert.Equal(t, created.Comment.ID, reply.ParentID)
	assert.Equal(t, domain.DepthReply, reply.Comment.Depth)

	post := mustPost(t, s2, "p2")
	require.Len(t, post.Comments[0].Replies, 1)
	assert.Equal(t, domain.DepthReply, post.Comments[0].Replies[0].Depth)
	assert.Equal(t, "Agreed", post.Comments[0].Replies[0].Content)

	calls := len(f.backend.callLog())
	_, err = f.coord.AddReply(ctx2, s2, "p2", reply.Comment.ID, "nested")
	assert.ErrorIs(t, err, domain.ErrMaxDepthExceeded)
	assert.Len(t, f.backend.callLog(), calls)
}

func TestAddReply_FlattenPolicy(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u2", "p1", session.WithReplyPolicy(domain.ReplyPolicyFlatten))

	res, err := f.coord.AddReply(ctx, s, "p1", "r1", "nested")
	require.NoError(t, err)
	assert.Equal(t, "c1", res.ParentID)
	assert.Contains(t, f.backend.callLog(), "reply p1/c1")

	post := mustPost(t, s, "p1")
	assert.Equal(t, []string{"r1", res.Comment.ID}, commentIDs(post.Comments[0].Replies))
}

func TestAddComment_FailureRemovesTempComment(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")
	before := mustPost(t, s, "p1")
	f.backend.failOn("comment p1", errBackendDown)

	res, err := f.coord.AddComment(ctx, s, "p1", "lost")
	require.ErrorIs(t, err, domain.ErrMutationSyncFailed)
	assert.Equal(t, StateRolledBack, res.State)
	assert.True(t, session.IsTempID(res.Comment.ID))
	assert.Equal(t, before, mustPost(t, s, "p1"))

	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, domain.MutationComment, notes[0].Kind)
}

func TestAddComment_Validation(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")

	_, err := f.coord.AddComment(ctx, s, "p1", "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	_, err = f.coord.AddReply(ctx, s, "p1", "missing", "text")
	assert.ErrorIs(t, err, domain.ErrParentNotFound)

	assert.Equal(t, []string{"get p1"}, f.backend.callLog())
}

func TestEditComment(t *testing.T) {
	t.Run("committed", func(t *testing.T) {
		f := newFixture(t, defaultConfig())
		s, ctx := f.open(t, "u1", "p1")

		res, err := f.coord.EditComment(ctx, s, "p1", "", "c1", " updated ")
		require.NoError(t, err)
		assert.Equal(t, StateCommitted, res.State)
		assert.Equal(t, "updated", res.Content)
		require.NotNil(t, res.UpdatedAt)
		assert.Equal(t, srvTime.Add(time.Hour), *res.UpdatedAt)
	})

	t.Run("reply rolled back", func(t *testing.T) {
		f := newFixture(t, defaultConfig())
		s, ctx := f.open(t, "u2", "p1")
		before := mustPost(t, s, "p1")
		f.backend.failOn("edit node:p1/r1", errBackendDown)

		res, err := f.coord.EditComment(ctx, s, "p1", "c1", "r1", "changed")
		require.ErrorIs(t, err, domain.ErrMutationSyncFailed)
		assert.Equal(t, "reply", res.Content)
		assert.Nil(t, res.UpdatedAt)
		assert.Equal(t, before, mustPost(t, s, "p1"))
	})

	t.Run("forbidden", func(t *testing.T) {
		f := newFixture(t, defaultConfig())
		s, ctx := f.open(t, "u1", "p1")

		_, err := f.coord.EditComment(ctx, s, "p1", "", "c2", "mine")
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Equal(t, []string{"get p1"}, f.backend.callLog())
	})
}

func TestDeleteComment_Cascade(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")

	res, err := f.coord.DeleteComment(ctx, s, "p1", "", "c1")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)

	post := mustPost(t, s, "p1")
	assert.Equal(t, []string{"c2"}, commentIDs(post.Comments))
	assert.Empty(t, post.Comments[0].Replies)

	_, err = f.coord.LikeReply(ctx, s, "p1", "c1", "r1")
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)
}

func TestDeleteComment_ReplyKeepsParent(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u2", "p1")

	_, err := f.coord.DeleteComment(ctx, s, "p1", "c1", "r1")
	require.NoError(t, err)

	post := mustPost(t, s, "p1")
	assert.Equal(t, []string{"c1", "c2"}, commentIDs(post.Comments))
	assert.Empty(t, post.Comments[0].Replies)
	assert.Equal(t, 1, post.Comments[0].LikesCount())
}

func TestDeleteComment_FailureRestoresSubtree(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")
	before := mustPost(t, s, "p1")
	f.backend.failOn("delete node:p1/c1", errBackendDown)

	res, err := f.coord.DeleteComment(ctx, s, "p1", "", "c1")
	require.ErrorIs(t, err, domain.ErrMutationSyncFailed)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, before, mustPost(t, s, "p1"))
}

func TestDeleteComment_AlreadyGoneIsSuccess(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u2", "p1")
	f.backend.mutate(func(posts map[string]*domain.Post) {
		posts["p1"].Comments = posts["p1"].Comments[:1]
	})

	res, err := f.coord.DeleteComment(ctx, s, "p1", "", "c2")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, []string{"c1"}, commentIDs(mustPost(t, s, "p1").Comments))
	assert.Empty(t, s.Notifications())
}

func TestDeleteComment_AbsentNeedsNoCall(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")

	res, err := f.coord.DeleteComment(ctx, s, "p1", "", "nope")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, []string{"get p1"}, f.backend.callLog())
}

func TestScenarioCD_LikeRollbackThenDelete(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p2")

	// счетчик виден оптимистично, пока вызов бэкенда не завершился
	var during int
	f.backend.setAfter(func(context.Context, string) error {
		during = mustPost(t, s, "p2").LikesCount()
		return errBackendDown
	})

	res, err := f.coord.LikePost(ctx, s, "p2")
	require.ErrorIs(t, err, domain.ErrLikeSyncFailed)
	assert.Equal(t, 1, during)
	assert.False(t, res.Liked)
	assert.Equal(t, 0, res.LikesCount)
	f.backend.setAfter(nil)

	created, err := f.coord.AddComment(ctx, s, "p2", "Great event!")
	require.NoError(t, err)

	s2, ctx2 := f.open(t, "u2", "p2")
	reply, err := f.coord.AddReply(ctx2, s2, "p2", created.Comment.ID, "Agreed")
	require.NoError(t, err)

	_, err = f.coord.Refresh(ctx, s, "p2")
	require.NoError(t, err)
	require.Len(t, mustPost(t, s, "p2").Comments[0].Replies, 1)

	_, err = f.coord.DeleteComment(ctx, s, "p2", "", created.Comment.ID)
	require.NoError(t, err)
	assert.Empty(t, mustPost(t, s, "p2").Comments)

	_, err = f.coord.LikeReply(ctx, s, "p2", created.Comment.ID, reply.Comment.ID)
	assert.ErrorIs(t, err, domain.ErrCommentNotFound)
}

func TestSharePost(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")

	res, err := f.coord.SharePost(ctx, s, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SharesCount)

	f.backend.failOn("share p1", errBackendDown)
	res, err = f.coord.SharePost(ctx, s, "p1")
	require.ErrorIs(t, err, domain.ErrMutationSyncFailed)
	assert.Equal(t, 2, res.SharesCount)
}

func TestRegisterView(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")

	res, err := f.coord.RegisterView(ctx, s, "p1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 2, res.ViewsCount)

	res, err = f.coord.RegisterView(ctx, s, "p1")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, 2, res.ViewsCount)
	assert.Equal(t, []string{"get p1", "view p1"}, f.backend.callLog())

	_, err = f.coord.RegisterView(ctx, s, "p2")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestRegisterView_FailureUnregisters(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")
	f.backend.failOn("view p1", errBackendDown)

	res, err := f.coord.RegisterView(ctx, s, "p1")
	require.ErrorIs(t, err, domain.ErrMutationSyncFailed)
	assert.Equal(t, 1, res.ViewsCount)
	assert.Equal(t, []domain.UserID{"u2"}, mustPost(t, s, "p1").Views)
}

func TestRefresh_PicksUpOtherUsers(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")
	f.backend.mutate(func(posts map[string]*domain.Post) {
		posts["p1"].Likes = append(posts["p1"].Likes, domain.Like{UserID: "u3", CreatedAt: srvTime})
	})

	post, err := f.coord.Refresh(ctx, s, "p1")
	require.NoError(t, err)
	assert.True(t, post.IsLikedBy("u3"))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RefreshesTotal.WithLabelValues("loaded")))
}

func TestRefresh_DiscardsSnapshotOlderThanCommit(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.setAfter(func(_ context.Context, call string) error {
		if strings.HasPrefix(call, "get ") {
			close(entered)
			<-release
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.Refresh(ctx, s, "p1")
		done <- err
	}()
	<-entered

	_, err := f.coord.LikePost(ctx, s, "p1")
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	assert.True(t, mustPost(t, s, "p1").IsLikedBy("u1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshesTotal.WithLabelValues("stale")))
}

func TestRefresh_PostGone(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")
	f.backend.mutate(func(posts map[string]*domain.Post) {
		delete(posts, "p1")
	})

	_, err := f.coord.Refresh(ctx, s, "p1")
	require.ErrorIs(t, err, domain.ErrPostNotFound)
	assert.ErrorIs(t, err, domain.ErrSubjectGone)

	_, err = s.Post("p1")
	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestRefresh_TransportError(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")
	f.backend.failOn("get p1", errBackendDown)

	_, err := f.coord.Refresh(ctx, s, "p1")
	require.ErrorIs(t, err, domain.ErrTransport)

	// сессия сохраняет последний загруженный снимок
	_, err = s.Post("p1")
	assert.NoError(t, err)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.events.err = errors.New("nats unavailable")
	s, ctx := f.open(t, "u1", "p1")

	res, err := f.coord.SharePost(ctx, s, "p1")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Len(t, f.events.published(), 1)
}

// gate задерживает вызовы бэкенда до отпускания; i-й вызов завершается ошибкой errs[i]
type gate struct {
	entered chan int
	release []chan struct{}
	errs    []error
	n       atomic.Int32
}

func newGate(errs ...error) *gate {
	g := &gate{entered: make(chan int, len(errs)), errs: errs}
	for range errs {
		g.release = append(g.release, make(chan struct{}))
	}
	return g
}

func (g *gate) hook(ctx context.Context, _ string) error {
	i := int(g.n.Add(1) - 1)
	g.entered <- i
	select {
	case <-g.release[i]:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.errs[i]
}

func commentContent(t *testing.T, s *session.Session, postID, id string) string {
	t.Helper()
	for _, c := range mustPost(t, s, postID).Comments {
		if c.ID == id {
			return c.Content
		}
	}
	t.Fatalf("comment %s not found", id)
	return ""
}

func TestEditComment_OverlappingEditsSettleToBackendText(t *testing.T) {
	tests := []struct {
		name  string
		errs  []error
		order []int
		mid   string
		want  string
	}{
		{"both fail in issue order", []error{errBackendDown, errBackendDown}, []int{0, 1}, "C", "first"},
		{"both fail newest first", []error{errBackendDown, errBackendDown}, []int{1, 0}, "B", "first"},
		{"older fails newer commits", []error{errBackendDown, nil}, []int{0, 1}, "C", "C"},
		{"newer fails older commits", []error{nil, errBackendDown}, []int{1, 0}, "B", "B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, defaultConfig())
			s, ctx := f.open(t, "u1", "p1")
			before := mustPost(t, s, "p1")

			g := newGate(tt.errs...)
			f.backend.setBefore(g.hook)

			done := make([]chan error, 2)
			for i, text := range []string{"B", "C"} {
				done[i] = make(chan error, 1)
				go func() {
					_, err := f.coord.EditComment(ctx, s, "p1", "", "c1", text)
					done[i] <- err
				}()
				require.Equal(t, i, <-g.entered)
			}
			assert.Equal(t, "C", commentContent(t, s, "p1", "c1"))

			for step, i := range tt.order {
				close(g.release[i])
				err := <-done[i]
				if tt.errs[i] != nil {
					assert.ErrorIs(t, err, domain.ErrMutationSyncFailed)
				} else {
					assert.NoError(t, err)
				}
				if step == 0 {
					assert.Equal(t, tt.mid, commentContent(t, s, "p1", "c1"))
				}
			}

			var persisted string
			f.backend.mutate(func(posts map[string]*domain.Post) {
				persisted = posts["p1"].Comments[0].Content
			})
			assert.Equal(t, tt.want, persisted)
			assert.Equal(t, tt.want, commentContent(t, s, "p1", "c1"))
			if tt.want == "first" {
				assert.Equal(t, before, mustPost(t, s, "p1"))
			}
		})
	}
}

func TestToggleLike_PipelinedFailuresRestoreMembership(t *testing.T) {
	tests := []struct {
		name     string
		order    []int
		midLiked bool
	}{
		{"in issue order", []int{0, 1}, false},
		{"newest first", []int{1, 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{MutationTimeout: time.Second})
			s, ctx := f.open(t, "u1", "p1")
			before := mustPost(t, s, "p1")

			g := newGate(errBackendDown, errBackendDown)
			f.backend.setBefore(g.hook)

			done := make([]chan error, 2)
			for i := range done {
				done[i] = make(chan error, 1)
				go func() {
					_, err := f.coord.LikePost(ctx, s, "p1")
					done[i] <- err
				}()
				require.Equal(t, i, <-g.entered)
			}
			assert.False(t, mustPost(t, s, "p1").IsLikedBy("u1"))

			for step, i := range tt.order {
				close(g.release[i])
				assert.ErrorIs(t, <-done[i], domain.ErrLikeSyncFailed)
				if step == 0 {
					assert.Equal(t, tt.midLiked, mustPost(t, s, "p1").IsLikedBy("u1"))
				}
			}

			post := mustPost(t, s, "p1")
			assert.Equal(t, before, post)
			assert.False(t, post.IsLikedBy("u1"))
			assert.Equal(t, 1, post.LikesCount())
			assert.Len(t, s.Notifications(), 2)
		})
	}
}

func TestToggleLike_ReconcilesLikesFromOtherUsers(t *testing.T) {
	f := newFixture(t, defaultConfig())
	s, ctx := f.open(t, "u1", "p1")

	f.backend.mutate(func(posts map[string]*domain.Post) {
		p := posts["p1"]
		p.Likes = append(p.Likes,
			domain.Like{UserID: "u3", CreatedAt: srvTime},
			domain.Like{UserID: "u4", CreatedAt: srvTime},
		)
	})

	res, err := f.coord.LikePost(ctx, s, "p1")
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, 4, res.LikesCount)

	post := mustPost(t, s, "p1")
	assert.Len(t, post.Likes, res.LikesCount)
	assert.Equal(t, 4, post.LikesCount())
	assert.True(t, post.IsLikedBy("u3"))
	assert.True(t, post.IsLikedBy("u1"))
	assert.Equal(t, []string{"get p1", "like post:p1", "get p1"}, f.backend.callLog())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RefreshesTotal.WithLabelValues("loaded")))
}
