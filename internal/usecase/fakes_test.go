package usecase

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/identity"
)

var srvTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeBackend - авторитетный бэкенд в памяти. Изменение применяется до вызова after,
// так after моделирует задержку или потерю ответа. before вызывается до изменения:
// ошибка из него оставляет бэкенд нетронутым.
type fakeBackend struct {
	mu     sync.Mutex
	posts  map[string]*domain.Post
	seq    int
	calls  []string
	fail   map[string]error
	before func(ctx context.Context, call string) error
	after  func(ctx context.Context, call string) error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		posts: map[string]*domain.Post{
			"p1": {
				ID:        "p1",
				AuthorID:  "author",
				Content:   "launch day",
				CreatedAt: srvTime,
				Images:    []domain.Image{{URL: "https://cdn/p1.png"}},
				Likes:     []domain.Like{{UserID: "u2", CreatedAt: srvTime}},
				Shares:    1,
				Views:     []domain.UserID{"u2"},
				Comments: []domain.Comment{
					{
						ID:        "c1",
						AuthorID:  "u1",
						Content:   "first",
						CreatedAt: srvTime,
						Likes:     []domain.Like{{UserID: "u2", CreatedAt: srvTime}},
						Replies: []domain.Comment{
							{ID: "r1", AuthorID: "u2", Content: "reply", CreatedAt: srvTime, Depth: 1, Likes: []domain.Like{}},
						},
					},
					{ID: "c2", AuthorID: "u2", Content: "second", CreatedAt: srvTime.Add(time.Minute), Likes: []domain.Like{}},
				},
			},
			"p2": {
				ID:        "p2",
				AuthorID:  "author",
				Content:   "quiet post",
				CreatedAt: srvTime,
				Images:    []domain.Image{},
				Likes:     []domain.Like{},
				Comments:  []domain.Comment{},
				Views:     []domain.UserID{},
			},
		},
		fail: make(map[string]error),
	}
}

func (b *fakeBackend) failOn(call string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[call] = err
}

func (b *fakeBackend) setAfter(fn func(ctx context.Context, call string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.after = fn
}

func (b *fakeBackend) setBefore(fn func(ctx context.Context, call string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.before = fn
}

func (b *fakeBackend) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// mutate меняет состояние бэкенда в обход клиента (действия других пользователей)
func (b *fakeBackend) mutate(fn func(posts map[string]*domain.Post)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.posts)
}

func (b *fakeBackend) do(ctx context.Context, call string, fn func() error) error {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	before := b.before
	b.mu.Unlock()

	if before != nil {
		if err := before(ctx, call); err != nil {
			return err
		}
	}

	b.mu.Lock()
	err, failing := b.fail[call]
	if !failing {
		err = fn()
	}
	after := b.after
	b.mu.Unlock()

	if err != nil {
		return err
	}
	if after != nil {
		return after(ctx, call)
	}
	return nil
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", domain.ErrSubjectGone, what)
}

func (b *fakeBackend) post(postID string) (*domain.Post, error) {
	p, ok := b.posts[postID]
	if !ok {
		return nil, notFound("post " + postID)
	}
	return p, nil
}

func (b *fakeBackend) node(postID, parentID, id string) (*domain.Comment, error) {
	p, err := b.post(postID)
	if err != nil {
		return nil, err
	}
	list := p.Comments
	if parentID != "" {
		i := slices.IndexFunc(list, func(c domain.Comment) bool { return c.ID == parentID })
		if i < 0 {
			return nil, notFound("comment " + parentID)
		}
		list = list[i].Replies
	}
	i := slices.IndexFunc(list, func(c domain.Comment) bool { return c.ID == id })
	if i < 0 {
		return nil, notFound("comment " + id)
	}
	return &list[i], nil
}

func cloneComments(in []domain.Comment) []domain.Comment {
	out := make([]domain.Comment, len(in))
	for i, c := range in {
		c.Likes = slices.Clone(c.Likes)
		c.Replies = cloneComments(c.Replies)
		out[i] = c
	}
	return out
}

func toggle(likes *[]domain.Like, user domain.UserID) domain.LikeResult {
	if i := slices.IndexFunc(*likes, func(l domain.Like) bool { return l.UserID == user }); i >= 0 {
		*likes = slices.Delete(*likes, i, i+1)
		return domain.LikeResult{Liked: false, LikesCount: len(*likes)}
	}
	*likes = append(*likes, domain.Like{UserID: user, CreatedAt: srvTime})
	return domain.LikeResult{Liked: true, LikesCount: len(*likes)}
}

func (b *fakeBackend) GetPost(ctx context.Context, postID string) (*domain.Post, error) {
	var out *domain.Post
	err := b.do(ctx, "get "+postID, func() error {
		p, err := b.post(postID)
		if err != nil {
			return err
		}
		cp := *p
		cp.Images = slices.Clone(p.Images)
		cp.Likes = slices.Clone(p.Likes)
		cp.Views = slices.Clone(p.Views)
		cp.Comments = cloneComments(p.Comments)
		out = &cp
		return nil
	})
	return out, err
}

func (b *fakeBackend) TogglePostLike(ctx context.Context, postID string) (domain.LikeResult, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return domain.LikeResult{}, err
	}
	var res domain.LikeResult
	err = b.do(ctx, "like "+domain.PostSubject(postID).Key(), func() error {
		p, err := b.post(postID)
		if err != nil {
			return err
		}
		res = toggle(&p.Likes, caller.UserID)
		return nil
	})
	return res, err
}

func (b *fakeBackend) ToggleCommentLike(ctx context.Context, postID, commentID string) (domain.LikeResult, error) {
	return b.toggleNode(ctx, postID, "", commentID)
}

func (b *fakeBackend) ToggleReplyLike(ctx context.Context, postID, parentID, replyID string) (domain.LikeResult, error) {
	return b.toggleNode(ctx, postID, parentID, replyID)
}

func (b *fakeBackend) toggleNode(ctx context.Context, postID, parentID, id string) (domain.LikeResult, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return domain.LikeResult{}, err
	}
	var res domain.LikeResult
	err = b.do(ctx, "like "+domain.CommentSubject(postID, id).Key(), func() error {
		c, err := b.node(postID, parentID, id)
		if err != nil {
			return err
		}
		res = toggle(&c.Likes, caller.UserID)
		return nil
	})
	return res, err
}

func (b *fakeBackend) AddComment(ctx context.Context, postID, content string) (*domain.Comment, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	var out *domain.Comment
	err = b.do(ctx, "comment "+postID, func() error {
		p, err := b.post(postID)
		if err != nil {
			return err
		}
		b.seq++
		c := domain.Comment{
			ID:        fmt.Sprintf("srv-%d", b.seq),
			AuthorID:  caller.UserID,
			Content:   content,
			CreatedAt: srvTime,
			Likes:     []domain.Like{},
			Replies:   []domain.Comment{},
		}
		p.Comments = append(p.Comments, c)
		out = &c
		return nil
	})
	return out, err
}

func (b *fakeBackend) AddReply(ctx context.Context, postID, parentID, content string) (*domain.Comment, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	var out *domain.Comment
	err = b.do(ctx, "reply "+postID+"/"+parentID, func() error {
		parent, err := b.node(postID, "", parentID)
		if err != nil {
			return err
		}
		b.seq++
		r := domain.Comment{
			ID:        fmt.Sprintf("srv-%d", b.seq),
			AuthorID:  caller.UserID,
			Content:   content,
			CreatedAt: srvTime,
			Likes:     []domain.Like{},
			Depth:     domain.DepthReply,
		}
		parent.Replies = append(parent.Replies, r)
		out = &r
		return nil
	})
	return out, err
}

func (b *fakeBackend) EditComment(ctx context.Context, postID, commentID, content string) (*domain.Comment, error) {
	return b.edit(ctx, postID, "", commentID, content)
}

func (b *fakeBackend) EditReply(ctx context.Context, postID, parentID, replyID, content string) (*domain.Comment, error) {
	return b.edit(ctx, postID, parentID, replyID, content)
}

func (b *fakeBackend) edit(ctx context.Context, postID, parentID, id, content string) (*domain.Comment, error) {
	var out *domain.Comment
	err := b.do(ctx, "edit "+domain.CommentSubject(postID, id).Key(), func() error {
		c, err := b.node(postID, parentID, id)
		if err != nil {
			return err
		}
		at := srvTime.Add(time.Hour)
		c.Content = content
		c.UpdatedAt = &at
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

func (b *fakeBackend) DeleteComment(ctx context.Context, postID, commentID string) error {
	return b.delete(ctx, postID, "", commentID)
}

func (b *fakeBackend) DeleteReply(ctx context.Context, postID, parentID, replyID string) error {
	return b.delete(ctx, postID, parentID, replyID)
}

func (b *fakeBackend) delete(ctx context.Context, postID, parentID, id string) error {
	return b.do(ctx, "delete "+domain.CommentSubject(postID, id).Key(), func() error {
		if _, err := b.node(postID, parentID, id); err != nil {
			return err
		}
		p := b.posts[postID]
		byID := func(c domain.Comment) bool { return c.ID == id }
		if parentID == "" {
			p.Comments = slices.DeleteFunc(p.Comments, byID)
			return nil
		}
		for i := range p.Comments {
			if p.Comments[i].ID == parentID {
				p.Comments[i].Replies = slices.DeleteFunc(p.Comments[i].Replies, byID)
			}
		}
		return nil
	})
}

func (b *fakeBackend) SharePost(ctx context.Context, postID string) (domain.ShareResult, error) {
	var res domain.ShareResult
	err := b.do(ctx, "share "+postID, func() error {
		p, err := b.post(postID)
		if err != nil {
			return err
		}
		p.Shares++
		res.SharesCount = p.Shares
		return nil
	})
	return res, err
}

func (b *fakeBackend) RegisterView(ctx context.Context, postID string) error {
	caller, err := identity.Require(ctx)
	if err != nil {
		return err
	}
	return b.do(ctx, "view "+postID, func() error {
		p, err := b.post(postID)
		if err != nil {
			return err
		}
		if !slices.Contains(p.Views, caller.UserID) {
			p.Views = append(p.Views, caller.UserID)
		}
		return nil
	})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.EngagementEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.EngagementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) published() []domain.EngagementEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, note)
}

func (n *recordingNotifier) received() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.notices)
}
