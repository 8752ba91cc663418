// Package session хранит состояние вовлеченности одного пользователя:
// реестр лайков, дерево комментариев, просмотры и штампы ревизий.
// Сессии изолированы друг от друга; согласованность между ними дает только бэкенд.
package session

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oziev02/PostEngagement/internal/domain"
)

// Session - явно созданный контекст одного пользователя.
// Мьютекс никогда не удерживается во время сетевого вызова.
type Session struct {
	mu    sync.Mutex
	state *State
}

// Option настраивает сессию
type Option func(*State)

// WithReplyPolicy задает поведение при ответе на ответ
func WithReplyPolicy(p domain.ReplyPolicy) Option {
	return func(st *State) { st.policy = p }
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(st *State) { st.now = now }
}

// WithLogger задает логгер сессии
func WithLogger(logger *slog.Logger) Option {
	return func(st *State) { st.logger = logger }
}

// New создает сессию пользователя
func New(user domain.UserID, opts ...Option) *Session {
	st := &State{
		user:     user,
		policy:   domain.ReplyPolicyReject,
		now:      time.Now,
		logger:   slog.Default(),
		posts:    make(map[string]*postMeta),
		ledger:   NewLikeLedger(),
		tree:     NewCommentTree(),
		views:    NewViewCounter(),
		revs:     newRevisions(),
		applying: make(map[string]string),
		pending:  make(map[string][]Delta),
	}
	for _, opt := range opts {
		opt(st)
	}
	st.logger = st.logger.With("component", "session", "user", string(user))
	return &Session{state: st}
}

// User возвращает владельца сессии
func (s *Session) User() domain.UserID {
	return s.state.user
}

// Update выполняет fn под блокировкой сессии
func (s *Session) Update(fn func(st *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// Busy - в сессии есть мутации, ожидающие ответа бэкенда
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.HasPending()
}

// Post возвращает материализованный пост
func (s *Session) Post(postID string) (*domain.Post, error) {
	var post *domain.Post
	err := s.Update(func(st *State) error {
		var err error
		post, err = st.Post(postID)
		return err
	})
	return post, err
}

// Notifications забирает накопленные уведомления
func (s *Session) Notifications() []domain.Notification {
	var out []domain.Notification
	_ = s.Update(func(st *State) error {
		out = st.DrainNotifications()
		return nil
	})
	return out
}

type postMeta struct {
	id        string
	authorID  domain.UserID
	content   string
	images    []domain.Image
	createdAt time.Time
	shares    int
}

// Delta - неподтвержденная дельта мутации
type Delta struct {
	ID    string
	Facet string
	Rev   uint64
	// Reapply повторяет дельту поверх загруженного снимка
	Reapply func(st *State)
	// Owner - мутация, породившая дельту
	Owner any
}

// State - данные сессии, доступны только внутри Session.Update
type State struct {
	user   domain.UserID
	policy domain.ReplyPolicy
	now    func() time.Time
	logger *slog.Logger

	posts  map[string]*postMeta
	ledger *LikeLedger
	tree   *CommentTree
	views  *ViewCounter
	revs   *revisions

	applying      map[string]string  // (субъект, вид) -> id мутации
	pending       map[string][]Delta // post id -> неподтвержденные дельты в порядке выдачи
	notifications []domain.Notification
}

// User возвращает владельца сессии
func (st *State) User() domain.UserID { return st.user }

// Now возвращает текущее время сессии
func (st *State) Now() time.Time { return st.now() }

// Ledger возвращает реестр лайков
func (st *State) Ledger() *LikeLedger { return st.ledger }

// Tree возвращает дерево комментариев
func (st *State) Tree() *CommentTree { return st.tree }

// Views возвращает счетчик просмотров
func (st *State) Views() *ViewCounter { return st.views }

// HasPost проверяет, загружен ли пост
func (st *State) HasPost(postID string) bool {
	_, ok := st.posts[postID]
	return ok
}

func (st *State) requirePost(postID string) (*postMeta, error) {
	meta, ok := st.posts[postID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPostNotFound, postID)
	}
	return meta, nil
}

// Load заменяет пост снимком бэкенда и повторно применяет неподтвержденные дельты,
// чтобы снимок не затер более новые оптимистичные изменения.
func (st *State) Load(post *domain.Post) {
	st.dropPost(post.ID)

	st.posts[post.ID] = &postMeta{
		id:        post.ID,
		authorID:  post.AuthorID,
		content:   post.Content,
		images:    slices.Clone(post.Images),
		createdAt: post.CreatedAt,
		shares:    post.Shares,
	}
	st.ledger.Load(domain.PostSubject(post.ID).Key(), post.Likes)
	st.views.Load(post.ID, post.Views)

	flattened := 0
	for _, c := range post.Comments {
		st.tree.InsertComment(post.ID, c, false)
		st.ledger.Load(nodeKey(post.ID, c.ID), c.Likes)

		parent, _ := st.tree.Top(post.ID, c.ID)
		replies := flatten(c.Replies)
		flattened += len(replies) - len(c.Replies)
		for _, r := range replies {
			st.tree.InsertReply(post.ID, parent, r, false)
			st.ledger.Load(nodeKey(post.ID, r.ID), r.Likes)
		}
	}
	if flattened > 0 {
		st.logger.Warn("flattened replies deeper than one level", "post_id", post.ID, "count", flattened)
	}

	for _, p := range st.pending[post.ID] {
		p.Reapply(st)
	}
}

// flatten раскладывает вложенные ответы в один список в порядке обхода
func flatten(replies []domain.Comment) []domain.Comment {
	var out []domain.Comment
	for _, r := range replies {
		out = append(out, r)
		out = append(out, flatten(r.Replies)...)
	}
	return out
}

func (st *State) dropPost(postID string) {
	keys := st.tree.DropPost(postID)
	st.ledger.Drop(keys...)
	st.ledger.Drop(domain.PostSubject(postID).Key())
	st.views.Drop(postID)
	delete(st.posts, postID)
}

// PrunePost удаляет пост, исчезнувший на бэкенде, вместе с неподтвержденными дельтами
func (st *State) PrunePost(postID string) {
	st.dropPost(postID)
	delete(st.pending, postID)
}

// Post материализует пост из арены и реестра
func (st *State) Post(postID string) (*domain.Post, error) {
	meta, err := st.requirePost(postID)
	if err != nil {
		return nil, err
	}
	return &domain.Post{
		ID:        meta.id,
		AuthorID:  meta.authorID,
		Content:   meta.content,
		Images:    slices.Clone(meta.images),
		CreatedAt: meta.createdAt,
		Likes:     st.ledger.Likes(domain.PostSubject(postID).Key()),
		Comments:  st.tree.Materialize(postID, st.ledger),
		Shares:    meta.shares,
		Views:     st.views.List(postID),
	}, nil
}

// Shares возвращает счетчик репостов
func (st *State) Shares(postID string) int {
	if meta, ok := st.posts[postID]; ok {
		return meta.shares
	}
	return 0
}

// AddShares меняет счетчик репостов на delta
func (st *State) AddShares(postID string, delta int) error {
	meta, err := st.requirePost(postID)
	if err != nil {
		return err
	}
	meta.shares = max(meta.shares+delta, 0)
	return nil
}

// SetShares применяет авторитетный счетчик репостов
func (st *State) SetShares(postID string, n int) {
	if meta, ok := st.posts[postID]; ok {
		meta.shares = n
	}
}

// Applying проверяет, выполняется ли мутация с этим ключом
func (st *State) Applying(key string) bool {
	_, ok := st.applying[key]
	return ok
}

// BeginApplying помечает ключ занятым мутацией id
func (st *State) BeginApplying(key, id string) {
	st.applying[key] = id
}

// EndApplying снимает отметку, если ее поставила эта мутация
func (st *State) EndApplying(key, id string) {
	if st.applying[key] == id {
		delete(st.applying, key)
	}
}

// Stamp выдает новую ревизию для грани субъекта
func (st *State) Stamp(facet string) uint64 { return st.revs.stamp(facet) }

// IsLatest - после rev по этой грани не выдавалось новых ревизий
func (st *State) IsLatest(facet string, rev uint64) bool { return st.revs.isLatest(facet, rev) }

// ConfirmRevision отмечает, что авторитетные данные ревизии rev применены
func (st *State) ConfirmRevision(facet string, rev uint64) { st.revs.confirm(facet, rev) }

// Superseded - откат ревизии rev перекрыт уже примененным подтверждением
func (st *State) Superseded(facet string, rev uint64) bool { return st.revs.superseded(facet, rev) }

// AddPending запоминает дельту для повторного применения после Load
func (st *State) AddPending(postID string, d Delta) {
	st.pending[postID] = append(st.pending[postID], d)
}

// RemovePending забывает дельту после фиксации или отката
func (st *State) RemovePending(postID, id string) {
	list := st.pending[postID]
	if i := slices.IndexFunc(list, func(p Delta) bool { return p.ID == id }); i >= 0 {
		list = slices.Delete(list, i, i+1)
	}
	if len(list) == 0 {
		delete(st.pending, postID)
		return
	}
	st.pending[postID] = list
}

// Successor возвращает ближайшую более новую неподтвержденную дельту той же грани
func (st *State) Successor(postID, facet string, rev uint64) (Delta, bool) {
	var (
		next  Delta
		found bool
	)
	for _, p := range st.pending[postID] {
		if p.Facet != facet || p.Rev <= rev {
			continue
		}
		if !found || p.Rev < next.Rev {
			next, found = p, true
		}
	}
	return next, found
}

// HasPending проверяет, есть ли в сессии неподтвержденные дельты
func (st *State) HasPending() bool {
	return len(st.pending) > 0
}

// PendingCount возвращает число неподтвержденных дельт поста
func (st *State) PendingCount(postID string) int {
	return len(st.pending[postID])
}

// Notify ставит уведомление в очередь
func (st *State) Notify(n domain.Notification) {
	st.notifications = append(st.notifications, n)
}

// DrainNotifications забирает очередь уведомлений
func (st *State) DrainNotifications() []domain.Notification {
	out := st.notifications
	st.notifications = nil
	if out == nil {
		return []domain.Notification{}
	}
	return out
}
