package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/identity"
	"github.com/oziev02/PostEngagement/internal/metrics"
	"github.com/oziev02/PostEngagement/internal/session"
)

// DefaultMutationTimeout - таймаут вызова бэкенда по умолчанию
const DefaultMutationTimeout = 10 * time.Second

// State - состояние мутации
type State string

const (
	StateIdle       State = "idle"
	StateApplying   State = "applying"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// Outcome - итог мутации.
// Applied=false: мутация поглощена дублем или не требовала вызова бэкенда.
type Outcome struct {
	ID      string              `json:"id,omitempty"`
	Kind    domain.MutationKind `json:"kind"`
	State   State               `json:"state"`
	Applied bool                `json:"applied"`
	Rev     uint64              `json:"-"`
}

// Config - параметры координатора
type Config struct {
	MutationTimeout time.Duration
	Coalesce        bool
}

// Option настраивает координатор
type Option func(*Coordinator)

// WithPublisher задает получателя подтвержденных событий
func WithPublisher(p domain.EventPublisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithNotifier задает дополнительного получателя уведомлений об откате
func WithNotifier(n domain.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithMetrics задает метрики
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger задает логгер
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// Coordinator проводит каждую мутацию через оптимистичное применение,
// вызов бэкенда и фиксацию либо точный откат.
type Coordinator struct {
	transport domain.Transport
	publisher domain.EventPublisher
	notifier  domain.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config
}

// NewCoordinator создает новый экземпляр Coordinator
func NewCoordinator(transport domain.Transport, cfg Config, opts ...Option) *Coordinator {
	if cfg.MutationTimeout <= 0 {
		cfg.MutationTimeout = DefaultMutationTimeout
	}
	c := &Coordinator{
		transport: transport,
		logger:    slog.Default(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "coordinator")
	return c
}

// mutation - одна пользовательская операция вместе со своей обратной.
// Методы, получающие *session.State, вызываются под блокировкой сессии.
type mutation interface {
	kind() domain.MutationKind
	subject() domain.SubjectRef
	// key - ключ поглощения дублей
	key() string
	// facet - грань субъекта, по которой выдаются ревизии
	facet() string
	// apply возвращает false, если вызывать бэкенд не нужно
	apply(st *session.State) (bool, error)
	send(ctx context.Context, t domain.Transport) error
	// commit применяет ответ бэкенда; latest=false для устаревшего подтверждения
	commit(st *session.State, latest bool)
	revert(st *session.State)
	reapply(st *session.State)
	// gone обрабатывает исчезнувший субъект; true - считать успехом
	gone(st *session.State) bool
	syncErr() error
	describe(ev *domain.EngagementEvent)
	message() string
}

// rebaser - мутация, способная принять точку отката более старой мутации той же грани.
// Пока более новая мутация выполняется, состояние показывает ее значение, и откат
// старой сводится к передаче точки отката.
type rebaser interface {
	adopt(older mutation) bool
}

// handOff передает точку отката m ближайшей более новой мутации той же грани
func handOff(st *session.State, postID, facet string, rev uint64, m mutation) bool {
	next, ok := st.Successor(postID, facet, rev)
	if !ok {
		return false
	}
	r, ok := next.Owner.(rebaser)
	return ok && r.adopt(m)
}

func (c *Coordinator) caller(ctx context.Context, s *session.Session) (identity.Caller, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return identity.Caller{}, err
	}
	if caller.UserID != s.User() {
		return identity.Caller{}, fmt.Errorf("%w: caller does not own the session", domain.ErrUnauthorized)
	}
	return caller, nil
}

func (c *Coordinator) run(ctx context.Context, s *session.Session, m mutation) (Outcome, error) {
	out := Outcome{Kind: m.kind(), State: StateIdle}
	if _, err := c.caller(ctx, s); err != nil {
		return out, err
	}

	ref := m.subject()
	key := m.key()
	facet := m.facet()
	coalesced := false

	err := s.Update(func(st *session.State) error {
		if c.cfg.Coalesce && st.Applying(key) {
			coalesced = true
			return nil
		}
		applied, err := m.apply(st)
		if err != nil || !applied {
			return err
		}
		out.ID = uuid.NewString()
		out.Applied = true
		out.State = StateApplying
		out.Rev = st.Stamp(facet)
		st.BeginApplying(key, out.ID)
		st.AddPending(ref.PostID, session.Delta{ID: out.ID, Facet: facet, Rev: out.Rev, Reapply: m.reapply, Owner: m})
		return nil
	})
	if err != nil {
		return out, err
	}
	if coalesced {
		c.metrics.Coalesced(string(out.Kind))
		c.logger.Debug("duplicate mutation coalesced", "kind", out.Kind, "subject", ref.String())
		return out, nil
	}
	if !out.Applied {
		return out, nil
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.MutationTimeout)
	sendErr := m.send(callCtx, c.transport)
	cancel()
	took := time.Since(start)

	var (
		result  error
		stale   bool
		outcome string
		notice  *domain.Notification
	)
	_ = s.Update(func(st *session.State) error {
		st.EndApplying(key, out.ID)
		st.RemovePending(ref.PostID, out.ID)

		gone := errors.Is(sendErr, domain.ErrSubjectGone)
		if gone && m.gone(st) {
			sendErr = nil
		}

		if sendErr == nil {
			latest := st.IsLatest(facet, out.Rev)
			if latest {
				st.ConfirmRevision(facet, out.Rev)
			}
			markCommitted(st, ref.PostID)
			m.commit(st, latest)
			stale = !latest
			out.State = StateCommitted
			outcome = metrics.OutcomeCommitted
			return nil
		}

		out.State = StateRolledBack
		if gone {
			outcome = metrics.OutcomeGone
			result = fmt.Errorf("%w: %s", domain.ErrSubjectGone, ref)
		} else {
			outcome = metrics.OutcomeRolledBack
			if !st.Superseded(facet, out.Rev) && !handOff(st, ref.PostID, facet, out.Rev, m) {
				m.revert(st)
			}
			result = fmt.Errorf("%w: %w", m.syncErr(), sendErr)
		}

		n := domain.Notification{
			ID:         out.ID,
			UserID:     st.User(),
			Kind:       out.Kind,
			PostID:     ref.PostID,
			SubjectID:  ref.ID,
			Message:    m.message(),
			OccurredAt: st.Now(),
		}
		st.Notify(n)
		notice = &n
		return nil
	})

	c.metrics.ObserveMutation(string(out.Kind), outcome, took)
	if stale {
		c.metrics.StaleConfirmation(string(out.Kind))
		c.logger.Debug("stale confirmation discarded", "kind", out.Kind, "subject", ref.String(), "rev", out.Rev)
	}

	if result != nil {
		c.logger.Warn("mutation rolled back",
			"id", out.ID,
			"kind", out.Kind,
			"subject", ref.String(),
			"error", sendErr,
		)
		if c.notifier != nil && notice != nil {
			c.notifier.Notify(ctx, *notice)
		}
		return out, result
	}

	c.publish(ctx, s.User(), out, m)
	return out, nil
}

func (c *Coordinator) publish(ctx context.Context, user domain.UserID, out Outcome, m mutation) {
	if c.publisher == nil {
		return
	}
	ref := m.subject()
	ev := domain.EngagementEvent{
		ID:         out.ID,
		Kind:       out.Kind,
		UserID:     user,
		PostID:     ref.PostID,
		ParentID:   ref.ParentID,
		SubjectID:  ref.ID,
		OccurredAt: time.Now().UTC(),
	}
	m.describe(&ev)

	// Публикация не должна зависеть от отмены запроса пользователя
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.MutationTimeout)
	defer cancel()
	if err := c.publisher.Publish(pubCtx, ev); err != nil {
		c.logger.Error("failed to publish engagement event", "id", ev.ID, "kind", ev.Kind, "error", err)
	}
}

// commitFacet - грань, отмечающая любую фиксацию на посте; по ней отбрасываются устаревшие снимки
func commitFacet(postID string) string {
	return session.Facet(domain.PostSubject(postID).Key(), "commit")
}

func markCommitted(st *session.State, postID string) {
	facet := commitFacet(postID)
	st.ConfirmRevision(facet, st.Stamp(facet))
}

func coalesceKey(ref domain.SubjectRef, kind domain.MutationKind, extra ...string) string {
	key := ref.Key() + "|" + string(kind)
	for _, e := range extra {
		key += "|" + e
	}
	return key
}

// baseMutation содержит общие для мутаций поля
type baseMutation struct {
	ref domain.SubjectRef
}

func (b baseMutation) subject() domain.SubjectRef { return b.ref }

func (b baseMutation) gone(st *session.State) bool {
	st.PruneSubject(b.ref)
	return false
}

func (b baseMutation) syncErr() error { return domain.ErrMutationSyncFailed }

func (b baseMutation) describe(*domain.EngagementEvent) {}
