package http

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/metrics"
	"github.com/oziev02/PostEngagement/internal/session"
)

type registryEntry struct {
	session  *session.Session
	lastSeen time.Time
}

// Registry хранит по одной сессии на пользователя и выселяет простаивающие
type Registry struct {
	mu       sync.Mutex
	sessions map[domain.UserID]*registryEntry
	ttl      time.Duration
	opts     []session.Option
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewRegistry создает новый экземпляр Registry
func NewRegistry(ttl time.Duration, m *metrics.Metrics, logger *slog.Logger, opts ...session.Option) *Registry {
	return &Registry{
		sessions: make(map[domain.UserID]*registryEntry),
		ttl:      ttl,
		opts:     opts,
		metrics:  m,
		logger:   logger.With("component", "registry"),
		now:      time.Now,
	}
}

// Get возвращает сессию пользователя, создавая ее при первом обращении
func (r *Registry) Get(user domain.UserID) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[user]
	if !ok {
		e = &registryEntry{session: session.New(user, r.opts...)}
		r.sessions[user] = e
		r.metrics.SetActiveSessions(len(r.sessions))
		r.logger.Debug("session created", "user", user)
	}
	e.lastSeen = r.now()
	return e.session
}

// Len возвращает число сессий
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict удаляет сессии, простаивающие дольше ttl.
// Сессия с мутацией в полете не выселяется, ее срок отсчитывается заново.
func (r *Registry) Evict() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	deadline := now.Add(-r.ttl)
	evicted := 0
	for user, e := range r.sessions {
		if !e.lastSeen.Before(deadline) {
			continue
		}
		if e.session.Busy() {
			e.lastSeen = now
			continue
		}
		delete(r.sessions, user)
		evicted++
	}
	if evicted > 0 {
		r.metrics.SetActiveSessions(len(r.sessions))
		r.logger.Info("idle sessions evicted", "count", evicted, "remaining", len(r.sessions))
	}
	return evicted
}

// Run периодически выселяет простаивающие сессии до отмены ctx
func (r *Registry) Run(ctx context.Context) error {
	interval := max(r.ttl/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Evict()
		}
	}
}
