package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/identity"
	"github.com/oziev02/PostEngagement/internal/ordering"
	"github.com/oziev02/PostEngagement/internal/session"
	"github.com/oziev02/PostEngagement/internal/usecase"
)

// EngagementHandler обрабатывает HTTP запросы вовлеченности
type EngagementHandler struct {
	coordinator *usecase.Coordinator
	registry    *Registry
	logger      *slog.Logger
}

// NewEngagementHandler создает новый экземпляр EngagementHandler
func NewEngagementHandler(coordinator *usecase.Coordinator, registry *Registry, logger *slog.Logger) *EngagementHandler {
	return &EngagementHandler{
		coordinator: coordinator,
		registry:    registry,
		logger:      logger.With("component", "http"),
	}
}

// ContentRequest DTO для создания и правки комментария
type ContentRequest struct {
	Content string `json:"content"`
}

// PostResponse DTO поста с упорядоченной страницей комментариев
type PostResponse struct {
	ID            string          `json:"id"`
	AuthorID      domain.UserID   `json:"authorId"`
	Content       string          `json:"content"`
	Images        []domain.Image  `json:"images"`
	CreatedAt     time.Time       `json:"createdAt"`
	Likes         []domain.Like   `json:"likes"`
	LikesCount    int             `json:"likesCount"`
	LikedByMe     bool            `json:"likedByMe"`
	Shares        int             `json:"shares"`
	ViewsCount    int             `json:"viewsCount"`
	CommentsCount int             `json:"commentsCount"`
	Comments      ordering.Page   `json:"comments"`
	Views         []domain.UserID `json:"views"`
}

// session возвращает сессию вызывающего
func (h *EngagementHandler) session(r *http.Request) (*session.Session, error) {
	caller, err := identity.Require(r.Context())
	if err != nil {
		return nil, err
	}
	return h.registry.Get(caller.UserID), nil
}

// ensurePost загружает пост в сессию, если его там еще нет
func (h *EngagementHandler) ensurePost(ctx context.Context, s *session.Session, postID string) error {
	loaded := false
	_ = s.Update(func(st *session.State) error {
		loaded = st.HasPost(postID)
		return nil
	})
	if loaded {
		return nil
	}
	_, err := h.coordinator.Refresh(ctx, s, postID)
	return err
}

// prepare достает сессию и гарантирует, что пост загружен
func (h *EngagementHandler) prepare(w http.ResponseWriter, r *http.Request) (*session.Session, string, bool) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return nil, "", false
	}
	postID := r.PathValue("postId")
	if err := h.ensurePost(r.Context(), s, postID); err != nil {
		h.writeError(w, err)
		return nil, "", false
	}
	return s, postID, true
}

// GetPost обрабатывает GET /posts/{postId}
func (h *EngagementHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	post, err := h.coordinator.Refresh(r.Context(), s, r.PathValue("postId"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(post, s.User(), filter))
}

// LikePost обрабатывает POST /posts/{postId}/like
func (h *EngagementHandler) LikePost(w http.ResponseWriter, r *http.Request) {
	s, postID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	out, err := h.coordinator.LikePost(r.Context(), s, postID)
	h.respond(w, http.StatusOK, out, err)
}

// LikeComment обрабатывает POST /posts/{postId}/comments/{commentId}/like
func (h *EngagementHandler) LikeComment(w http.ResponseWriter, r *http.Request) {
	s, postID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	out, err := h.coordinator.LikeComment(r.Context(), s, postID, r.PathValue("commentId"))
	h.respond(w, http.StatusOK, out, err)
}

// LikeReply обрабатывает POST /posts/{postId}/comments/{commentId}/replies/{replyId}/like
func (h *EngagementHandler) LikeReply(w http.ResponseWriter, r *http.Request) {
	s, postID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	out, err := h.coordinator.LikeReply(r.Context(), s, postID, r.PathValue("commentId"), r.PathValue("replyId"))
	h.respond(w, http.StatusOK, out, err)
}

// AddComment обрабатывает POST /posts/{postId}/comments
func (h *EngagementHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s, postID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	out, err := h.coordinator.AddComment(r.Context(), s, postID, req.Content)
	h.respond(w, http.StatusCreated, out, err)
}

// AddReply обрабатывает POST /posts/{postId}/comments/{commentId}/replies
func (h *EngagementHandler) AddReply(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s, postID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	out, err := h.coordinator.AddReply(r.Context(), s, postID, r.PathValue("commentId"), req.Content)
	h.respond(w, http.StatusCreated, out, err)
}

// EditComment обрабатывает PUT /posts/{postId}/comments/{commentId}
func (h *EngagementHandler) EditComment(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "", r.PathValue("commentId"))
}

// EditReply обрабатывает PUT /posts/{postId}/comments/{commentId}/replies/{replyId}
func (h *EngagementHandler) EditReply(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, r.PathValue("commentId"), r.PathValue("replyId"))
}

func (h *EngagementHandler) edit(w http.ResponseWriter, r *http.Request, parentID, id string) {
	var req ContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s, postID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	out, err := h.coordinator.EditComment(r.Context(), s, postID, parentID, id, req.Content)
	h.respond(w, http.StatusOK, out, err)
}

// DeleteComment обрабатывает DELETE /posts/{postId}/comments/{commentId}
func (h *EngagementHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, "", r.PathValue("commentId"))
}

// DeleteReply обрабатывает DELETE /posts/{postId}/comments/{commentId}/replies/{replyId}
func (h *EngagementHandler) DeleteReply(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, r.PathValue("commentId"), r.PathValue("replyId"))
}

func (h *EngagementHandler) delete(w http.ResponseWriter, r *http.Request, parentID, id string) {
	s, postID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	if _, err := h.coordinator.DeleteComment(r.Context(), s, postID, parentID, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SharePost обрабатывает POST /posts/{postId}/share
func (h *EngagementHandler) SharePost(w http.ResponseWriter, r *http.Request) {
	s, postID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	out, err := h.coordinator.SharePost(r.Context(), s, postID)
	h.respond(w, http.StatusOK, out, err)
}

// RegisterView обрабатывает POST /posts/{postId}/views
func (h *EngagementHandler) RegisterView(w http.ResponseWriter, r *http.Request) {
	s, postID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	out, err := h.coordinator.RegisterView(r.Context(), s, postID)
	h.respond(w, http.StatusOK, out, err)
}

// Notifications обрабатывает GET /notifications
func (h *EngagementHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Notifications())
}

// Health обрабатывает GET /healthz
func (h *EngagementHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.registry.Len()})
}

func (h *EngagementHandler) respond(w http.ResponseWriter, status int, body any, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, status, body)
}

// writeError переводит ошибки домена в HTTP статусы
func (h *EngagementHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrEmptyContent):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrMaxDepthExceeded):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrPendingSubject):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrPostNotFound),
		errors.Is(err, domain.ErrCommentNotFound),
		errors.Is(err, domain.ErrParentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrSubjectGone):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, domain.ErrLikeSyncFailed),
		errors.Is(err, domain.ErrMutationSyncFailed),
		errors.Is(err, domain.ErrTransport):
		h.logger.Warn("backend sync failed", "error", err)
		http.Error(w, "backend sync failed", http.StatusBadGateway)
	default:
		h.logger.Error("request failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// parseFilter разбирает параметры сортировки, поиска и пагинации
func parseFilter(r *http.Request) (ordering.Filter, error) {
	q := r.URL.Query()

	mode, err := ordering.ParseMode(q.Get("sort"))
	if err != nil {
		return ordering.Filter{}, err
	}
	filter := ordering.Filter{
		Mode:     mode,
		Search:   q.Get("search"),
		AuthorID: identity.Canonical(q.Get("author")),
	}

	if pageStr := q.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err == nil && page > 0 {
			filter.Page = page
		}
	}

	if pageSizeStr := q.Get("page_size"); pageSizeStr != "" {
		pageSize, err := strconv.Atoi(pageSizeStr)
		if err == nil && pageSize > 0 {
			filter.PageSize = pageSize
		}
	}

	return filter, nil
}

// toPostResponse преобразует domain.Post в PostResponse
func toPostResponse(p *domain.Post, viewer domain.UserID, filter ordering.Filter) PostResponse {
	return PostResponse{
		ID:            p.ID,
		AuthorID:      p.AuthorID,
		Content:       p.Content,
		Images:        p.Images,
		CreatedAt:     p.CreatedAt,
		Likes:         p.Likes,
		LikesCount:    p.LikesCount(),
		LikedByMe:     p.IsLikedBy(viewer),
		Shares:        p.Shares,
		ViewsCount:    len(p.Views),
		CommentsCount: p.CommentsCount(),
		Comments:      ordering.Apply(p.Comments, filter),
		Views:         p.Views,
	}
}
