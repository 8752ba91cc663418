package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oziev02/PostEngagement/internal/identity"
)

// NewRouter создает HTTP роутер. Маршруты вовлеченности требуют bearer токен.
func NewRouter(handler *EngagementHandler, verifier *identity.TokenVerifier, gatherer prometheus.Gatherer) *http.ServeMux {
	api := http.NewServeMux()

	api.HandleFunc("GET /posts/{postId}", handler.GetPost)
	api.HandleFunc("POST /posts/{postId}/like", handler.LikePost)
	api.HandleFunc("POST /posts/{postId}/share", handler.SharePost)
	api.HandleFunc("POST /posts/{postId}/views", handler.RegisterView)

	api.HandleFunc("POST /posts/{postId}/comments", handler.AddComment)
	api.HandleFunc("PUT /posts/{postId}/comments/{commentId}", handler.EditComment)
	api.HandleFunc("DELETE /posts/{postId}/comments/{commentId}", handler.DeleteComment)
	api.HandleFunc("POST /posts/{postId}/comments/{commentId}/like", handler.LikeComment)

	api.HandleFunc("POST /posts/{postId}/comments/{commentId}/replies", handler.AddReply)
	api.HandleFunc("PUT /posts/{postId}/comments/{commentId}/replies/{replyId}", handler.EditReply)
	api.HandleFunc("DELETE /posts/{postId}/comments/{commentId}/replies/{replyId}", handler.DeleteReply)
	api.HandleFunc("POST /posts/{postId}/comments/{commentId}/replies/{replyId}/like", handler.LikeReply)

	api.HandleFunc("GET /notifications", handler.Notifications)

	mux := http.NewServeMux()
	mux.Handle("/", AuthMiddleware(verifier, api))
	mux.HandleFunc("GET /healthz", handler.Health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}
