// Package backend реализует domain.Transport поверх HTTP API авторитетного бэкенда.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"

	"github.com/oziev02/PostEngagement/internal/domain"
	"github.com/oziev02/PostEngagement/internal/identity"
)

const (
	postPath       = "/posts/{postId}"
	postLikePath   = "/posts/{postId}/like"
	postSharePath  = "/posts/{postId}/share"
	postViewsPath  = "/posts/{postId}/views"
	commentsPath   = "/posts/{postId}/comments"
	commentPath    = "/posts/{postId}/comments/{commentId}"
	commentLike    = "/posts/{postId}/comments/{commentId}/like"
	repliesPath    = "/posts/{postId}/comments/{commentId}/replies"
	replyPath      = "/posts/{postId}/comments/{commentId}/replies/{replyId}"
	replyLikePath  = "/posts/{postId}/comments/{commentId}/replies/{replyId}/like"
	defaultTimeout = 10 * time.Second
)

// Ключи конвертов, в которые бэкенд может завернуть объект
var envelopeKeys = []string{"data", "post", "comment", "reply"}

// Config - параметры клиента
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client реализует domain.Transport для HTTP API бэкенда
type Client struct {
	client *resty.Client
}

// NewClient создает новый экземпляр Client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{client: client}
}

// Close освобождает соединения клиента
func (c *Client) Close() error {
	return c.client.Close()
}

type contentBody struct {
	Content string `json:"content"`
}

// r готовит запрос от имени вызывающего из context
func (c *Client) r(ctx context.Context, params map[string]string) (*resty.Request, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	req := c.client.R().
		WithContext(ctx).
		SetPathParams(params)
	if caller.Token != "" {
		req.SetAuthToken(caller.Token)
	}
	return req, nil
}

// GetPost получает пост со всеми комментариями
func (c *Client) GetPost(ctx context.Context, postID string) (*domain.Post, error) {
	req, err := c.r(ctx, map[string]string{"postId": postID})
	if err != nil {
		return nil, err
	}
	res, err := req.Get(postPath)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	post, err := identity.DecodePost(unwrap(res.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	if post.ID == "" {
		post.ID = postID
	}
	return post, nil
}

// TogglePostLike переключает лайк поста
func (c *Client) TogglePostLike(ctx context.Context, postID string) (domain.LikeResult, error) {
	return c.like(ctx, postLikePath, map[string]string{"postId": postID})
}

// ToggleCommentLike переключает лайк комментария
func (c *Client) ToggleCommentLike(ctx context.Context, postID, commentID string) (domain.LikeResult, error) {
	return c.like(ctx, commentLike, map[string]string{"postId": postID, "commentId": commentID})
}

// ToggleReplyLike переключает лайк ответа
func (c *Client) ToggleReplyLike(ctx context.Context, postID, parentID, replyID string) (domain.LikeResult, error) {
	return c.like(ctx, replyLikePath, map[string]string{"postId": postID, "commentId": parentID, "replyId": replyID})
}

func (c *Client) like(ctx context.Context, path string, params map[string]string) (domain.LikeResult, error) {
	req, err := c.r(ctx, params)
	if err != nil {
		return domain.LikeResult{}, err
	}
	res, err := req.SetResult(&domain.LikeResult{}).Post(path)
	if err := check(res, err); err != nil {
		return domain.LikeResult{}, fmt.Errorf("failed to toggle like: %w", err)
	}

	result, ok := res.Result().(*domain.LikeResult)
	if !ok || result.LikesCount < 0 {
		return domain.LikeResult{}, fmt.Errorf("%w: malformed like result", domain.ErrTransport)
	}
	return *result, nil
}

// AddComment создает комментарий верхнего уровня
func (c *Client) AddComment(ctx context.Context, postID, content string) (*domain.Comment, error) {
	req, err := c.r(ctx, map[string]string{"postId": postID})
	if err != nil {
		return nil, err
	}
	res, err := req.SetBody(contentBody{Content: content}).Post(commentsPath)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return decodeComment(res, domain.DepthComment)
}

// AddReply создает ответ на комментарий
func (c *Client) AddReply(ctx context.Context, postID, parentID, content string) (*domain.Comment, error) {
	req, err := c.r(ctx, map[string]string{"postId": postID, "commentId": parentID})
	if err != nil {
		return nil, err
	}
	res, err := req.SetBody(contentBody{Content: content}).Post(repliesPath)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to create reply: %w", err)
	}
	return decodeComment(res, domain.DepthReply)
}

// EditComment меняет текст комментария
func (c *Client) EditComment(ctx context.Context, postID, commentID, content string) (*domain.Comment, error) {
	req, err := c.r(ctx, map[string]string{"postId": postID, "commentId": commentID})
	if err != nil {
		return nil, err
	}
	res, err := req.SetBody(contentBody{Content: content}).Put(commentPath)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to edit comment: %w", err)
	}
	return decodeComment(res, domain.DepthComment)
}

// EditReply меняет текст ответа
func (c *Client) EditReply(ctx context.Context, postID, parentID, replyID, content string) (*domain.Comment, error) {
	req, err := c.r(ctx, map[string]string{"postId": postID, "commentId": parentID, "replyId": replyID})
	if err != nil {
		return nil, err
	}
	res, err := req.SetBody(contentBody{Content: content}).Put(replyPath)
	if err := check(res, err); err != nil {
		return nil, fmt.Errorf("failed to edit reply: %w", err)
	}
	return decodeComment(res, domain.DepthReply)
}

// DeleteComment удаляет комментарий вместе с ответами
func (c *Client) DeleteComment(ctx context.Context, postID, commentID string) error {
	req, err := c.r(ctx, map[string]string{"postId": postID, "commentId": commentID})
	if err != nil {
		return err
	}
	res, err := req.Delete(commentPath)
	if err := check(res, err); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

// DeleteReply удаляет ответ
func (c *Client) DeleteReply(ctx context.Context, postID, parentID, replyID string) error {
	req, err := c.r(ctx, map[string]string{"postId": postID, "commentId": parentID, "replyId": replyID})
	if err != nil {
		return err
	}
	res, err := req.Delete(replyPath)
	if err := check(res, err); err != nil {
		return fmt.Errorf("failed to delete reply: %w", err)
	}
	return nil
}

// SharePost регистрирует репост
func (c *Client) SharePost(ctx context.Context, postID string) (domain.ShareResult, error) {
	req, err := c.r(ctx, map[string]string{"postId": postID})
	if err != nil {
		return domain.ShareResult{}, err
	}
	res, err := req.SetResult(&domain.ShareResult{}).Post(postSharePath)
	if err := check(res, err); err != nil {
		return domain.ShareResult{}, fmt.Errorf("failed to share post: %w", err)
	}

	result, ok := res.Result().(*domain.ShareResult)
	if !ok || result.SharesCount < 0 {
		return domain.ShareResult{}, fmt.Errorf("%w: malformed share result", domain.ErrTransport)
	}
	return *result, nil
}

// RegisterView регистрирует просмотр поста
func (c *Client) RegisterView(ctx context.Context, postID string) error {
	req, err := c.r(ctx, map[string]string{"postId": postID})
	if err != nil {
		return err
	}
	res, err := req.Post(postViewsPath)
	if err := check(res, err); err != nil {
		return fmt.Errorf("failed to register view: %w", err)
	}
	return nil
}

// check переводит ответ в ошибки домена: 404 - субъект исчез, 401 - нет доступа,
// остальное - ошибка транспорта.
func check(res *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}

	switch code := res.StatusCode(); {
	case code == http.StatusNotFound:
		return domain.ErrSubjectGone
	case code == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case res.IsError() || code >= http.StatusMultipleChoices:
		return fmt.Errorf("%w: unexpected status %d", domain.ErrTransport, code)
	}
	return nil
}

func decodeComment(res *resty.Response, depth int) (*domain.Comment, error) {
	comment, err := identity.DecodeComment(unwrap(res.Bytes()), depth)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	if comment.ID == "" {
		return nil, fmt.Errorf("%w: comment without id", domain.ErrTransport)
	}
	return comment, nil
}

// unwrap снимает конверт вида {"data": {...}}, если объект пришел в нем
func unwrap(data []byte) []byte {
	var o map[string]json.RawMessage
	if err := json.Unmarshal(data, &o); err != nil {
		return data
	}
	if _, ok := o["_id"]; ok {
		return data
	}
	if _, ok := o["id"]; ok {
		return data
	}
	for _, k := range envelopeKeys {
		if inner, ok := o[k]; ok && len(inner) > 0 && inner[0] == '{' {
			return inner
		}
	}
	return data
}
