package identity

import (
	"context"

	"github.com/oziev02/PostEngagement/internal/domain"
)

type callerKey struct{}

// Caller - аутентифицированный пользователь текущего запроса
type Caller struct {
	UserID domain.UserID
	Token  string
}

// WithCaller сохраняет вызывающего в context
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom достает вызывающего из context
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	if !ok || c.UserID == "" {
		return Caller{}, false
	}
	return c, true
}

// Require возвращает вызывающего или ErrUnauthorized
func Require(ctx context.Context) (Caller, error) {
	c, ok := CallerFrom(ctx)
	if !ok {
		return Caller{}, domain.ErrUnauthorized
	}
	return c, nil
}
