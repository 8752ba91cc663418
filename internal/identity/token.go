package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oziev02/PostEngagement/internal/domain"
)

// Claims - клеймы токена: uid, если есть, иначе sub
type Claims struct {
	UID string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier проверяет HS256 bearer-токены
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier создает новый экземпляр TokenVerifier
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify проверяет токен и возвращает вызывающего
func (v *TokenVerifier) Verify(token string) (Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(v.secret) == 0 {
		return Caller{}, domain.ErrUnauthorized
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(t *jwt.Token) (any, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return Caller{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, errors.Join(err, errInvalidToken))
	}

	uid := claims.UID
	if uid == "" {
		uid = claims.Subject
	}
	id := Canonical(uid)
	if id == "" {
		return Caller{}, fmt.Errorf("%w: token has no uid or sub", domain.ErrUnauthorized)
	}

	return Caller{UserID: id, Token: token}, nil
}

var errInvalidToken = errors.New("invalid token")

// BearerToken извлекает токен из заголовка Authorization
func BearerToken(header string) (string, bool) {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
