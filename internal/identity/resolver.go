// Package identity приводит ссылки на пользователей к одному каноничному виду
// и хранит личность вызывающего в context.
package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/oziev02/PostEngagement/internal/domain"
)

// ErrInvalidRef - ссылку на пользователя нельзя разобрать
var ErrInvalidRef = errors.New("invalid user reference")

// refKeys - ключи, под которыми бэкенд присылает идентификатор
var refKeys = []string{"_id", "id", "$oid"}

// Canonical приводит строковый идентификатор к каноничному виду.
// ObjectID в hex приводится к нижнему регистру, остальные значения только обрезаются.
func Canonical(raw string) domain.UserID {
	s := strings.TrimSpace(raw)
	if oid, err := bson.ObjectIDFromHex(s); err == nil {
		return domain.UserID(oid.Hex())
	}
	return domain.UserID(s)
}

// Resolve разбирает ссылку из payload: строку, объект с id/_id
// или extended JSON вида {"$oid": "..."}. null дает пустой идентификатор.
func Resolve(raw json.RawMessage) (domain.UserID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidRef, err)
		}
		return Canonical(s), nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidRef, err)
		}
		for _, key := range refKeys {
			if v, ok := obj[key]; ok {
				return Resolve(v)
			}
		}
		return "", fmt.Errorf("%w: object without id", ErrInvalidRef)
	default:
		// числовые идентификаторы
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidRef, string(raw))
		}
		return domain.UserID(n.String()), nil
	}
}

// Ref - поле payload, содержащее ссылку на пользователя в любом виде
type Ref struct {
	ID domain.UserID
}

// UnmarshalJSON реализует json.Unmarshaler
func (r *Ref) UnmarshalJSON(data []byte) error {
	id, err := Resolve(data)
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}
