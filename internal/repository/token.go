package repository

import (
	"context"
	"errors"
)

// ErrTokenNotFound is returned by Load when no token has been persisted.
var ErrTokenNotFound = errors.New("token not found")

// TokenRepository persists the session token across process restarts.
type TokenRepository interface {
	Init(ctx context.Context) error
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}
