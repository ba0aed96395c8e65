package memory

import (
	"context"
	"sync"

	"cms-console/internal/repository"
)

// TokenRepository keeps the token in process memory. Used by tests and by the
// "memory" session backend.
type TokenRepository struct {
	mu    sync.Mutex
	token string
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{}
}

func (r *TokenRepository) Init(context.Context) error { return nil }

func (r *TokenRepository) Load(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token == "" {
		return "", repository.ErrTokenNotFound
	}
	return r.token, nil
}

func (r *TokenRepository) Save(_ context.Context, token string) error {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
	return nil
}

func (r *TokenRepository) Clear(context.Context) error {
	r.mu.Lock()
	r.token = ""
	r.mu.Unlock()
	return nil
}

var _ repository.TokenRepository = (*TokenRepository)(nil)
