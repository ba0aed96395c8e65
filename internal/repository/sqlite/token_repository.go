package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cms-console/internal/repository"
)

const (
	createClientStateTable = `
CREATE TABLE IF NOT EXISTS client_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`
	tokenKey = "token"
)

type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) repository.TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createClientStateTable); err != nil {
		return fmt.Errorf("create client_state table: %w", err)
	}
	return nil
}

func (r *TokenRepository) Load(ctx context.Context) (string, error) {
	var token string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key=?`, tokenKey).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", repository.ErrTokenNotFound
		}
		return "", fmt.Errorf("load token: %w", err)
	}
	if token == "" {
		return "", repository.ErrTokenNotFound
	}
	return token, nil
}

func (r *TokenRepository) Save(ctx context.Context, token string) error {
	if token == "" {
		return r.Clear(ctx)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO client_state (key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		tokenKey,
		token,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (r *TokenRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM client_state WHERE key=?`, tokenKey); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}
