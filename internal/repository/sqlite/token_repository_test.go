package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cms-console/internal/repository"
)

func newTestRepo(t *testing.T, path string) repository.TokenRepository {
	t.Helper()
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewTokenRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func TestTokenRepository_LoadEmpty(t *testing.T) {
	repo := newTestRepo(t, filepath.Join(t.TempDir(), "state.db"))

	_, err := repo.Load(context.Background())
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)
}

func TestTokenRepository_SaveOverwriteClear(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, filepath.Join(t.TempDir(), "state.db"))

	require.NoError(t, repo.Save(ctx, "abc"))
	require.NoError(t, repo.Save(ctx, "def"))

	token, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "def", token)

	require.NoError(t, repo.Clear(ctx))
	require.NoError(t, repo.Clear(ctx))
	_, err = repo.Load(ctx)
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)
}

func TestTokenRepository_SaveEmptyClears(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, filepath.Join(t.TempDir(), "state.db"))

	require.NoError(t, repo.Save(ctx, "abc"))
	require.NoError(t, repo.Save(ctx, ""))

	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)
}

func TestTokenRepository_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	first := newTestRepo(t, path)
	require.NoError(t, first.Save(ctx, "persisted"))

	second := newTestRepo(t, path)
	token, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", token)
}
