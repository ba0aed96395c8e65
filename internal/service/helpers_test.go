package service

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"cms-console/internal/domain"
	"cms-console/internal/fakeapi"
	apphttp "cms-console/internal/http"
	"cms-console/internal/repository/memory"
)

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.mu.Unlock()
}

func (n *recordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

type testEnv struct {
	fake   *fakeapi.Server
	client *apphttp.Client
	tokens *memory.TokenRepository
	nav    *recordingNavigator
	store  *SessionStore
	logger *logrus.Logger
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEnv(t *testing.T, opts fakeapi.Options) *testEnv {
	t.Helper()

	fake := fakeapi.New(opts)
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	logger := quietLogger()
	tokens := memory.NewTokenRepository()
	nav := &recordingNavigator{}
	client := apphttp.NewClient(apphttp.Config{BaseURL: srv.URL, Logger: logger}, tokens, nav)
	store := NewSessionStore(client, tokens, nav, logger)
	client.OnUnauthorized(store.Invalidate)

	return &testEnv{fake: fake, client: client, tokens: tokens, nav: nav, store: store, logger: logger}
}

func (e *testEnv) persisted(t *testing.T) string {
	t.Helper()
	token, err := e.tokens.Load(context.Background())
	if err != nil {
		return ""
	}
	return token
}

func (e *testEnv) loginAs(t *testing.T, username string, role domain.Role) *domain.User {
	t.Helper()
	e.fake.AddUser(username, "secret123", role)
	user, err := e.store.Login(context.Background(), username, "secret123")
	require.NoError(t, err)
	return user
}
