package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cms-console/internal/domain"
	"cms-console/internal/repository"
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

func newTestClient(t *testing.T, handler http.Handler) (*Client, *memory.TokenRepository, *recordingNavigator) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := memory.NewTokenRepository()
	nav := &recordingNavigator{}
	client := NewClient(Config{BaseURL: srv.URL + "/"}, tokens, nav)
	return client, tokens, nav
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_AttachesBearerWhenPresent(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	client, tokens, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "a1", "title": "t"})
	}))
	ctx := context.Background()

	_, err := client.GetArticle(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, tokens.Save(ctx, "abc"))
	_, err = client.GetArticle(ctx, "a1")
	require.NoError(t, err)

	assert.Equal(t, []string{"", "Bearer abc"}, seen)
}

func TestClient_WithoutInterceptorLeavesSessionAlone(t *testing.T) {
	client, tokens, nav := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "jwt expired"})
	}))
	ctx := context.Background()
	require.NoError(t, tokens.Save(ctx, "abc"))

	hookCalls := 0
	client.OnUnauthorized(func(context.Context) { hookCalls++ })

	_, err := client.Profile(WithoutInterceptor(ctx), "abc")
	require.ErrorIs(t, err, ErrUnauthorized)

	token, loadErr := tokens.Load(ctx)
	require.NoError(t, loadErr)
	assert.Equal(t, "abc", token)
	assert.Zero(t, hookCalls)
	assert.Empty(t, nav.Paths())
}

func TestClient_UnauthorizedClearsTokenAndRedirects(t *testing.T) {
	var (
		mu       sync.Mutex
		calls    int
		lastAuth string
	)
	client, tokens, nav := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		lastAuth = r.Header.Get("Authorization")
		first := calls == 1
		mu.Unlock()
		if first {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "jwt expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}, "total": 0})
	}))
	ctx := context.Background()
	require.NoError(t, tokens.Save(ctx, "expired"))

	hookCalls := 0
	client.OnUnauthorized(func(context.Context) { hookCalls++ })

	_, err := client.ListArticles(ctx, domain.ListParams{Page: 1, Limit: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Contains(t, err.Error(), "jwt expired")

	_, loadErr := tokens.Load(ctx)
	assert.ErrorIs(t, loadErr, repository.ErrTokenNotFound)
	assert.Equal(t, 1, hookCalls)
	assert.Equal(t, []string{LoginPath}, nav.Paths())

	_, err = client.ListArticles(ctx, domain.ListParams{Page: 1, Limit: 5})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, lastAuth, "requests after a 401 must not carry a bearer")
}

func TestClient_LoginIsAnonymous(t *testing.T) {
	client, tokens, nav := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "xyz"})
	}))
	ctx := context.Background()
	require.NoError(t, tokens.Save(ctx, "old"))

	token, err := client.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	_, err = client.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, nav.Paths(), "a rejected login must not redirect")
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnprocessableEntity, ErrBadRequest},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusInternalServerError, ErrServer},
		{http.StatusBadGateway, ErrServer},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"message": "nope"})
			}))
			err := client.DeleteArticle(context.Background(), "a1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_FieldErrors(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": []string{"title should not be empty"},
			"errors": map[string]any{
				"title":      "title should not be empty",
				"categoryId": []string{"must be a UUID", "is required"},
			},
		})
	}))

	_, err := client.CreateArticle(context.Background(), domain.ArticleInput{})
	require.Error(t, err)
	fields := FieldErrors(err)
	assert.Equal(t, "title should not be empty", fields["title"])
	assert.Equal(t, "must be a UUID; is required", fields["categoryId"])
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(Config{BaseURL: url}, memory.NewTokenRepository(), nil)
	_, err := client.GetArticle(context.Background(), "a1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
}

func TestClient_UnwrapsDataEnvelope(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/categories/c1":
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"id": "c1", "name": "Tech"}})
		case "/categories":
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			writeJSON(w, http.StatusOK, map[string]any{
				"data":        []map[string]string{{"id": "c1", "name": "Tech"}},
				"totalData":   11,
				"currentPage": 2,
				"totalPages":  2,
			})
		}
	}))
	ctx := context.Background()

	category, err := client.GetCategory(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Tech", category.Name)

	page, err := client.ListCategories(ctx, domain.ListParams{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 11, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Data, 1)
}

func TestClient_ListArticlesQuery(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "9", q.Get("limit"))
		assert.Equal(t, "go lang", q.Get("search"))
		assert.Equal(t, "c1", q.Get("categoryId"))
		writeJSON(w, http.StatusOK, map[string]any{
			"data":  []map[string]string{{"id": "a1", "title": "Hello", "image": "/a.png"}},
			"total": 19,
		})
	}))

	page, err := client.ListArticles(context.Background(), domain.ListParams{Page: 1, Limit: 9, Search: "go lang", CategoryID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, "/a.png", page.Data[0].ImageURL)
}

func TestClient_Upload(t *testing.T) {
	client, tokens, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "png-bytes", string(body))
		assert.Equal(t, "thumb.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		writeJSON(w, http.StatusCreated, map[string]string{"imageUrl": "https://cdn/thumb.png"})
	}))
	ctx := context.Background()
	require.NoError(t, tokens.Save(ctx, "abc"))

	url, err := client.Upload(ctx, "thumb.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/thumb.png", url)
}

func TestClient_UploadMissingURL(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	}))

	_, err := client.Upload(context.Background(), "a.png", "image/png", strings.NewReader("x"))
	assert.ErrorContains(t, err, "missing imageUrl")
}
