package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cms-console/internal/domain"
	"cms-console/internal/fakeapi"
	apphttp "cms-console/internal/http"
	"cms-console/internal/storage"
	"cms-console/internal/validation"
)

type stubSource struct {
	body        []byte
	contentType string
	size        int64
	opened      []string
}

func (s *stubSource) Open(_ context.Context, ref string) (*storage.Image, error) {
	s.opened = append(s.opened, ref)
	size := s.size
	if size == 0 {
		size = int64(len(s.body))
	}
	return &storage.Image{
		Name:        ref,
		ContentType: s.contentType,
		Size:        size,
		Body:        io.NopCloser(bytes.NewReader(s.body)),
	}, nil
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n0000IHDR")

func validArticleForm(categoryID string) validation.ArticleForm {
	return validation.ArticleForm{
		Title:      "Ten tips for Go",
		Content:    strings.Repeat("go ", 20),
		CategoryID: categoryID,
	}
}

func newArticleEnv(t *testing.T, opts fakeapi.Options) (*testEnv, ArticleService, *stubSource) {
	t.Helper()
	env := newTestEnv(t, opts)
	env.loginAs(t, "alice", domain.RoleAdmin)
	src := &stubSource{body: pngBytes, contentType: "image/png"}
	return env, NewArticleService(env.client, src, env.logger), src
}

func TestArticleService_SubmitCreatesWithImage(t *testing.T) {
	for _, wrap := range []bool{false, true} {
		t.Run(fmt.Sprintf("wrap=%v", wrap), func(t *testing.T) {
			env, svc, src := newArticleEnv(t, fakeapi.Options{WrapData: wrap})
			cat := env.fake.AddCategory("Programming")

			form := validArticleForm(cat.ID)
			form.Title = "  " + form.Title + "  "
			form.Image = &validation.ImageMeta{Ref: "thumb.png"}

			article, err := svc.Submit(context.Background(), form)
			require.NoError(t, err)

			assert.Equal(t, "Ten tips for Go", article.Title)
			assert.Equal(t, []string{"thumb.png"}, src.opened)
			require.NotEmpty(t, article.ImageURL)

			uploaded, ok := env.fake.Upload(article.ImageURL)
			require.True(t, ok)
			assert.Equal(t, pngBytes, uploaded)

			stored, ok := env.fake.Article(article.ID)
			require.True(t, ok)
			assert.Equal(t, article.ImageURL, stored.ImageURL)
		})
	}
}

func TestArticleService_InvalidFormTouchesNoNetwork(t *testing.T) {
	env, svc, _ := newArticleEnv(t, fakeapi.Options{})
	before := len(env.fake.Requests())

	form := validArticleForm("")
	form.Title = "abcd"

	_, err := svc.Submit(context.Background(), form)
	var verrs validation.Errors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("title"))
	assert.True(t, verrs.Has("categoryId"))
	assert.Len(t, env.fake.Requests(), before)
}

func TestArticleService_OversizedImageIsRejected(t *testing.T) {
	env, svc, src := newArticleEnv(t, fakeapi.Options{})
	src.size = validation.MaxImageSize + 1
	cat := env.fake.AddCategory("Programming")
	before := len(env.fake.Requests())

	form := validArticleForm(cat.ID)
	form.Image = &validation.ImageMeta{Ref: "huge.png"}

	_, err := svc.Submit(context.Background(), form)
	var verrs validation.Errors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Image must be 5MB or smaller", verrs["image"])
	assert.Len(t, env.fake.Requests(), before)
}

func TestArticleService_NonImageIsRejected(t *testing.T) {
	env, svc, src := newArticleEnv(t, fakeapi.Options{})
	src.contentType = "application/pdf"
	cat := env.fake.AddCategory("Programming")

	form := validArticleForm(cat.ID)
	form.Image = &validation.ImageMeta{Ref: "doc.pdf"}

	_, err := svc.Submit(context.Background(), form)
	var verrs validation.Errors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("image"))
}

func TestArticleService_MergesServerFieldErrors(t *testing.T) {
	_, svc, _ := newArticleEnv(t, fakeapi.Options{})

	_, err := svc.Submit(context.Background(), validArticleForm("no-such-category"))
	var verrs validation.Errors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Category not found", verrs["categoryId"])
}

func TestArticleService_SubmitUpdates(t *testing.T) {
	env, svc, _ := newArticleEnv(t, fakeapi.Options{})
	cat := env.fake.AddCategory("Programming")
	existing := env.fake.AddArticle(domain.Article{
		Title:      "Old title",
		Content:    strings.Repeat("x", 60),
		CategoryID: cat.ID,
		ImageURL:   "http://fakeapi.local/uploads/old.png",
	})

	form := validArticleForm(cat.ID)
	form.ID = existing.ID
	form.ImageURL = existing.ImageURL

	updated, err := svc.Submit(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, updated.ID)
	assert.Equal(t, "Ten tips for Go", updated.Title)
	assert.Equal(t, existing.ImageURL, updated.ImageURL)
	assert.Contains(t, env.fake.Requests(), "PUT /articles/"+existing.ID)
}

func TestArticleService_Related(t *testing.T) {
	env, svc, _ := newArticleEnv(t, fakeapi.Options{})
	golang := env.fake.AddCategory("Go")
	other := env.fake.AddCategory("Travel")

	var self domain.Article
	for i := 0; i < 5; i++ {
		a := env.fake.AddArticle(domain.Article{Title: fmt.Sprintf("go %d", i), CategoryID: golang.ID})
		if i == 0 {
			self = a
		}
	}
	env.fake.AddArticle(domain.Article{Title: "beach", CategoryID: other.ID})

	related, err := svc.Related(context.Background(), &self)
	require.NoError(t, err)
	assert.Len(t, related, RelatedLimit)
	for _, a := range related {
		assert.NotEqual(t, self.ID, a.ID)
		assert.Equal(t, golang.ID, a.CategoryID)
	}
}

func TestArticleService_Delete(t *testing.T) {
	env, svc, _ := newArticleEnv(t, fakeapi.Options{})
	cat := env.fake.AddCategory("Go")
	a := env.fake.AddArticle(domain.Article{Title: "bye", CategoryID: cat.ID})

	require.NoError(t, svc.Delete(context.Background(), a.ID))
	_, ok := env.fake.Article(a.ID)
	assert.False(t, ok)

	err := svc.Delete(context.Background(), a.ID)
	assert.ErrorIs(t, err, apphttp.ErrNotFound)
}

func TestArticleService_NonAdminIsForbidden(t *testing.T) {
	env := newTestEnv(t, fakeapi.Options{})
	env.loginAs(t, "bob", domain.RoleUser)
	cat := env.fake.AddCategory("Go")
	svc := NewArticleService(env.client, nil, env.logger)

	_, err := svc.Submit(context.Background(), validArticleForm(cat.ID))
	assert.ErrorIs(t, err, apphttp.ErrForbidden)
	assert.True(t, env.store.Session().IsAuthenticated, "403 keeps the session")
}
