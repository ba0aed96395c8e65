package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"cms-console/internal/domain"
	apphttp "cms-console/internal/http"
	"cms-console/internal/storage"
	"cms-console/internal/validation"
)

// RelatedLimit is how many related articles are shown under an article.
const RelatedLimit = 3

// ArticleAPI is the part of the REST client used for articles.
type ArticleAPI interface {
	ListArticles(ctx context.Context, params domain.ListParams) (*domain.Page[domain.Article], error)
	GetArticle(ctx context.Context, id string) (*domain.Article, error)
	CreateArticle(ctx context.Context, in domain.ArticleInput) (*domain.Article, error)
	UpdateArticle(ctx context.Context, id string, in domain.ArticleInput) (*domain.Article, error)
	DeleteArticle(ctx context.Context, id string) error
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// ArticleService coordinates article reads and the create/edit form.
type ArticleService interface {
	List(ctx context.Context, params domain.ListParams) (*domain.Page[domain.Article], error)
	Get(ctx context.Context, id string) (*domain.Article, error)
	Related(ctx context.Context, article *domain.Article) ([]domain.Article, error)
	Submit(ctx context.Context, form validation.ArticleForm) (*domain.Article, error)
	Delete(ctx context.Context, id string) error
}

type articleService struct {
	api    ArticleAPI
	images storage.Source
	logger *logrus.Logger
}

func NewArticleService(api ArticleAPI, images storage.Source, logger *logrus.Logger) ArticleService {
	if logger == nil {
		logger = logrus.New()
	}
	return &articleService{api: api, images: images, logger: logger}
}

func (s *articleService) List(ctx context.Context, params domain.ListParams) (*domain.Page[domain.Article], error) {
	return s.api.ListArticles(ctx, params)
}

func (s *articleService) Get(ctx context.Context, id string) (*domain.Article, error) {
	if id == "" {
		return nil, errors.New("article id is required")
	}
	return s.api.GetArticle(ctx, id)
}

// Related returns up to RelatedLimit other articles from the same category.
func (s *articleService) Related(ctx context.Context, article *domain.Article) ([]domain.Article, error) {
	if article == nil || article.CategoryID == "" {
		return nil, nil
	}
	page, err := s.api.ListArticles(ctx, domain.ListParams{
		Page:       1,
		Limit:      RelatedLimit + 1,
		CategoryID: article.CategoryID,
	})
	if err != nil {
		return nil, fmt.Errorf("list related articles: %w", err)
	}

	related := make([]domain.Article, 0, RelatedLimit)
	for _, a := range page.Data {
		if a.ID == article.ID {
			continue
		}
		related = append(related, a)
		if len(related) == RelatedLimit {
			break
		}
	}
	return related, nil
}

// Submit validates the form, uploads the picked thumbnail and then creates the
// article, or replaces it when form.ID is set. Field errors from a 400 are
// returned as validation.Errors.
func (s *articleService) Submit(ctx context.Context, form validation.ArticleForm) (*domain.Article, error) {
	form = form.Normalized()

	var img *storage.Image
	if form.Image != nil && form.Image.Ref != "" {
		if s.images == nil {
			return nil, errors.New("no image source configured")
		}
		opened, err := s.images.Open(ctx, form.Image.Ref)
		if err != nil {
			return nil, validation.Errors{"image": fmt.Sprintf("Image could not be read: %v", err)}
		}
		defer opened.Close()
		img = opened
		form.Image.ContentType = img.ContentType
		form.Image.Size = img.Size
	}

	if err := validation.ValidateArticle(form); err != nil {
		return nil, err
	}

	imageURL := form.ImageURL
	if img != nil {
		uploaded, err := s.api.Upload(ctx, img.Name, img.ContentType, img.Body)
		if err != nil {
			return nil, submitError("upload image", err)
		}
		imageURL = uploaded
		s.logger.WithField("image_url", uploaded).Debug("thumbnail uploaded")
	}

	in := domain.ArticleInput{
		Title:      form.Title,
		Content:    form.Content,
		CategoryID: form.CategoryID,
		ImageURL:   imageURL,
	}

	if form.ID == "" {
		created, err := s.api.CreateArticle(ctx, in)
		if err != nil {
			return nil, submitError("create article", err)
		}
		s.logger.WithField("article_id", created.ID).Info("article created")
		return created, nil
	}

	updated, err := s.api.UpdateArticle(ctx, form.ID, in)
	if err != nil {
		return nil, submitError("update article", err)
	}
	s.logger.WithField("article_id", form.ID).Info("article updated")
	return updated, nil
}

func (s *articleService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("article id is required")
	}
	if err := s.api.DeleteArticle(ctx, id); err != nil {
		return fmt.Errorf("delete article %s: %w", id, err)
	}
	s.logger.WithField("article_id", id).Info("article deleted")
	return nil
}

// submitError surfaces backend field errors as form errors and wraps the rest.
func submitError(op string, err error) error {
	if fields := apphttp.FieldErrors(err); len(fields) > 0 {
		return validation.Merge(nil, fields)
	}
	return fmt.Errorf("%s: %w", op, err)
}
