package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"cms-console/internal/domain"
	"cms-console/internal/validation"
)

// CategoryAPI is the part of the REST client used for categories.
type CategoryAPI interface {
	ListCategories(ctx context.Context, params domain.ListParams) (*domain.Page[domain.Category], error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	CreateCategory(ctx context.Context, in domain.CategoryInput) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id string, in domain.CategoryInput) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

type CategoryService interface {
	List(ctx context.Context, params domain.ListParams) (*domain.Page[domain.Category], error)
	Get(ctx context.Context, id string) (*domain.Category, error)
	Submit(ctx context.Context, form validation.CategoryForm) (*domain.Category, error)
	Delete(ctx context.Context, id string) error
}

type categoryService struct {
	api    CategoryAPI
	logger *logrus.Logger
}

func NewCategoryService(api CategoryAPI, logger *logrus.Logger) CategoryService {
	if logger == nil {
		logger = logrus.New()
	}
	return &categoryService{api: api, logger: logger}
}

func (s *categoryService) List(ctx context.Context, params domain.ListParams) (*domain.Page[domain.Category], error) {
	return s.api.ListCategories(ctx, params)
}

func (s *categoryService) Get(ctx context.Context, id string) (*domain.Category, error) {
	if id == "" {
		return nil, errors.New("category id is required")
	}
	return s.api.GetCategory(ctx, id)
}

func (s *categoryService) Submit(ctx context.Context, form validation.CategoryForm) (*domain.Category, error) {
	if err := validation.ValidateCategory(form); err != nil {
		return nil, err
	}
	in := domain.CategoryInput{Name: trimmed(form.Name)}

	if form.ID == "" {
		created, err := s.api.CreateCategory(ctx, in)
		if err != nil {
			return nil, submitError("create category", err)
		}
		s.logger.WithField("category_id", created.ID).Info("category created")
		return created, nil
	}

	updated, err := s.api.UpdateCategory(ctx, form.ID, in)
	if err != nil {
		return nil, submitError("update category", err)
	}
	s.logger.WithField("category_id", form.ID).Info("category updated")
	return updated, nil
}

func (s *categoryService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("category id is required")
	}
	if err := s.api.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	s.logger.WithField("category_id", id).Info("category deleted")
	return nil
}
