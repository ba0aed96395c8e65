package validation

import (
	"strings"

	"cms-console/internal/domain"
)

// ImageMeta describes a thumbnail picked for upload before any bytes are sent.
type ImageMeta struct {
	Ref         string `form:"ref"`
	ContentType string `form:"contentType" validate:"startswith=image/"`
	Size        int64  `form:"size" validate:"max=5242880"`
}

// ArticleForm holds the fields of the create/edit article form.
// ID is empty when creating.
type ArticleForm struct {
	ID         string     `form:"-"`
	Title      string     `form:"title" validate:"required,min=5,max=200"`
	Content    string     `form:"content" validate:"required,min=50,max=10000"`
	CategoryID string     `form:"categoryId" validate:"required"`
	Image      *ImageMeta `form:"image" validate:"omitempty"`
	// ImageURL keeps an already uploaded thumbnail when editing.
	ImageURL string `form:"-"`
}

// Normalized returns the form with surrounding whitespace removed, as submitted.
func (f ArticleForm) Normalized() ArticleForm {
	f.Title = strings.TrimSpace(f.Title)
	f.Content = strings.TrimSpace(f.Content)
	f.CategoryID = strings.TrimSpace(f.CategoryID)
	return f
}

// ValidateArticle checks title, content, category and the optional thumbnail.
func ValidateArticle(f ArticleForm) error {
	return check(f.Normalized())
}

type LoginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required,min=6"`
}

func ValidateLogin(f LoginForm) error {
	f.Username = strings.TrimSpace(f.Username)
	return check(f)
}

type RegisterForm struct {
	Username string      `form:"username" validate:"required"`
	Password string      `form:"password" validate:"required,min=6"`
	Role     domain.Role `form:"role" validate:"required,oneof=User Admin"`
}

func ValidateRegister(f RegisterForm) error {
	f.Username = strings.TrimSpace(f.Username)
	return check(f)
}

type CategoryForm struct {
	ID   string `form:"-"`
	Name string `form:"name" validate:"required,min=3"`
}

func ValidateCategory(f CategoryForm) error {
	f.Name = strings.TrimSpace(f.Name)
	return check(f)
}

// imageForm roots a standalone thumbnail check so errors key on "image".
type imageForm struct {
	Image ImageMeta `form:"image"`
}

// ValidateImage checks a thumbnail on its own, as the file picker does on selection.
func ValidateImage(meta ImageMeta) error {
	return check(imageForm{Image: meta})
}
