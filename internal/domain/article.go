package domain

import (
	"encoding/json"
	"time"
)

// Category groups articles. Owned by the backend.
type Category struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Article is a published blog entry as returned by the articles endpoints.
type Article struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	CategoryID string    `json:"categoryId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Category   *Category `json:"category,omitempty"`
	User       *User     `json:"user,omitempty"`
}

// UnmarshalJSON accepts both imageUrl and the older image field.
func (a *Article) UnmarshalJSON(b []byte) error {
	type plain Article
	var wire struct {
		plain
		Image string `json:"image"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*a = Article(wire.plain)
	if a.ImageURL == "" {
		a.ImageURL = wire.Image
	}
	return nil
}

// ArticleInput is the payload for creating or replacing an article.
type ArticleInput struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	CategoryID string `json:"categoryId"`
	ImageURL   string `json:"imageUrl,omitempty"`
}

// CategoryInput is the payload for creating or renaming a category.
type CategoryInput struct {
	Name string `json:"name"`
}

// ListParams filters a paginated collection request.
type ListParams struct {
	Page       int
	Limit      int
	Search     string
	CategoryID string
}

// Page is one page of a backend collection.
type Page[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// Normalize fills derived fields the backend may omit.
func (p *Page[T]) Normalize(params ListParams) {
	if p.Data == nil {
		p.Data = []T{}
	}
	if p.Page <= 0 {
		p.Page = params.Page
	}
	if p.Limit <= 0 {
		p.Limit = params.Limit
	}
	if p.TotalPages <= 0 {
		p.TotalPages = 1
		if p.Limit > 0 && p.Total > 0 {
			p.TotalPages = (p.Total + p.Limit - 1) / p.Limit
		}
	}
}
