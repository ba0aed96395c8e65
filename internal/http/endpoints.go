package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"cms-console/internal/domain"
)

// Login exchanges credentials for a bearer token. The backend may name the
// field token or access_token; an empty string means neither was present.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	err := c.doEntity(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/login",
		body:      map[string]string{"username": username, "password": password},
		anonymous: true,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Token != "" {
		return resp.Token, nil
	}
	return resp.AccessToken, nil
}

// Register creates an account. It does not sign the user in.
func (c *Client) Register(ctx context.Context, username, password string, role domain.Role) error {
	return c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/register",
		body:      map[string]string{"username": username, "password": password, "role": string(role)},
		anonymous: true,
	}, nil)
}

// Profile fetches the user owning token, or the persisted token when empty.
func (c *Client) Profile(ctx context.Context, token string) (*domain.User, error) {
	var user domain.User
	if err := c.doEntity(ctx, request{
		method: http.MethodGet,
		path:   "/auth/profile",
		token:  token,
	}, &user); err != nil {
		return nil, err
	}
	if user.ID == "" && user.Username == "" {
		return nil, fmt.Errorf("profile response missing user")
	}
	return &user, nil
}

func listQuery(params domain.ListParams) url.Values {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Search != "" {
		q.Set("search", params.Search)
	}
	if params.CategoryID != "" {
		q.Set("categoryId", params.CategoryID)
	}
	return q
}

func (c *Client) ListArticles(ctx context.Context, params domain.ListParams) (*domain.Page[domain.Article], error) {
	var page domain.Page[domain.Article]
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/articles",
		query:  listQuery(params),
	}, &page); err != nil {
		return nil, err
	}
	page.Normalize(params)
	return &page, nil
}

func (c *Client) GetArticle(ctx context.Context, id string) (*domain.Article, error) {
	var article domain.Article
	if err := c.doEntity(ctx, request{
		method: http.MethodGet,
		path:   "/articles/" + url.PathEscape(id),
	}, &article); err != nil {
		return nil, err
	}
	return &article, nil
}

func (c *Client) CreateArticle(ctx context.Context, in domain.ArticleInput) (*domain.Article, error) {
	var article domain.Article
	if err := c.doEntity(ctx, request{
		method: http.MethodPost,
		path:   "/articles",
		body:   in,
	}, &article); err != nil {
		return nil, err
	}
	return &article, nil
}

func (c *Client) UpdateArticle(ctx context.Context, id string, in domain.ArticleInput) (*domain.Article, error) {
	var article domain.Article
	if err := c.doEntity(ctx, request{
		method: http.MethodPut,
		path:   "/articles/" + url.PathEscape(id),
		body:   in,
	}, &article); err != nil {
		return nil, err
	}
	return &article, nil
}

func (c *Client) DeleteArticle(ctx context.Context, id string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/articles/" + url.PathEscape(id),
	}, nil)
}

// categoryPage also understands the totalData/currentPage shape some
// deployments return for categories.
type categoryPage struct {
	Data        []domain.Category `json:"data"`
	Total       int               `json:"total"`
	TotalData   int               `json:"totalData"`
	Page        int               `json:"page"`
	CurrentPage int               `json:"currentPage"`
	Limit       int               `json:"limit"`
	TotalPages  int               `json:"totalPages"`
}

func (c *Client) ListCategories(ctx context.Context, params domain.ListParams) (*domain.Page[domain.Category], error) {
	var resp categoryPage
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/categories",
		query:  listQuery(domain.ListParams{Page: params.Page, Limit: params.Limit, Search: params.Search}),
	}, &resp); err != nil {
		return nil, err
	}
	page := domain.Page[domain.Category]{
		Data:       resp.Data,
		Total:      resp.Total,
		Page:       resp.Page,
		Limit:      resp.Limit,
		TotalPages: resp.TotalPages,
	}
	if page.Total == 0 {
		page.Total = resp.TotalData
	}
	if page.Page == 0 {
		page.Page = resp.CurrentPage
	}
	page.Normalize(params)
	return &page, nil
}

func (c *Client) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var category domain.Category
	if err := c.doEntity(ctx, request{
		method: http.MethodGet,
		path:   "/categories/" + url.PathEscape(id),
	}, &category); err != nil {
		return nil, err
	}
	return &category, nil
}

func (c *Client) CreateCategory(ctx context.Context, in domain.CategoryInput) (*domain.Category, error) {
	var category domain.Category
	if err := c.doEntity(ctx, request{
		method: http.MethodPost,
		path:   "/categories",
		body:   in,
	}, &category); err != nil {
		return nil, err
	}
	return &category, nil
}

func (c *Client) UpdateCategory(ctx context.Context, id string, in domain.CategoryInput) (*domain.Category, error) {
	var category domain.Category
	if err := c.doEntity(ctx, request{
		method: http.MethodPut,
		path:   "/categories/" + url.PathEscape(id),
		body:   in,
	}, &category); err != nil {
		return nil, err
	}
	return &category, nil
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/categories/" + url.PathEscape(id),
	}, nil)
}

// Upload sends an image as the multipart field "image" and returns the URL
// the backend stored it under.
func (c *Client) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	var resp struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := c.doEntity(ctx, request{
		method:      http.MethodPost,
		path:        "/upload",
		rawBody:     &buf,
		contentType: mw.FormDataContentType(),
	}, &resp); err != nil {
		return "", err
	}
	if resp.ImageURL == "" {
		return "", fmt.Errorf("upload response missing imageUrl")
	}
	return resp.ImageURL, nil
}
