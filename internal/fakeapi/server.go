// Package fakeapi is an in-memory stand-in for the CMS REST API. Tests and
// local demos point the client at it through httptest.
package fakeapi

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"cms-console/internal/domain"
)

// Options tune the fake backend.
type Options struct {
	Secret string
	TTL    time.Duration
	// TokenField names the login response field carrying the token
	// ("token" or "access_token"). "-" omits the token entirely.
	TokenField string
	// WrapData wraps single entities as {"data": ...}.
	WrapData bool
	// BaseURL prefixes uploaded image URLs.
	BaseURL string
}

type account struct {
	user         domain.User
	passwordHash []byte
}

type claims struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	Generation int    `json:"gen"`
	jwt.RegisteredClaims
}

// Server holds the fake backend state. All methods are safe for concurrent use.
type Server struct {
	opts   Options
	engine *gin.Engine
	now    func() time.Time

	mu           sync.Mutex
	accounts     map[string]*account
	articles     map[string]domain.Article
	categories   map[string]domain.Category
	uploads      map[string][]byte
	generation   int
	profileCalls int
	requests     []string
}

func New(opts Options) *Server {
	if opts.Secret == "" {
		opts.Secret = "fakeapi-secret"
	}
	if opts.TTL == 0 {
		opts.TTL = time.Hour
	}
	if opts.TokenField == "" {
		opts.TokenField = "token"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://fakeapi.local"
	}

	gin.SetMode(gin.TestMode)
	s := &Server{
		opts:       opts,
		now:        time.Now,
		accounts:   make(map[string]*account),
		articles:   make(map[string]domain.Article),
		categories: make(map[string]domain.Category),
		uploads:    make(map[string][]byte),
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.record())
	s.registerRoutes(s.engine)
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) registerRoutes(router *gin.Engine) {
	auth := router.Group("/auth")
	{
		auth.POST("/login", s.login)
		auth.POST("/register", s.register)
		auth.GET("/profile", s.authenticate(), s.profile)
	}

	router.GET("/articles", s.listArticles)
	router.GET("/articles/:id", s.getArticle)
	router.GET("/categories", s.listCategories)
	router.GET("/categories/:id", s.getCategory)

	admin := router.Group("/", s.authenticate(), s.requireRole(domain.RoleAdmin))
	{
		admin.POST("/articles", s.createArticle)
		admin.PUT("/articles/:id", s.updateArticle)
		admin.DELETE("/articles/:id", s.deleteArticle)
		admin.POST("/categories", s.createCategory)
		admin.PUT("/categories/:id", s.updateCategory)
		admin.DELETE("/categories/:id", s.deleteCategory)
		admin.POST("/upload", s.upload)
	}
}

func (s *Server) record() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.requests = append(s.requests, c.Request.Method+" "+c.Request.URL.Path)
		s.mu.Unlock()
		c.Next()
	}
}

// AddUser creates an account and returns the stored user. It panics when the
// password cannot be hashed (longer than 72 bytes).
func (s *Server) AddUser(username, password string, role domain.Role) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.addUserLocked(username, password, role)
	if err != nil {
		panic(err)
	}
	return u
}

func (s *Server) addUserLocked(username, password string, role domain.Role) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := domain.User{ID: uuid.NewString(), Username: username, Role: role}
	s.accounts[username] = &account{user: u, passwordHash: hash}
	return u, nil
}

func (s *Server) AddCategory(name string) domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c := domain.Category{ID: uuid.NewString(), Name: name, CreatedAt: &now, UpdatedAt: &now}
	s.categories[c.ID] = c
	return c
}

// AddArticle stores a, filling id and timestamps when missing.
func (s *Server) AddArticle(a domain.Article) domain.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	s.articles[a.ID] = a
	return a
}

// IssueToken signs a token for username that expires after ttl.
func (s *Server) IssueToken(username string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[username]
	if !ok {
		return "", fmt.Errorf("unknown user %q", username)
	}
	return s.signLocked(acc.user, ttl)
}

func (s *Server) signLocked(u domain.User, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username:   u.Username,
		Role:       string(u.Role),
		Generation: s.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(s.opts.Secret))
}

// RevokeAll invalidates every token issued so far.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// SetRole changes the role stored for username.
func (s *Server) SetRole(username string, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[username]; ok {
		acc.user.Role = role
	}
}

func (s *Server) ProfileCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileCalls
}

// Requests lists "METHOD /path" for every request served, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) Article(id string) (domain.Article, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	return a, ok
}

func (s *Server) Upload(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.uploads[url]
	return b, ok
}

func (s *Server) parseToken(raw string) (*claims, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(raw, &cl, func(t *jwt.Token) (any, error) {
		return []byte(s.opts.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cl.Generation != s.generation {
		return nil, errors.New("token revoked")
	}
	if _, ok := s.accounts[cl.Username]; !ok {
		return nil, errors.New("unknown user")
	}
	return &cl, nil
}

func (s *Server) entity(c *gin.Context, status int, v any) {
	if s.opts.WrapData {
		c.JSON(status, gin.H{"data": v})
		return
	}
	c.JSON(status, v)
}

func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func sortArticles(items []domain.Article) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func matches(a domain.Article, search, categoryID string) bool {
	if categoryID != "" && a.CategoryID != categoryID {
		return false
	}
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.Title), strings.ToLower(search))
}
