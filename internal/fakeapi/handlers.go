package fakeapi

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"cms-console/internal/domain"
)

const claimsKey = "claims"

var wireNames = map[string]string{
	"Username":   "username",
	"Password":   "password",
	"Role":       "role",
	"Title":      "title",
	"Content":    "content",
	"CategoryID": "categoryId",
	"ImageURL":   "imageUrl",
	"Name":       "name",
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required,oneof=User Admin"`
}

type articleRequest struct {
	Title      string `json:"title" binding:"required"`
	Content    string `json:"content" binding:"required"`
	CategoryID string `json:"categoryId" binding:"required"`
	ImageURL   string `json:"imageUrl"`
}

type categoryRequest struct {
	Name string `json:"name" binding:"required"`
}

func badRequest(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		name := wireNames[fe.Field()]
		if name == "" {
			name = strings.ToLower(fe.Field())
		}
		fields[name] = append(fields[name], name+" failed on "+fe.Tag())
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": "Validation failed", "errors": fields})
}

func fieldError(c *gin.Context, field, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": "Validation failed", "errors": gin.H{field: msg}})
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"message": what + " not found"})
}

func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}
	return page, limit
}

func totalPages(total, limit int) int {
	if total == 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.Username]
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(req.Password)) != nil {
		s.mu.Unlock()
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid username or password"})
		return
	}
	token, err := s.signLocked(acc.user, s.opts.TTL)
	s.mu.Unlock()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	if s.opts.TokenField == "-" {
		c.JSON(http.StatusOK, gin.H{"message": "Login successful"})
		return
	}
	c.JSON(http.StatusOK, gin.H{s.opts.TokenField: token})
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[req.Username]; exists {
		fieldError(c, "username", "Username already taken")
		return
	}
	u, err := s.addUserLocked(req.Username, req.Password, domain.Role(req.Role))
	if err != nil {
		fieldError(c, "password", "Password is too long")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered", "id": u.ID})
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/auth/profile" {
			s.mu.Lock()
			s.profileCalls++
			s.mu.Unlock()
		}

		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		cl, err := s.parseToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		c.Set(claimsKey, cl)
		c.Next()
	}
}

func (s *Server) currentUser(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return domain.User{}, false
	}
	cl := v.(*claims)

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[cl.Username]
	if !ok {
		return domain.User{}, false
	}
	return acc.user, true
}

func (s *Server) requireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := s.currentUser(c)
		if !ok || u.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
			return
		}
		c.Next()
	}
}

func (s *Server) profile(c *gin.Context) {
	u, ok := s.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, u)
}

// decorateLocked attaches the category and author the way the real API does.
func (s *Server) decorateLocked(a domain.Article) domain.Article {
	if cat, ok := s.categories[a.CategoryID]; ok {
		a.Category = &cat
	}
	for _, acc := range s.accounts {
		if acc.user.ID == a.UserID {
			u := acc.user
			a.User = &u
			break
		}
	}
	return a
}

func (s *Server) listArticles(c *gin.Context) {
	page, limit := pageParams(c)
	search, categoryID := c.Query("search"), c.Query("categoryId")

	s.mu.Lock()
	items := make([]domain.Article, 0, len(s.articles))
	for _, a := range s.articles {
		if matches(a, search, categoryID) {
			items = append(items, s.decorateLocked(a))
		}
	}
	s.mu.Unlock()

	sortArticles(items)
	c.JSON(http.StatusOK, gin.H{
		"data":       paginate(items, page, limit),
		"total":      len(items),
		"page":       page,
		"limit":      limit,
		"totalPages": totalPages(len(items), limit),
	})
}

func (s *Server) getArticle(c *gin.Context) {
	s.mu.Lock()
	a, ok := s.articles[c.Param("id")]
	if ok {
		a = s.decorateLocked(a)
	}
	s.mu.Unlock()
	if !ok {
		notFound(c, "Article")
		return
	}
	s.entity(c, http.StatusOK, a)
}

func (s *Server) bindArticle(c *gin.Context) (articleRequest, bool) {
	var req articleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return req, false
	}
	s.mu.Lock()
	_, ok := s.categories[req.CategoryID]
	s.mu.Unlock()
	if !ok {
		fieldError(c, "categoryId", "Category not found")
		return req, false
	}
	return req, true
}

func (s *Server) createArticle(c *gin.Context) {
	req, ok := s.bindArticle(c)
	if !ok {
		return
	}
	u, _ := s.currentUser(c)

	a := s.AddArticle(domain.Article{
		Title:      req.Title,
		Content:    req.Content,
		CategoryID: req.CategoryID,
		ImageURL:   req.ImageURL,
		UserID:     u.ID,
	})
	s.mu.Lock()
	a = s.decorateLocked(a)
	s.mu.Unlock()
	s.entity(c, http.StatusCreated, a)
}

func (s *Server) updateArticle(c *gin.Context) {
	req, ok := s.bindArticle(c)
	if !ok {
		return
	}

	s.mu.Lock()
	a, ok := s.articles[c.Param("id")]
	if ok {
		a.Title = req.Title
		a.Content = req.Content
		a.CategoryID = req.CategoryID
		a.ImageURL = req.ImageURL
		a.UpdatedAt = s.now()
		s.articles[a.ID] = a
		a = s.decorateLocked(a)
	}
	s.mu.Unlock()
	if !ok {
		notFound(c, "Article")
		return
	}
	s.entity(c, http.StatusOK, a)
}

func (s *Server) deleteArticle(c *gin.Context) {
	s.mu.Lock()
	_, ok := s.articles[c.Param("id")]
	delete(s.articles, c.Param("id"))
	s.mu.Unlock()
	if !ok {
		notFound(c, "Article")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Article deleted"})
}

func (s *Server) listCategories(c *gin.Context) {
	page, limit := pageParams(c)
	search := strings.ToLower(c.Query("search"))

	s.mu.Lock()
	items := make([]domain.Category, 0, len(s.categories))
	for _, cat := range s.categories {
		if search == "" || strings.Contains(strings.ToLower(cat.Name), search) {
			items = append(items, cat)
		}
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	c.JSON(http.StatusOK, gin.H{
		"data":        paginate(items, page, limit),
		"totalData":   len(items),
		"currentPage": page,
		"totalPages":  totalPages(len(items), limit),
	})
}

func (s *Server) getCategory(c *gin.Context) {
	s.mu.Lock()
	cat, ok := s.categories[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		notFound(c, "Category")
		return
	}
	s.entity(c, http.StatusOK, cat)
}

func (s *Server) nameTakenLocked(name, exceptID string) bool {
	for _, cat := range s.categories {
		if cat.ID != exceptID && strings.EqualFold(cat.Name, name) {
			return true
		}
	}
	return false
}

func (s *Server) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.mu.Lock()
	taken := s.nameTakenLocked(req.Name, "")
	s.mu.Unlock()
	if taken {
		fieldError(c, "name", "Category already exists")
		return
	}
	s.entity(c, http.StatusCreated, s.AddCategory(req.Name))
}

func (s *Server) updateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id := c.Param("id")

	s.mu.Lock()
	cat, ok := s.categories[id]
	taken := ok && s.nameTakenLocked(req.Name, id)
	if ok && !taken {
		now := s.now()
		cat.Name = req.Name
		cat.UpdatedAt = &now
		s.categories[id] = cat
	}
	s.mu.Unlock()

	switch {
	case !ok:
		notFound(c, "Category")
	case taken:
		fieldError(c, "name", "Category already exists")
	default:
		s.entity(c, http.StatusOK, cat)
	}
}

func (s *Server) deleteCategory(c *gin.Context) {
	s.mu.Lock()
	_, ok := s.categories[c.Param("id")]
	delete(s.categories, c.Param("id"))
	s.mu.Unlock()
	if !ok {
		notFound(c, "Category")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Category deleted"})
}

func (s *Server) upload(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		fieldError(c, "image", "Image is required")
		return
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
		fieldError(c, "image", "Only image files are allowed")
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	defer f.Close()
	body, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	url := strings.TrimRight(s.opts.BaseURL, "/") + "/uploads/" + uuid.NewString() + filepath.Ext(fh.Filename)
	s.mu.Lock()
	s.uploads[url] = body
	s.mu.Unlock()
	s.entity(c, http.StatusCreated, gin.H{"imageUrl": url})
}
