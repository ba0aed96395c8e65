package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"cms-console/internal/repository"
)

// LoginPath is where the client sends the user when the backend rejects the session.
const LoginPath = "/login"

const maxResponseBytes = 10 << 20

type ctxKey int

const skipInterceptKey ctxKey = iota

// WithoutInterceptor marks requests made with the returned context as handling
// their own 401: the token is not cleared, no hook runs and nothing navigates.
func WithoutInterceptor(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipInterceptKey, true)
}

func intercepts(ctx context.Context) bool {
	skip, _ := ctx.Value(skipInterceptKey).(bool)
	return !skip
}

// Navigator moves the consumer to another view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// RateLimit caps outgoing requests per second; zero disables limiting.
	RateLimit  float64
	Burst      int
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// Client talks to the CMS REST API. It attaches the persisted bearer token to
// every authenticated request and treats any 401 as the end of the session.
type Client struct {
	cfg       Config
	baseURL   string
	http      *http.Client
	tokens    repository.TokenRepository
	navigator Navigator
	limiter   *rate.Limiter
	logger    *logrus.Logger

	mu    sync.RWMutex
	hooks []func(ctx context.Context)
}

func NewClient(cfg Config, tokens repository.TokenRepository, navigator Navigator) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "cmsctl"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if navigator == nil {
		navigator = noopNavigator{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		cfg:       cfg,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      httpClient,
		tokens:    tokens,
		navigator: navigator,
		limiter:   limiter,
		logger:    cfg.Logger,
	}
}

// OnUnauthorized registers fn to run after a 401 has cleared the persisted token.
func (c *Client) OnUnauthorized(fn func(ctx context.Context)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any

	// raw bodies bypass JSON encoding (multipart uploads)
	rawBody     io.Reader
	contentType string

	// anonymous requests carry no bearer and do not end the session on 401
	anonymous bool
	// token overrides the persisted token for this request
	token string
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s %s: %w", req.method, req.path, err)
		}
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	contentType := req.contentType
	switch {
	case req.rawBody != nil:
		body = req.rawBody
	case req.body != nil:
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	httpReq.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if !req.anonymous {
		if token := c.bearer(ctx, req.token); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	logger := c.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"method":     req.method,
		"path":       req.path,
	})

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", req.method, req.path, ctxErr)
		}
		logger.Debugf("api request failed: %v", err)
		return fmt.Errorf("%s %s: %w: %w", req.method, req.path, ErrNetwork, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w: %w", req.method, req.path, ErrNetwork, err)
	}

	logger = logger.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	if resp.StatusCode >= 400 {
		apiErr := parseAPIError(resp.StatusCode, payload)
		logger.Debugf("api error: %s", apiErr.Message)
		if resp.StatusCode == http.StatusUnauthorized && !req.anonymous && intercepts(ctx) {
			c.handleUnauthorized(ctx)
		}
		return apiErr
	}
	logger.Debug("api request")

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.method, req.path, err)
	}
	return nil
}

func (c *Client) bearer(ctx context.Context, override string) string {
	if override != "" {
		return override
	}
	token, err := c.tokens.Load(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrTokenNotFound) {
			c.logger.Warnf("load token: %v", err)
		}
		return ""
	}
	return token
}

// handleUnauthorized clears the persisted token, notifies hooks and sends the
// consumer to the login view. The caller still receives the original error.
func (c *Client) handleUnauthorized(ctx context.Context) {
	// the request context may already be done; clearing must still happen
	clearCtx := context.WithoutCancel(ctx)
	if err := c.tokens.Clear(clearCtx); err != nil {
		c.logger.Warnf("clear token after 401: %v", err)
	}

	c.mu.RLock()
	hooks := append([]func(context.Context){}, c.hooks...)
	c.mu.RUnlock()
	for _, hook := range hooks {
		hook(clearCtx)
	}

	c.logger.Info("session rejected by api, redirecting to login")
	c.navigator.Navigate(LoginPath)
}

// decodeEntity accepts both a bare object and one wrapped as {"data": {...}}.
func decodeEntity(payload json.RawMessage, out any) error {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil {
		if trimmed := bytes.TrimSpace(wrapped.Data); len(trimmed) > 0 && trimmed[0] == '{' {
			return json.Unmarshal(trimmed, out)
		}
	}
	return json.Unmarshal(payload, out)
}

func (c *Client) doEntity(ctx context.Context, req request, out any) error {
	var raw json.RawMessage
	if err := c.do(ctx, req, &raw); err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := decodeEntity(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.method, req.path, err)
	}
	return nil
}
