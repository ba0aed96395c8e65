package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"cms-console/internal/domain"
	apphttp "cms-console/internal/http"
	"cms-console/internal/repository"
)

// ErrNoToken is returned by FetchProfile when there is no session token.
var ErrNoToken = errors.New("no token available")

// Reasons carried by AuthError.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonMissingToken       = "missing_token"
	ReasonNetwork            = "network"
	ReasonProfile            = "profile"
	ReasonSessionInvalid     = "session_invalid"
	ReasonStorage            = "storage"
	ReasonServer             = "server"
)

// AuthError reports a failed login or profile check.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "auth: " + e.Reason
	}
	return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// AuthAPI is the part of the REST client the session store depends on.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (string, error)
	Profile(ctx context.Context, token string) (*domain.User, error)
}

// SessionStore owns the client's authentication state. It is created once at
// bootstrap and handed to every consumer that needs the session.
//
// Mutating operations are serialised by mutate; mu only guards the snapshot
// and subscribers, so the 401 hook can run while a mutation is in flight.
type SessionStore struct {
	api       AuthAPI
	tokens    repository.TokenRepository
	navigator apphttp.Navigator
	logger    *logrus.Logger
	now       func() time.Time

	mutate  sync.Mutex
	restore singleflight.Group

	mu      sync.RWMutex
	state   domain.Session
	subs    map[int]chan domain.Session
	nextSub int
}

func NewSessionStore(api AuthAPI, tokens repository.TokenRepository, navigator apphttp.Navigator, logger *logrus.Logger) *SessionStore {
	if logger == nil {
		logger = logrus.New()
	}
	if navigator == nil {
		navigator = apphttp.NavigatorFunc(func(string) {})
	}
	return &SessionStore{
		api:       api,
		tokens:    tokens,
		navigator: navigator,
		logger:    logger,
		now:       time.Now,
		subs:      make(map[int]chan domain.Session),
	}
}

// Session returns a copy of the current state.
func (s *SessionStore) Session() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.state)
}

// Subscribe delivers every state change. Slow readers only see the latest
// state. The returned func stops delivery and closes the channel.
func (s *SessionStore) Subscribe() (<-chan domain.Session, func()) {
	ch := make(chan domain.Session, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

func (s *SessionStore) set(next domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next.IsAuthenticated = next.Token != "" && next.User != nil && next.IsAuthenticated
	s.state = next
	for _, ch := range s.subs {
		snapshot := copySession(next)
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Login exchanges credentials for a token, persists it and loads the profile.
// On failure nothing is left behind.
func (s *SessionStore) Login(ctx context.Context, username, password string) (*domain.User, error) {
	s.mutate.Lock()
	defer s.mutate.Unlock()

	logger := s.logger.WithField("username", username)
	s.set(domain.Session{IsLoading: true})

	token, err := s.api.Login(ctx, username, password)
	if err != nil {
		return nil, s.failLogin(ctx, logger, &AuthError{Reason: loginReason(err), Err: err})
	}
	if token == "" {
		return nil, s.failLogin(ctx, logger, &AuthError{Reason: ReasonMissingToken, Err: errors.New("token not found in response")})
	}

	if err := s.tokens.Save(ctx, token); err != nil {
		return nil, s.failLogin(ctx, logger, &AuthError{Reason: ReasonStorage, Err: err})
	}
	s.set(domain.Session{Token: token, IsLoading: true})

	// a rejected profile here is a failed login, not an expired session
	user, err := s.api.Profile(apphttp.WithoutInterceptor(ctx), token)
	if err != nil {
		return nil, s.failLogin(ctx, logger, &AuthError{Reason: ReasonProfile, Err: err})
	}

	s.set(domain.Session{Token: token, User: user, IsAuthenticated: true})
	logger.WithField("role", user.Role).Info("logged in")
	return copyUser(user), nil
}

func (s *SessionStore) failLogin(ctx context.Context, logger *logrus.Entry, authErr *AuthError) error {
	s.clear(ctx)
	logger.WithField("reason", authErr.Reason).Warnf("login failed: %v", authErr.Err)
	return authErr
}

func loginReason(err error) string {
	switch {
	case errors.Is(err, apphttp.ErrUnauthorized), errors.Is(err, apphttp.ErrBadRequest):
		return ReasonInvalidCredentials
	case errors.Is(err, apphttp.ErrNetwork):
		return ReasonNetwork
	default:
		return ReasonServer
	}
}

// Logout clears the persisted token and the in-memory session, then sends the
// consumer to the login view. It is safe to call repeatedly.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.mutate.Lock()
	defer s.mutate.Unlock()

	err := s.clear(ctx)
	s.logger.Info("logged out")
	s.navigator.Navigate(apphttp.LoginPath)
	return err
}

// FetchProfile reloads the user for the current token. Any failure ends the session.
func (s *SessionStore) FetchProfile(ctx context.Context) (*domain.User, error) {
	s.mutate.Lock()
	defer s.mutate.Unlock()

	token := s.Session().Token
	if token == "" {
		return nil, ErrNoToken
	}

	user, err := s.api.Profile(ctx, token)
	if err != nil {
		s.clear(ctx)
		s.logger.Warnf("profile check failed: %v", err)
		return nil, &AuthError{Reason: ReasonSessionInvalid, Err: err}
	}

	s.set(domain.Session{Token: token, User: user, IsAuthenticated: true})
	return copyUser(user), nil
}

// RestoreSession revalidates a persisted token on startup. Failures are logged
// and leave the store signed out; nothing is returned to the caller.
// Concurrent calls share one in-flight restore.
func (s *SessionStore) RestoreSession(ctx context.Context) {
	_, _, _ = s.restore.Do("restore", func() (any, error) {
		s.mutate.Lock()
		defer s.mutate.Unlock()
		s.restoreLocked(ctx)
		return nil, nil
	})
}

func (s *SessionStore) restoreLocked(ctx context.Context) {
	token, err := s.tokens.Load(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrTokenNotFound) {
			s.logger.Warnf("restore session: load token: %v", err)
		}
		s.set(domain.Session{})
		return
	}

	if s.tokenExpired(token) {
		s.logger.Info("restore session: persisted token expired")
		s.clear(ctx)
		return
	}

	s.set(domain.Session{Token: token, IsLoading: true})

	user, err := s.api.Profile(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			// interrupted, not rejected: keep the token for next time
			s.set(domain.Session{})
			return
		}
		s.logger.Warnf("restore session failed: %v", err)
		s.clear(ctx)
		return
	}

	s.set(domain.Session{Token: token, User: user, IsAuthenticated: true})
}

// tokenExpired reports whether token is a JWT whose exp claim has passed.
// Opaque tokens are never considered expired here; the backend decides.
func (s *SessionStore) tokenExpired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(s.now())
}

// Invalidate drops the in-memory session without touching storage. The HTTP
// client calls it after a 401 has already cleared the persisted token.
func (s *SessionStore) Invalidate(context.Context) {
	s.set(domain.Session{})
}

func (s *SessionStore) clear(ctx context.Context) error {
	var err error
	if clearErr := s.tokens.Clear(context.WithoutCancel(ctx)); clearErr != nil {
		err = fmt.Errorf("clear token: %w", clearErr)
		s.logger.Warn(err)
	}
	s.set(domain.Session{})
	return err
}

func copySession(in domain.Session) domain.Session {
	in.User = copyUser(in.User)
	return in
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
