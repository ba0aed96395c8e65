package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cms-console/internal/domain"
	apphttp "cms-console/internal/http"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("insufficient role")
)

// GuardOptions configures where a guard sends rejected consumers.
type GuardOptions struct {
	// RequiredRole is empty when any signed-in user may pass.
	RequiredRole         domain.Role
	RedirectTo           string
	RedirectUnauthorized string
}

// Decision is the outcome of evaluating the session against a guard.
type Decision struct {
	Loading    bool
	Authorized bool
	Redirect   string
	User       *domain.User
}

func (d Decision) same(o Decision) bool {
	if d.Loading != o.Loading || d.Authorized != o.Authorized || d.Redirect != o.Redirect {
		return false
	}
	if d.User == nil || o.User == nil {
		return d.User == o.User
	}
	return *d.User == *o.User
}

// Guard gates protected views and commands on the session and its role.
type Guard struct {
	store     *SessionStore
	navigator apphttp.Navigator

	mu      sync.Mutex
	opts    GuardOptions
	changed chan struct{}
}

func NewGuard(store *SessionStore, navigator apphttp.Navigator, opts GuardOptions) *Guard {
	if opts.RedirectTo == "" {
		opts.RedirectTo = apphttp.LoginPath
	}
	if opts.RedirectUnauthorized == "" {
		opts.RedirectUnauthorized = "/"
	}
	if navigator == nil {
		navigator = apphttp.NavigatorFunc(func(string) {})
	}
	return &Guard{
		store:     store,
		navigator: navigator,
		opts:      opts,
		changed:   make(chan struct{}),
	}
}

// SetRequiredRole changes the role the guard demands. Watchers re-evaluate.
func (g *Guard) SetRequiredRole(role domain.Role) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.opts.RequiredRole == role {
		return
	}
	g.opts.RequiredRole = role
	close(g.changed)
	g.changed = make(chan struct{})
}

func (g *Guard) options() (GuardOptions, <-chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opts, g.changed
}

func (g *Guard) evaluate(s domain.Session) Decision {
	opts, _ := g.options()
	switch {
	case s.IsLoading:
		return Decision{Loading: true}
	case !s.IsAuthenticated:
		return Decision{Redirect: opts.RedirectTo}
	case opts.RequiredRole != "" && !s.HasRole(opts.RequiredRole):
		return Decision{Redirect: opts.RedirectUnauthorized, User: s.User}
	default:
		return Decision{Authorized: true, User: s.User}
	}
}

// Check restores the session and evaluates it once, navigating on rejection.
// A login still in flight is waited for. Loading is only returned when ctx
// ends first.
func (g *Guard) Check(ctx context.Context) Decision {
	g.store.RestoreSession(ctx)
	d := g.evaluate(g.settled(ctx))
	if d.Redirect != "" {
		g.navigator.Navigate(d.Redirect)
	}
	return d
}

// settled returns the first session snapshot that is not loading.
func (g *Guard) settled(ctx context.Context) domain.Session {
	sessions, cancel := g.store.Subscribe()
	defer cancel()

	s := g.store.Session()
	for s.IsLoading {
		select {
		case <-ctx.Done():
			return s
		case next, ok := <-sessions:
			if !ok {
				return s
			}
			s = next
		}
	}
	return s
}

// Watch emits a loading decision, then the resolved one, then a new decision
// whenever the session or the required role changes. The channel closes when
// ctx is done.
func (g *Guard) Watch(ctx context.Context) <-chan Decision {
	out := make(chan Decision, 1)
	sessions, cancel := g.store.Subscribe()

	go func() {
		defer close(out)
		defer cancel()

		var last Decision
		emitted := false
		emit := func(d Decision) bool {
			if emitted && d.same(last) {
				return true
			}
			if d.Redirect != "" {
				g.navigator.Navigate(d.Redirect)
			}
			select {
			case out <- d:
				last, emitted = d, true
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(Decision{Loading: true}) {
			return
		}

		// capture before evaluating so a concurrent SetRequiredRole is not missed
		_, roleChanged := g.options()
		g.store.RestoreSession(ctx)
		current := g.store.Session()

		for {
			if !emit(g.evaluate(current)) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case s, ok := <-sessions:
				if !ok {
					return
				}
				current = s
			case <-roleChanged:
				_, roleChanged = g.options()
			}
		}
	}()
	return out
}

// Protect runs fn only when the guard authorizes the current session.
func (g *Guard) Protect(ctx context.Context, fn func(context.Context, *domain.User) error) error {
	d := g.Check(ctx)
	switch {
	case d.Authorized:
		return fn(ctx, d.User)
	case d.Loading:
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return ErrUnauthenticated
	case d.User == nil:
		return ErrUnauthenticated
	default:
		return ErrForbidden
	}
}
