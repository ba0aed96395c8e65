// Package listing drives paginated list views: an initial load, reloads on
// query changes, and a background refresh that reports when the data moved.
package listing

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"cms-console/internal/domain"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultDebounce = 300 * time.Millisecond
	DefaultLimit    = 9
)

// Query selects one page of a collection.
type Query = domain.ListParams

// Fetcher loads one page for q.
type Fetcher[T any] func(ctx context.Context, q Query) (*domain.Page[T], error)

// Mode tells a foreground load apart from a background refresh.
type Mode int

const (
	ModeLoad Mode = iota
	ModeRefresh
)

func (m Mode) String() string {
	if m == ModeRefresh {
		return "refresh"
	}
	return "load"
}

type NoticeKind int

const (
	// NoticeChanged is sent when a refresh returned different items.
	NoticeChanged NoticeKind = iota
	// NoticeError is sent when any fetch failed. Prior items are kept.
	NoticeError
)

type Notice struct {
	Kind NoticeKind
	Mode Mode
	Seq  uint64
	Err  error
}

// Snapshot is the state a list view renders.
type Snapshot[T any] struct {
	Query      Query
	Items      []T
	Total      int
	TotalPages int
	Loading    bool
	Refreshing bool
	Err        error
	// Seq is the sequence number of the fetch whose items are shown.
	Seq uint64
}

type Options[T any] struct {
	Query Query
	// Interval between background refreshes. Negative disables polling.
	Interval time.Duration
	Debounce time.Duration
	// RefreshEvery spaces out Refresh triggers; extra triggers are dropped.
	RefreshEvery time.Duration
	Equal        func(a, b []T) bool
	OnUpdate     func(Snapshot[T])
	OnNotice     func(Notice)
	Logger       *logrus.Logger
}

type commandKind int

const (
	cmdSearch commandKind = iota
	cmdCategory
	cmdPage
	cmdRefresh
)

type command struct {
	kind  commandKind
	value string
	page  int
}

type result[T any] struct {
	seq   uint64
	mode  Mode
	query Query
	page  *domain.Page[T]
	err   error
}

// Lister owns one list view. Run drives it; the Set methods and Refresh may
// be called from any goroutine.
type Lister[T any] struct {
	fetch   Fetcher[T]
	opts    Options[T]
	limiter *rate.Limiter

	cmds    chan command
	results chan result[T]
	done    chan struct{}
	once    sync.Once

	mu   sync.RWMutex
	snap Snapshot[T]

	// owned by the Run goroutine
	seq           uint64
	latestLoad    uint64
	latestRefresh uint64
	loaded        bool
	appliedQuery  Query
}

func New[T any](fetch Fetcher[T], opts Options[T]) *Lister[T] {
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.RefreshEvery == 0 {
		opts.RefreshEvery = time.Second
	}
	if opts.Equal == nil {
		opts.Equal = func(a, b []T) bool { return reflect.DeepEqual(a, b) }
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Query.Page < 1 {
		opts.Query.Page = 1
	}
	if opts.Query.Limit < 1 {
		opts.Query.Limit = DefaultLimit
	}

	return &Lister[T]{
		fetch:   fetch,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.RefreshEvery), 1),
		cmds:    make(chan command, 16),
		results: make(chan result[T]),
		done:    make(chan struct{}),
		snap:    Snapshot[T]{Query: opts.Query, Items: []T{}},
	}
}

// Snapshot returns the current state.
func (l *Lister[T]) Snapshot() Snapshot[T] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.snap
	s.Items = append([]T(nil), l.snap.Items...)
	return s
}

// SetSearch changes the search term after the debounce delay and returns to page 1.
func (l *Lister[T]) SetSearch(term string) { l.send(command{kind: cmdSearch, value: term}) }

// SetCategory filters by category and returns to page 1. Empty clears the filter.
func (l *Lister[T]) SetCategory(id string) { l.send(command{kind: cmdCategory, value: id}) }

func (l *Lister[T]) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	l.send(command{kind: cmdPage, page: page})
}

// Refresh asks for a background refresh, as a focus or visibility change does.
func (l *Lister[T]) Refresh() { l.send(command{kind: cmdRefresh}) }

func (l *Lister[T]) send(c command) {
	select {
	case l.cmds <- c:
	case <-l.done:
	}
}

// Run loads the first page and keeps the view fresh until ctx is done.
func (l *Lister[T]) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })

	query := l.opts.Query
	pendingSearch := query.Search
	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	var tickC <-chan time.Time
	if l.opts.Interval > 0 {
		ticker := time.NewTicker(l.opts.Interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	l.start(ctx, ModeLoad, query)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-tickC:
			l.start(ctx, ModeRefresh, query)

		case c := <-l.cmds:
			switch c.kind {
			case cmdSearch:
				pendingSearch = c.value
				if debounce == nil {
					debounce = time.NewTimer(l.opts.Debounce)
				} else {
					debounce.Reset(l.opts.Debounce)
				}
				debounceC = debounce.C
			case cmdCategory:
				query.CategoryID = c.value
				query.Page = 1
				l.start(ctx, ModeLoad, query)
			case cmdPage:
				if c.page == query.Page {
					continue
				}
				query.Page = c.page
				l.start(ctx, ModeLoad, query)
			case cmdRefresh:
				if !l.limiter.Allow() {
					l.opts.Logger.Debug("refresh trigger coalesced")
					continue
				}
				l.start(ctx, ModeRefresh, query)
			}

		case <-debounceC:
			debounceC = nil
			if pendingSearch == query.Search && query.Page == 1 {
				continue
			}
			query.Search = pendingSearch
			query.Page = 1
			l.start(ctx, ModeLoad, query)

		case res := <-l.results:
			l.apply(res, query)
		}
	}
}

func (l *Lister[T]) start(ctx context.Context, mode Mode, q Query) {
	l.seq++
	seq := l.seq

	l.update(func(s *Snapshot[T]) {
		s.Query = q
		if mode == ModeLoad {
			l.latestLoad = seq
			s.Loading = true
		} else {
			l.latestRefresh = seq
			s.Refreshing = true
		}
	})

	l.opts.Logger.WithFields(logrus.Fields{"seq": seq, "mode": mode.String(), "page": q.Page}).Debug("list fetch started")

	go func() {
		page, err := l.fetch(ctx, q)
		select {
		case l.results <- result[T]{seq: seq, mode: mode, query: q, page: page, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (l *Lister[T]) apply(res result[T], current Query) {
	logger := l.opts.Logger.WithFields(logrus.Fields{"seq": res.seq, "mode": res.mode.String()})

	finish := func(s *Snapshot[T]) {
		if res.seq >= l.latestLoad {
			s.Loading = false
		}
		if res.seq >= l.latestRefresh {
			s.Refreshing = false
		}
	}

	l.mu.RLock()
	applied := l.snap.Seq
	l.mu.RUnlock()

	if res.seq <= applied || res.query != current {
		logger.Debug("discarding stale list response")
		l.update(finish)
		return
	}

	if res.err != nil {
		logger.Warnf("list fetch failed: %v", res.err)
		l.update(func(s *Snapshot[T]) {
			finish(s)
			s.Err = res.err
		})
		l.notify(Notice{Kind: NoticeError, Mode: res.mode, Seq: res.seq, Err: res.err})
		return
	}

	var items []T
	total, totalPages := 0, 1
	if res.page != nil {
		items = res.page.Data
		total, totalPages = res.page.Total, res.page.TotalPages
	}
	if items == nil {
		items = []T{}
	}

	var changed bool
	l.update(func(s *Snapshot[T]) {
		finish(s)
		changed = l.loaded && l.appliedQuery == res.query && !l.opts.Equal(s.Items, items)
		s.Items = items
		s.Total = total
		s.TotalPages = totalPages
		s.Err = nil
		s.Seq = res.seq
	})
	l.loaded = true
	l.appliedQuery = res.query

	if res.mode == ModeRefresh && changed {
		logger.Info("list changed on refresh")
		l.notify(Notice{Kind: NoticeChanged, Mode: res.mode, Seq: res.seq})
	}
}

func (l *Lister[T]) update(fn func(*Snapshot[T])) {
	l.mu.Lock()
	fn(&l.snap)
	l.mu.Unlock()

	if l.opts.OnUpdate != nil {
		l.opts.OnUpdate(l.Snapshot())
	}
}

func (l *Lister[T]) notify(n Notice) {
	if l.opts.OnNotice != nil {
		l.opts.OnNotice(n)
	}
}
