package listing

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cms-console/internal/domain"
)

type reply struct {
	items []string
	err   error
}

type call struct {
	q     Query
	reply chan reply
}

// scripted hands every fetch to the test, which decides when and how it returns.
type scripted struct {
	calls chan call
}

func newScripted() *scripted { return &scripted{calls: make(chan call, 16)} }

func (s *scripted) fetch(ctx context.Context, q Query) (*domain.Page[string], error) {
	c := call{q: q, reply: make(chan reply, 1)}
	select {
	case s.calls <- c:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-c.reply:
		if r.err != nil {
			return nil, r.err
		}
		return &domain.Page[string]{Data: r.items, Total: len(r.items), Page: q.Page, Limit: q.Limit, TotalPages: 1}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scripted) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-s.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch")
		return call{}
	}
}

func (s *scripted) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case c := <-s.calls:
		t.Fatalf("unexpected fetch for %+v", c.q)
	case <-time.After(wait):
	}
}

type recorder struct {
	mu      sync.Mutex
	updates []Snapshot[string]
	notices chan Notice
}

func newRecorder() *recorder { return &recorder{notices: make(chan Notice, 16)} }

func (r *recorder) onUpdate(s Snapshot[string]) {
	r.mu.Lock()
	r.updates = append(r.updates, s)
	r.mu.Unlock()
}

func (r *recorder) onNotice(n Notice) { r.notices <- n }

func (r *recorder) snapshots() []Snapshot[string] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot[string](nil), r.updates...)
}

func (r *recorder) nextNotice(t *testing.T) Notice {
	t.Helper()
	select {
	case n := <-r.notices:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notice")
		return Notice{}
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func startLister(t *testing.T, opts Options[string]) (*Lister[string], *scripted, *recorder) {
	t.Helper()
	src := newScripted()
	rec := newRecorder()
	if opts.Interval == 0 {
		opts.Interval = -1
	}
	if opts.RefreshEvery == 0 {
		opts.RefreshEvery = time.Nanosecond
	}
	opts.OnUpdate = rec.onUpdate
	opts.OnNotice = rec.onNotice
	opts.Logger = quietLogger()

	l := New(src.fetch, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l, src, rec
}

func waitSeq(t *testing.T, l *Lister[string], seq uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return l.Snapshot().Seq == seq }, 2*time.Second, 5*time.Millisecond)
}

func TestLister_InitialLoadDefaults(t *testing.T) {
	l, src, rec := startLister(t, Options[string]{})

	c := src.next(t)
	assert.Equal(t, Query{Page: 1, Limit: DefaultLimit}, c.q)
	c.reply <- reply{items: []string{"a", "b"}}
	waitSeq(t, l, 1)

	snap := l.Snapshot()
	assert.Equal(t, []string{"a", "b"}, snap.Items)
	assert.Equal(t, 2, snap.Total)
	assert.False(t, snap.Loading)

	updates := rec.snapshots()
	require.NotEmpty(t, updates)
	assert.True(t, updates[0].Loading)
}

func TestLister_SetCategoryResetsPage(t *testing.T) {
	l, src, _ := startLister(t, Options[string]{Query: Query{Limit: 5}})
	src.next(t).reply <- reply{items: []string{"a"}}

	l.SetPage(3)
	c := src.next(t)
	assert.Equal(t, 3, c.q.Page)
	c.reply <- reply{items: []string{"c"}}

	l.SetCategory("cat-1")
	c = src.next(t)
	assert.Equal(t, 1, c.q.Page)
	assert.Equal(t, "cat-1", c.q.CategoryID)
	assert.Equal(t, 5, c.q.Limit)
}

func TestLister_SearchIsDebounced(t *testing.T) {
	l, src, _ := startLister(t, Options[string]{Debounce: 40 * time.Millisecond})
	src.next(t).reply <- reply{}

	l.SetPage(2)
	src.next(t).reply <- reply{}

	l.SetSearch("g")
	l.SetSearch("go")
	l.SetSearch("gol")

	c := src.next(t)
	assert.Equal(t, "gol", c.q.Search)
	assert.Equal(t, 1, c.q.Page)
	c.reply <- reply{}

	src.none(t, 120*time.Millisecond)
}

func TestLister_LoadSetsLoadingRefreshDoesNot(t *testing.T) {
	l, src, rec := startLister(t, Options[string]{})
	src.next(t).reply <- reply{items: []string{"a"}}
	waitSeq(t, l, 1)
	before := len(rec.snapshots())

	l.Refresh()
	src.next(t).reply <- reply{items: []string{"a"}}
	waitSeq(t, l, 2)

	sawRefreshing := false
	for _, s := range rec.snapshots()[before:] {
		assert.False(t, s.Loading)
		sawRefreshing = sawRefreshing || s.Refreshing
	}
	assert.True(t, sawRefreshing)
}

func TestLister_DiscardsStaleResponses(t *testing.T) {
	l, src, _ := startLister(t, Options[string]{})
	first := src.next(t)

	l.Refresh()
	second := src.next(t)
	second.reply <- reply{items: []string{"new"}}
	waitSeq(t, l, 2)

	first.reply <- reply{items: []string{"old"}}
	assert.Never(t, func() bool {
		return l.Snapshot().Seq != 2
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []string{"new"}, l.Snapshot().Items)
}

func TestLister_DiscardsResponsesForPreviousQuery(t *testing.T) {
	l, src, _ := startLister(t, Options[string]{})
	first := src.next(t)

	l.SetPage(2)
	second := src.next(t)

	first.reply <- reply{items: []string{"page-1"}}
	assert.Never(t, func() bool {
		return len(l.Snapshot().Items) > 0
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.True(t, l.Snapshot().Loading)

	second.reply <- reply{items: []string{"page-2"}}
	waitSeq(t, l, 2)
	assert.Equal(t, []string{"page-2"}, l.Snapshot().Items)
	assert.False(t, l.Snapshot().Loading)
}

func TestLister_ChangeNoticeOnlyWhenDataDiffers(t *testing.T) {
	l, src, rec := startLister(t, Options[string]{})
	src.next(t).reply <- reply{items: []string{"a"}}
	waitSeq(t, l, 1)

	l.Refresh()
	src.next(t).reply <- reply{items: []string{"a"}}
	waitSeq(t, l, 2)

	l.Refresh()
	src.next(t).reply <- reply{items: []string{"b", "a"}}

	n := rec.nextNotice(t)
	assert.Equal(t, NoticeChanged, n.Kind)
	assert.Equal(t, uint64(3), n.Seq, "identical refresh must not notify")
	assert.Equal(t, []string{"b", "a"}, l.Snapshot().Items)
}

func TestLister_ErrorKeepsPreviousItems(t *testing.T) {
	l, src, rec := startLister(t, Options[string]{})
	src.next(t).reply <- reply{items: []string{"a"}}
	waitSeq(t, l, 1)

	boom := errors.New("backend down")
	l.Refresh()
	src.next(t).reply <- reply{err: boom}

	n := rec.nextNotice(t)
	assert.Equal(t, NoticeError, n.Kind)
	assert.ErrorIs(t, n.Err, boom)

	snap := l.Snapshot()
	assert.Equal(t, []string{"a"}, snap.Items)
	assert.ErrorIs(t, snap.Err, boom)

	l.Refresh()
	src.next(t).reply <- reply{items: []string{"a"}}
	waitSeq(t, l, 3)
	assert.NoError(t, l.Snapshot().Err)
}

func TestLister_RefreshTriggersAreCoalesced(t *testing.T) {
	l, src, _ := startLister(t, Options[string]{RefreshEvery: time.Hour})
	src.next(t).reply <- reply{}

	for i := 0; i < 5; i++ {
		l.Refresh()
	}
	src.next(t).reply <- reply{}
	src.none(t, 100*time.Millisecond)
}

func TestLister_PollsOnInterval(t *testing.T) {
	l, src, _ := startLister(t, Options[string]{Interval: 20 * time.Millisecond})
	src.next(t).reply <- reply{items: []string{"a"}}

	c := src.next(t)
	assert.Equal(t, 1, c.q.Page)
	c.reply <- reply{items: []string{"a"}}
	require.Eventually(t, func() bool {
		s := l.Snapshot()
		return s.Seq >= 1 && !s.Loading
	}, 2*time.Second, 5*time.Millisecond)
}
