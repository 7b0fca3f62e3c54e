// ABOUTME: Test doubles for the coordinator: scripted remote, switchable connectivity, fake clock
// ABOUTME: Tests run against a real SQLite store in a temp dir

package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/remote"
	"github.com/harper/ttcache/internal/storage"
)

type fakeClock struct {
	mu gosync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.March, 13, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeNet struct {
	online  atomic.Bool
	mu      gosync.Mutex
	changed chan struct{}
}

func newFakeNet(online bool) *fakeNet {
	n := &fakeNet{changed: make(chan struct{})}
	n.online.Store(online)
	return n
}

func (n *fakeNet) Online(ctx context.Context) bool { return n.online.Load() }

func (n *fakeNet) Changed() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.changed
}

func (n *fakeNet) Set(online bool) {
	if n.online.Swap(online) == online {
		return
	}
	n.mu.Lock()
	close(n.changed)
	n.changed = make(chan struct{})
	n.mu.Unlock()
}

// fakeRemote is an in-memory server. Mutations change its article state so
// replays can be checked for idempotence.
type fakeRemote struct {
	mu gosync.Mutex

	categories []models.Category
	feeds      map[int][]models.Feed
	virtual    []models.Category
	counters   remote.Counters
	// headlines returns the full listing for a query; paging is applied here.
	headlines func(q remote.HeadlineQuery) []models.Article
	articles  map[int]models.Article

	// err fails every call when set.
	err error
	// mutateErr fails mutations of one article.
	mutateErr map[int]error
	// onHeadlines runs before each ListHeadlines call.
	onHeadlines func(q remote.HeadlineQuery)

	calls     map[string]int
	queries   []remote.HeadlineQuery
	readCalls [][]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		feeds:     map[int][]models.Feed{},
		articles:  map[int]models.Article{},
		mutateErr: map[int]error{},
		calls:     map[string]int{},
		counters:  remote.Counters{Categories: map[int]int{}, Feeds: map[int]int{}},
	}
}

func (f *fakeRemote) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.err
}

func (f *fakeRemote) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) SetErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeRemote) ListCategories(ctx context.Context) ([]models.Category, error) {
	if err := f.enter("ListCategories"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Category(nil), f.categories...), nil
}

func (f *fakeRemote) ListFeeds(ctx context.Context) (map[int][]models.Feed, error) {
	if err := f.enter("ListFeeds"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int][]models.Feed, len(f.feeds))
	for k, v := range f.feeds {
		out[k] = append([]models.Feed(nil), v...)
	}
	return out, nil
}

func (f *fakeRemote) ListVirtualCategories(ctx context.Context) ([]models.Category, error) {
	if err := f.enter("ListVirtualCategories"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Category(nil), f.virtual...), nil
}

func (f *fakeRemote) ListHeadlines(ctx context.Context, q remote.HeadlineQuery) ([]models.Article, error) {
	if err := f.enter("ListHeadlines"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.queries = append(f.queries, q)
	hook := f.onHeadlines
	fn := f.headlines
	f.mu.Unlock()
	if hook != nil {
		hook(q)
	}
	if err := ctx.Err(); err != nil {
		return nil, remote.NewError("getHeadlines", remote.ErrConnectivity, "", err)
	}

	var all []models.Article
	if fn != nil {
		all = fn(q)
	}
	if q.Offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return append([]models.Article(nil), all[q.Offset:end]...), nil
}

func (f *fakeRemote) FetchArticle(ctx context.Context, id int) (*models.Article, error) {
	if err := f.enter("FetchArticle"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return nil, remote.NewError("getArticle", remote.ErrConflictIgnorable, "", nil)
	}
	return &a, nil
}

func (f *fakeRemote) FetchCounters(ctx context.Context) (*remote.Counters, error) {
	if err := f.enter("FetchCounters"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.counters
	return &c, nil
}

func (f *fakeRemote) FetchFeedIcon(ctx context.Context, feedID int) ([]byte, error) {
	if err := f.enter("FetchFeedIcon"); err != nil {
		return nil, err
	}
	return []byte("icon"), nil
}

// mutate applies fn to a server article, honoring scripted failures.
func (f *fakeRemote) mutate(op string, id int, fn func(a *models.Article)) error {
	if err := f.enter(op); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutateErr[id]; err != nil {
		return err
	}
	a, ok := f.articles[id]
	if !ok {
		return remote.NewError(op, remote.ErrConflictIgnorable, "", nil)
	}
	fn(&a)
	f.articles[id] = a
	return nil
}

func (f *fakeRemote) MutateReadState(ctx context.Context, ids []int, read bool) error {
	if err := f.enter("MutateReadState"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls = append(f.readCalls, append([]int(nil), ids...))
	for _, id := range ids {
		if err := f.mutateErr[id]; err != nil {
			return err
		}
	}
	for _, id := range ids {
		if a, ok := f.articles[id]; ok {
			a.Unread = !read
			f.articles[id] = a
		}
	}
	return nil
}

func (f *fakeRemote) MutateStarState(ctx context.Context, id int, starred bool) error {
	return f.mutate("MutateStarState", id, func(a *models.Article) { a.Starred = starred })
}

func (f *fakeRemote) MutatePublishState(ctx context.Context, id int, published bool, note string) error {
	return f.mutate("MutatePublishState", id, func(a *models.Article) { a.Published = published })
}

func (f *fakeRemote) MutateNote(ctx context.Context, id int, note string) error {
	return f.mutate("MutateNote", id, func(a *models.Article) { a.Note = &note })
}

func (f *fakeRemote) Subscribe(ctx context.Context, feedURL string, categoryID int) (int, error) {
	if err := f.enter("Subscribe"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := 100 + len(f.feeds[categoryID])
	f.feeds[categoryID] = append(f.feeds[categoryID], models.Feed{ID: id, CategoryID: categoryID, Title: feedURL, URL: feedURL})
	return id, nil
}

func (f *fakeRemote) Unsubscribe(ctx context.Context, feedID int) error {
	if err := f.enter("Unsubscribe"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for cat, feeds := range f.feeds {
		kept := feeds[:0]
		for _, fd := range feeds {
			if fd.ID != feedID {
				kept = append(kept, fd)
			}
		}
		f.feeds[cat] = kept
	}
	return nil
}

func (f *fakeRemote) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err.Error()
	}
	return ""
}

func (f *fakeRemote) serverArticle(id int) models.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.articles[id]
}

// feedHeadlines serves f.articles of the queried feed, newest id first,
// honoring the unread view.
func (f *fakeRemote) feedHeadlines(q remote.HeadlineQuery) []models.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Article
	for id := 10000; id > 0; id-- {
		a, ok := f.articles[id]
		if !ok {
			continue
		}
		if q.FeedID != int(models.VirtualAll) && a.FeedID != q.FeedID {
			continue
		}
		if q.View == remote.ViewUnread && !a.Unread {
			continue
		}
		if q.SinceID > 0 && a.ID <= q.SinceID {
			continue
		}
		a.Content = nil
		out = append(out, a)
	}
	return out
}

type harness struct {
	c      *Coordinator
	store  *storage.SQLiteStore
	remote *fakeRemote
	net    *fakeNet
	clock  *fakeClock
	path   string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ttcache.db")
	store, err := storage.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:  store,
		remote: newFakeRemote(),
		net:    newFakeNet(true),
		clock:  newFakeClock(),
		path:   path,
	}
	h.c = h.coordinator(t, opts...)
	return h
}

func (h *harness) coordinator(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	base := []Option{WithClock(h.clock.Now), WithLogger(quietLogger())}
	c, err := New(context.Background(), h.store, h.remote, h.net, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func (h *harness) serverArticles(arts ...models.Article) {
	h.remote.mu.Lock()
	for _, a := range arts {
		h.remote.articles[a.ID] = a
	}
	h.remote.headlines = h.remote.feedHeadlines
	h.remote.mu.Unlock()
}

func art(id, feedID int, updated time.Time) models.Article {
	content := fmt.Sprintf("<p>body %d</p>", id)
	return models.Article{ID: id, FeedID: feedID, Title: "article", Unread: true, Updated: updated, Content: &content}
}

func ids(arts []models.Article) []int {
	out := make([]int, len(arts))
	for i, a := range arts {
		out[i] = a.ID
	}
	return out
}
