// ABOUTME: Sync coordinator between the local cache and the TT-RSS server
// ABOUTME: Owns the staleness tracker, the refresh worker pool and the pending-mutation push lane

package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	gosync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/harper/ttcache/internal/metrics"
	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/remote"
	"github.com/harper/ttcache/internal/staleness"
	"github.com/harper/ttcache/internal/storage"
)

// ErrClosed is returned for work requested after Close.
var ErrClosed = errors.New("coordinator closed")

// Connectivity reports whether the server is reachable. netstate.Monitor
// implements it.
type Connectivity interface {
	// Online must return within a bounded wait.
	Online(ctx context.Context) bool
	// Changed is closed on the next online/offline transition.
	Changed() <-chan struct{}
}

// RefreshError is a refresh that fell back to the cached view.
type RefreshError struct {
	Scope staleness.Scope
	Err   error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s: %v", e.Scope, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Settings tunes refresh and retention.
type Settings struct {
	UpdateWindow    time.Duration
	RetainLimit     int
	HeadlineLimit   int
	PageSize        int
	FreshMaxAge     time.Duration
	PurgeAfter      time.Duration
	CleanupInterval time.Duration
	SyncInterval    time.Duration
	Workers         int
	DownloadIcons   bool
}

// DefaultSettings returns the stock tuning.
func DefaultSettings() Settings {
	return Settings{
		UpdateWindow:    staleness.DefaultWindow,
		RetainLimit:     5000,
		HeadlineLimit:   1000,
		PageSize:        remote.MaxPageSize,
		FreshMaxAge:     24 * time.Hour,
		CleanupInterval: 24 * time.Hour,
		SyncInterval:    5 * time.Minute,
		Workers:         4,
	}
}

// EventKind names what changed in the cache.
type EventKind string

const (
	EventCategories EventKind = "categories"
	EventFeeds      EventKind = "feeds"
	EventArticles   EventKind = "articles"
	EventCounters   EventKind = "counters"
	EventMutations  EventKind = "mutations"
)

// Event is delivered to OnChange listeners after a change commits.
type Event struct {
	Kind       EventKind
	Scope      staleness.Scope
	ArticleIDs []int
}

// Coordinator orchestrates refreshes and mutation pushes. Construct it with
// New and release it with Close.
type Coordinator struct {
	store    storage.Store
	remote   remote.Client
	net      Connectivity
	tracker  *staleness.Tracker
	settings Settings
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	flights singleflight.Group
	workers *semaphore.Weighted
	pushMu  gosync.Mutex
	// mergeMu is held shared from an article fetch until its merge commits
	// and exclusively while a push deletes confirmed mutations.
	mergeMu gosync.RWMutex
	pushLim *rate.Limiter
	nudge   chan struct{}
	wg      gosync.WaitGroup
	closed  atomic.Bool

	mu        gosync.Mutex
	lastErr   error
	listeners []func(Event)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSettings replaces the default tuning.
func WithSettings(s Settings) Option {
	return func(c *Coordinator) { c.settings = s }
}

// WithClock injects the time source used for staleness and mutation times.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics records refresh and push outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New builds a coordinator and loads the persisted refresh times. A nil net
// means the server is always considered reachable.
func New(ctx context.Context, store storage.Store, client remote.Client, net Connectivity, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		store:    store,
		remote:   client,
		net:      net,
		settings: DefaultSettings(),
		logger:   slog.Default(),
		now:      time.Now,
		nudge:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.settings.Workers <= 0 {
		c.settings.Workers = 1
	}
	if c.settings.PageSize <= 0 || c.settings.PageSize > remote.MaxPageSize {
		c.settings.PageSize = remote.MaxPageSize
	}

	c.workers = semaphore.NewWeighted(int64(c.settings.Workers))
	c.pushLim = rate.NewLimiter(rate.Every(10*time.Second), 1)
	c.tracker = staleness.NewTracker(c.settings.UpdateWindow,
		staleness.WithClock(c.now),
		staleness.WithPersister(store),
		staleness.WithSizer(c.scopeSize),
	)
	if err := c.tracker.Load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Close waits for in-flight asynchronous work. It does not close the store.
func (c *Coordinator) Close() error {
	c.closed.Store(true)
	c.wg.Wait()
	return nil
}

// Tracker exposes the staleness tracker.
func (c *Coordinator) Tracker() *staleness.Tracker {
	return c.tracker
}

// OnChange registers fn to run after every committed change. Listeners run
// synchronously and must not push mutations.
func (c *Coordinator) OnChange(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Coordinator) emit(ev Event) {
	c.mu.Lock()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// LastError returns the most recent refresh or push failure.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// PullLastError returns the most recent failure and clears it.
func (c *Coordinator) PullLastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.lastErr
	c.lastErr = nil
	return err
}

func (c *Coordinator) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// online reports reachability within the connectivity check's bounded wait.
func (c *Coordinator) online(ctx context.Context) bool {
	if c.net == nil {
		return true
	}
	ok := c.net.Online(ctx)
	c.metrics.SetOnline(ok)
	return ok
}

func (c *Coordinator) freshSince() time.Time {
	return c.now().Add(-c.settings.FreshMaxAge)
}

// scopeSize feeds the tracker's empty-collection rule.
func (c *Coordinator) scopeSize(ctx context.Context, s staleness.Scope) (int, bool, error) {
	switch s.Kind {
	case staleness.KindCategories:
		n, err := c.store.CountCategories(ctx, false)
		return n, true, err
	case staleness.KindVirtualCategories:
		n, err := c.store.CountCategories(ctx, true)
		return n, true, err
	case staleness.KindFeeds:
		n, err := c.store.CountFeeds(ctx)
		return n, true, err
	case staleness.KindArticles:
		id := s.ID
		n, err := c.store.CountArticles(ctx, &storage.ArticleFilter{FeedID: &id, FreshSince: c.freshSince()})
		return n, true, err
	case staleness.KindCategoryArticles:
		id := s.ID
		n, err := c.store.CountArticles(ctx, &storage.ArticleFilter{CategoryID: &id, FreshSince: c.freshSince()})
		return n, true, err
	case staleness.KindAllArticles:
		n, err := c.store.CountArticles(ctx, nil)
		return n, true, err
	default:
		return 0, false, nil
	}
}

// Categories returns the cached categories.
func (c *Coordinator) Categories(ctx context.Context, includeVirtual bool) ([]models.Category, error) {
	return c.store.GetCategories(ctx, includeVirtual)
}

// Feeds returns the cached feeds of a category, or every feed for VirtualAll.
func (c *Coordinator) Feeds(ctx context.Context, categoryID int) ([]models.Feed, error) {
	return c.store.GetFeedsForCategory(ctx, categoryID)
}

// Articles returns cached articles matching filter. A zero FreshSince is
// filled from the configured fresh age.
func (c *Coordinator) Articles(ctx context.Context, filter storage.ArticleFilter) ([]models.Article, error) {
	if filter.FreshSince.IsZero() {
		filter.FreshSince = c.freshSince()
	}
	return c.store.ListArticles(ctx, &filter)
}

// Article returns one cached article.
func (c *Coordinator) Article(ctx context.Context, id int) (*models.Article, error) {
	return c.store.GetArticle(ctx, id)
}

// Search runs an offline full-text search over cached articles.
func (c *Coordinator) Search(ctx context.Context, query string, limit int) ([]models.Article, error) {
	return c.store.Search(ctx, query, limit)
}

// PendingMutations returns the queued local changes, oldest first.
func (c *Coordinator) PendingMutations(ctx context.Context) ([]models.PendingMutation, error) {
	return c.store.ListPendingMutations(ctx)
}

// PendingCount returns the number of changes waiting to be pushed.
func (c *Coordinator) PendingCount(ctx context.Context) (int, error) {
	muts, err := c.store.ListPendingMutations(ctx)
	if err != nil {
		return 0, err
	}
	return len(muts), nil
}

// Status summarizes the cache and sync state.
type Status struct {
	Stats        storage.Stats
	Online       bool
	WorkOffline  bool
	LastRefresh  map[string]time.Time
	LastError    string
	RemoteError  string
	UpdateWindow time.Duration
}

// Status reports cache counts, refresh times and the last failure.
func (c *Coordinator) Status(ctx context.Context) (*Status, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{
		Stats:        *stats,
		Online:       c.online(ctx),
		LastRefresh:  make(map[string]time.Time),
		UpdateWindow: c.tracker.Window(),
	}
	if w, ok := c.net.(interface{ WorkingOffline() bool }); ok {
		st.WorkOffline = w.WorkingOffline()
	}
	for s, at := range c.tracker.Snapshot() {
		st.LastRefresh[s.String()] = at
	}
	if err := c.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if c.remote != nil {
		st.RemoteError = c.remote.LastError()
	}
	return st, nil
}
