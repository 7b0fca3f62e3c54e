// ABOUTME: Refresh operations: staleness check, bounded connectivity check, fetch, merge, mark refreshed
// ABOUTME: Remote results are fetched completely before anything is written so a canceled refresh merges nothing

package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/harper/ttcache/internal/metrics"
	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/remote"
	"github.com/harper/ttcache/internal/staleness"
	"github.com/harper/ttcache/internal/storage"
)

// refresh runs fn for s unless the cache is fresh. A forced refresh resets
// the scope first, so it stays stale if the fetch fails. Concurrent
// refreshes of the same scope share one run. It reports whether the server
// was reached and the result merged.
func (c *Coordinator) refresh(ctx context.Context, s staleness.Scope, force bool, fresh func() bool, fn func(ctx context.Context) error) (bool, error) {
	switch {
	case force:
		if err := c.tracker.Reset(ctx, s); err != nil {
			c.logger.Warn("reset staleness", "scope", s.String(), "err", err)
		}
	case fresh():
		c.metrics.RecordRefresh(string(s.Kind), metrics.ResultHit, 0)
		return false, nil
	}

	_, err, _ := c.flights.Do(s.String(), func() (interface{}, error) {
		if !c.online(ctx) {
			c.metrics.RecordRefresh(string(s.Kind), metrics.ResultOffline, 0)
			return nil, remote.ErrConnectivity
		}

		start := c.now()
		if err := fn(ctx); err != nil {
			c.metrics.RecordRefresh(string(s.Kind), metrics.ResultFailed, c.now().Sub(start))
			return nil, err
		}
		if err := c.tracker.MarkRefreshed(ctx, s); err != nil {
			c.metrics.RecordRefresh(string(s.Kind), metrics.ResultFailed, c.now().Sub(start))
			return nil, err
		}
		c.metrics.RecordRefresh(string(s.Kind), metrics.ResultFetched, c.now().Sub(start))
		return nil, nil
	})
	if err != nil {
		rerr := &RefreshError{Scope: s, Err: err}
		c.setLastError(rerr)
		if errors.Is(err, storage.ErrStorage) {
			c.logger.Error("refresh failed", "scope", s.String(), "err", err)
		} else {
			c.logger.Warn("refresh failed, serving cache", "scope", s.String(), "err", err)
		}
		return false, rerr
	}
	return true, nil
}

func (c *Coordinator) isFresh(ctx context.Context, s staleness.Scope) func() bool {
	return func() bool { return !c.tracker.IsStale(ctx, s) }
}

// RefreshCategories refreshes the real categories and returns the cached
// view. On failure the previous view is returned with a *RefreshError.
func (c *Coordinator) RefreshCategories(ctx context.Context, force bool) ([]models.Category, error) {
	_, err := c.refreshCategories(ctx, force)
	cats, rerr := c.store.GetCategories(ctx, false)
	if rerr != nil {
		return nil, rerr
	}
	return cats, err
}

func (c *Coordinator) refreshCategories(ctx context.Context, force bool) (bool, error) {
	s := staleness.Categories
	return c.refresh(ctx, s, force, c.isFresh(ctx, s), func(ctx context.Context) error {
		cats, err := c.remote.ListCategories(ctx)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.store.ReplaceCategories(ctx, cats, false); err != nil {
			return err
		}
		c.emit(Event{Kind: EventCategories, Scope: s})
		return nil
	})
}

// RefreshFeeds refreshes the subscribed feeds and returns every cached feed.
func (c *Coordinator) RefreshFeeds(ctx context.Context, force bool) ([]models.Feed, error) {
	_, err := c.refreshFeeds(ctx, force)
	feeds, rerr := c.store.GetFeeds(ctx)
	if rerr != nil {
		return nil, rerr
	}
	return feeds, err
}

func (c *Coordinator) refreshFeeds(ctx context.Context, force bool) (bool, error) {
	s := staleness.Feeds
	fetched, err := c.refresh(ctx, s, force, c.isFresh(ctx, s), func(ctx context.Context) error {
		byCat, err := c.remote.ListFeeds(ctx)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var feeds []models.Feed
		for catID, group := range byCat {
			for _, f := range group {
				f.CategoryID = catID
				feeds = append(feeds, f)
			}
		}
		if err := c.store.ReplaceFeeds(ctx, feeds); err != nil {
			return err
		}
		c.emit(Event{Kind: EventFeeds, Scope: s})
		return nil
	})
	if fetched && c.settings.DownloadIcons {
		c.downloadIcons(ctx)
	}
	return fetched, err
}

// downloadIcons fetches missing feed icons. Failures are logged and skipped.
func (c *Coordinator) downloadIcons(ctx context.Context) {
	ids, err := c.store.FeedIDsWithoutIcon(ctx)
	if err != nil {
		c.logger.Warn("list feeds without icon", "err", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.settings.Workers)
	for _, id := range ids {
		g.Go(func() error {
			icon, err := c.remote.FetchFeedIcon(gctx, id)
			if err != nil {
				c.logger.Debug("feed icon unavailable", "feed_id", id, "err", err)
				return nil
			}
			if err := c.store.SetFeedIcon(gctx, id, icon); err != nil {
				c.logger.Warn("store feed icon", "feed_id", id, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// RefreshCounters refreshes the unread counters. It is the cheapest scope.
func (c *Coordinator) RefreshCounters(ctx context.Context, force bool) error {
	_, err := c.refreshCounters(ctx, force)
	return err
}

func (c *Coordinator) refreshCounters(ctx context.Context, force bool) (bool, error) {
	s := staleness.Counters
	return c.refresh(ctx, s, force, c.isFresh(ctx, s), func(ctx context.Context) error {
		counters, err := c.remote.FetchCounters(ctx)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.store.SetUnreadCounts(ctx, counters.Categories, counters.Feeds); err != nil {
			return err
		}
		c.emit(Event{Kind: EventCounters, Scope: s})
		return nil
	})
}

// RefreshVirtualCategories refreshes the special categories and labels,
// then forces a counter refresh and re-derives the virtual unread counts
// from the cache in one snapshot transaction. An empty cache is seeded with
// the fixed virtual set so there is always something to show.
func (c *Coordinator) RefreshVirtualCategories(ctx context.Context, force bool) ([]models.Category, error) {
	_, err := c.refreshVirtualCategories(ctx, force)
	cats, rerr := c.store.GetCategories(ctx, true)
	if rerr != nil {
		return nil, rerr
	}
	return lo.Filter(cats, func(cat models.Category, _ int) bool { return cat.IsVirtual() }), err
}

func (c *Coordinator) refreshVirtualCategories(ctx context.Context, force bool) (bool, error) {
	s := staleness.VirtualCategories
	fetched, err := c.refresh(ctx, s, force, c.isFresh(ctx, s), func(ctx context.Context) error {
		cats, err := c.remote.ListVirtualCategories(ctx)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.store.ReplaceCategories(ctx, cats, true); err != nil {
			return err
		}
		c.emit(Event{Kind: EventCategories, Scope: s})
		return nil
	})

	if n, cerr := c.store.CountCategories(ctx, true); cerr == nil && n == 0 {
		defaults := lo.Map(models.VirtualCategories, func(v models.VirtualCategory, _ int) models.Category {
			return models.Category{ID: int(v), Title: v.Title()}
		})
		if serr := c.store.UpsertCategories(ctx, defaults); serr != nil {
			c.logger.Error("seed virtual categories", "err", serr)
		}
	}

	if fetched {
		if _, cerr := c.refreshCounters(ctx, true); cerr != nil {
			c.logger.Warn("counter refresh before virtual recount failed", "err", cerr)
		}
	}
	if rerr := c.store.RecalculateVirtualCounters(ctx, c.freshSince()); rerr != nil {
		c.logger.Error("recalculate virtual counters", "err", rerr)
		if err == nil {
			err = rerr
		}
	} else {
		c.emit(Event{Kind: EventCounters, Scope: s})
	}
	return fetched, err
}

// articleScope returns the staleness scope of a feed or category listing.
func articleScope(id int, isCategory bool) staleness.Scope {
	if isCategory {
		return staleness.CategoryArticles(id)
	}
	return staleness.Articles(id)
}

// markedKind returns the flag a starred or published listing reconciles.
func markedKind(id int) (models.MutationKind, bool) {
	v, ok := models.AsVirtual(id)
	if !ok {
		return "", false
	}
	switch v {
	case models.VirtualStarred:
		return models.MutationStar, true
	case models.VirtualPublished:
		return models.MutationPublish, true
	}
	return "", false
}

// RefreshArticles refreshes the headlines of a feed (or category when
// isCategory is set) and returns the cached articles of that scope. Fetched
// articles are merged into the cache, never replacing it, so articles from
// earlier narrower queries survive.
func (c *Coordinator) RefreshArticles(ctx context.Context, id int, isCategory, onlyUnread, force bool) ([]models.Article, error) {
	_, err := c.refreshArticles(ctx, id, isCategory, onlyUnread, force)
	filter := storage.ArticleFilter{UnreadOnly: onlyUnread, FreshSince: c.freshSince()}
	if isCategory {
		filter.CategoryID = &id
	} else {
		filter.FeedID = &id
	}
	arts, rerr := c.store.ListArticles(ctx, &filter)
	if rerr != nil {
		return nil, rerr
	}
	return arts, err
}

func (c *Coordinator) refreshArticles(ctx context.Context, id int, isCategory, onlyUnread, force bool) (bool, error) {
	s := articleScope(id, isCategory)
	kind, marked := markedKind(id)
	// Virtual categories and labels are addressed as feeds by the server
	remoteIsCat := isCategory && id >= 0

	fresh := func() bool {
		if !c.tracker.IsStale(ctx, s) {
			return true
		}
		// A global headline pull covers ordinary feeds but not the
		// starred and published listings, which must be reconciled.
		return !marked && !c.tracker.IsStale(ctx, staleness.AllArticles)
	}

	return c.refresh(ctx, s, force, fresh, func(ctx context.Context) error {
		c.mergeMu.RLock()
		defer c.mergeMu.RUnlock()

		var arts []models.Article
		var err error
		if marked {
			arts, err = c.fetchHeadlines(ctx, remote.HeadlineQuery{FeedID: id, View: remote.ViewAll}, c.settings.RetainLimit, remote.MaxPageSize)
		} else {
			arts, err = c.fetchListing(ctx, id, isCategory, remoteIsCat, onlyUnread)
		}
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.mergeArticles(ctx, s, arts, c.settings.RetainLimit); err != nil {
			return err
		}
		if marked {
			ids := lo.Map(arts, func(a models.Article, _ int) int { return a.ID })
			n, err := c.store.ReconcileMarked(ctx, kind, ids)
			if err != nil {
				return err
			}
			if n > 0 {
				c.logger.Debug("cleared stale flags", "kind", string(kind), "count", n)
			}
		}
		return nil
	})
}

// fetchListing pulls the unread view first and, unless onlyUnread, the full
// view as well, and unions them by id.
func (c *Coordinator) fetchListing(ctx context.Context, id int, isCategory, remoteIsCat, onlyUnread bool) ([]models.Article, error) {
	unread, err := c.store.UnreadCount(ctx, id, isCategory, c.freshSince())
	if err != nil {
		return nil, err
	}
	limit := max(unread, c.settings.HeadlineLimit)

	q := remote.HeadlineQuery{FeedID: id, IsCategory: remoteIsCat, View: remote.ViewUnread}
	arts, err := c.fetchHeadlines(ctx, q, limit, c.settings.PageSize)
	if err != nil {
		return nil, err
	}
	if onlyUnread {
		return arts, nil
	}

	q.View = remote.ViewAll
	all, err := c.fetchHeadlines(ctx, q, limit, c.settings.PageSize)
	if err != nil {
		return nil, err
	}
	return lo.UniqBy(append(arts, all...), func(a models.Article) int { return a.ID }), nil
}

// fetchHeadlines pages through a listing until a short page or limit.
func (c *Coordinator) fetchHeadlines(ctx context.Context, q remote.HeadlineQuery, limit, pageSize int) ([]models.Article, error) {
	var out []models.Article
	for len(out) < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.Offset = len(out)
		q.Limit = min(pageSize, limit-len(out))
		page, err := c.remote.ListHeadlines(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < q.Limit {
			break
		}
	}
	return out, nil
}

func (c *Coordinator) mergeArticles(ctx context.Context, s staleness.Scope, arts []models.Article, retainLimit int) error {
	evicted, err := c.store.UpsertArticles(ctx, arts, retainLimit)
	if err != nil {
		return err
	}
	c.metrics.AddEvicted(evicted)
	if evicted > 0 {
		c.logger.Debug("evicted articles", "scope", s.String(), "count", evicted)
	}
	c.emit(Event{Kind: EventArticles, Scope: s, ArticleIDs: lo.Map(arts, func(a models.Article, _ int) int { return a.ID })})
	return nil
}

// RefreshAllArticles pulls unread headlines across every feed plus every
// article newer than the newest cached one. Its timestamp satisfies the
// per-feed staleness of ordinary feeds.
func (c *Coordinator) RefreshAllArticles(ctx context.Context, force bool) error {
	_, err := c.refreshAllArticles(ctx, force)
	return err
}

func (c *Coordinator) refreshAllArticles(ctx context.Context, force bool) (bool, error) {
	s := staleness.AllArticles
	return c.refresh(ctx, s, force, c.isFresh(ctx, s), func(ctx context.Context) error {
		c.mergeMu.RLock()
		defer c.mergeMu.RUnlock()

		all := int(models.VirtualAll)
		sinceID, err := c.store.MaxArticleID(ctx)
		if err != nil {
			return err
		}
		unread, err := c.store.UnreadCount(ctx, all, false, c.freshSince())
		if err != nil {
			return err
		}
		limit := max(unread, c.settings.HeadlineLimit)

		arts, err := c.fetchHeadlines(ctx, remote.HeadlineQuery{FeedID: all, View: remote.ViewUnread}, limit, c.settings.PageSize)
		if err != nil {
			return err
		}
		if sinceID > 0 {
			newer, err := c.fetchHeadlines(ctx, remote.HeadlineQuery{FeedID: all, View: remote.ViewAll, SinceID: sinceID}, limit, c.settings.PageSize)
			if err != nil {
				return err
			}
			arts = lo.UniqBy(append(arts, newer...), func(a models.Article) int { return a.ID })
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return c.mergeArticles(ctx, s, arts, c.settings.RetainLimit)
	})
}

// LoadArticle returns an article with its full content, fetching it when the
// cache only holds the headline. Offline, the cached headline is returned
// with a *RefreshError.
func (c *Coordinator) LoadArticle(ctx context.Context, id int) (*models.Article, error) {
	cached, err := c.store.GetArticle(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if cached != nil && cached.HasContent() {
		return cached, nil
	}

	s := staleness.Articles(id)
	fetchErr := func(err error) (*models.Article, error) {
		rerr := &RefreshError{Scope: s, Err: err}
		c.setLastError(rerr)
		if cached == nil {
			return nil, rerr
		}
		return cached, rerr
	}

	if !c.online(ctx) {
		return fetchErr(remote.ErrConnectivity)
	}
	c.mergeMu.RLock()
	full, err := c.remote.FetchArticle(ctx, id)
	if err == nil {
		// No eviction here: the article being opened must stay readable
		err = c.mergeArticles(ctx, s, []models.Article{*full}, 0)
	}
	c.mergeMu.RUnlock()
	if err != nil {
		return fetchErr(err)
	}
	return c.store.GetArticle(ctx, id)
}

// Cleanup purges articles older than the configured age and articles of
// feeds that no longer exist, at most once per cleanup interval unless
// forced. It needs no connectivity.
func (c *Coordinator) Cleanup(ctx context.Context, force bool) (int, error) {
	last := c.tracker.LastRefreshed(staleness.Cleanup)
	if !force && !last.IsZero() && c.now().Sub(last) < c.settings.CleanupInterval {
		return 0, nil
	}

	total := 0
	if c.settings.PurgeAfter > 0 {
		n, err := c.store.PurgeOlderThan(ctx, c.now().Add(-c.settings.PurgeAfter))
		if err != nil {
			return 0, fmt.Errorf("cleanup: %w", err)
		}
		total += n
	}
	n, err := c.store.PurgeOrphanedArticles(ctx)
	if err != nil {
		return total, fmt.Errorf("cleanup: %w", err)
	}
	total += n

	c.metrics.AddEvicted(total)
	if err := c.tracker.MarkRefreshed(ctx, staleness.Cleanup); err != nil {
		return total, err
	}
	if total > 0 {
		c.logger.Info("cleanup purged articles", "count", total)
		c.emit(Event{Kind: EventArticles, Scope: staleness.Cleanup})
	}
	return total, nil
}

// RefreshAll refreshes categories, feeds and virtual categories on the
// worker pool, then the global article listing. It returns the first
// failure; every scope is attempted regardless.
func (c *Coordinator) RefreshAll(ctx context.Context, force bool) error {
	var g errgroup.Group
	g.SetLimit(c.settings.Workers)
	g.Go(func() error { _, err := c.refreshCategories(ctx, force); return err })
	g.Go(func() error { _, err := c.refreshFeeds(ctx, force); return err })
	g.Go(func() error { _, err := c.refreshVirtualCategories(ctx, force); return err })
	err := g.Wait()

	if _, aerr := c.refreshAllArticles(ctx, force); err == nil {
		err = aerr
	}
	return err
}

// Subscribe adds feedURL on the server and refreshes the feed list.
func (c *Coordinator) Subscribe(ctx context.Context, feedURL string, categoryID int) (int, error) {
	if !c.online(ctx) {
		return 0, fmt.Errorf("subscribe: %w", remote.ErrConnectivity)
	}
	id, err := c.remote.Subscribe(ctx, feedURL, categoryID)
	if err != nil {
		return 0, fmt.Errorf("subscribe: %w", err)
	}
	if _, err := c.refreshFeeds(ctx, true); err != nil {
		return id, err
	}
	return id, nil
}

// Unsubscribe removes a feed on the server and drops it and its articles
// from the cache.
func (c *Coordinator) Unsubscribe(ctx context.Context, feedID int) error {
	if !c.online(ctx) {
		return fmt.Errorf("unsubscribe: %w", remote.ErrConnectivity)
	}
	if err := c.remote.Unsubscribe(ctx, feedID); err != nil && !errors.Is(err, remote.ErrConflictIgnorable) {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	if err := c.store.DeleteFeed(ctx, feedID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if _, err := c.store.PurgeOrphanedArticles(ctx); err != nil {
		return err
	}
	c.emit(Event{Kind: EventFeeds, Scope: staleness.Feeds})
	return nil
}

// Result is delivered once per RequestRefresh.
type Result struct {
	Scope staleness.Scope
	// Fetched is true when the server was reached and the result merged.
	Fetched bool
	// FellBack is true when the refresh failed and the cache was served.
	FellBack bool
	// Err is set only for forced refreshes; passive failures go to LastError.
	Err error
}

// RequestRefresh runs the refresh of s on the worker pool and delivers
// exactly one Result on the returned channel.
func (c *Coordinator) RequestRefresh(ctx context.Context, s staleness.Scope, force bool) <-chan Result {
	ch := make(chan Result, 1)
	if c.closed.Load() {
		ch <- Result{Scope: s, FellBack: true, Err: forcedErr(force, ErrClosed)}
		return ch
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.workers.Acquire(ctx, 1); err != nil {
			ch <- Result{Scope: s, FellBack: true, Err: forcedErr(force, err)}
			return
		}
		defer c.workers.Release(1)

		fetched, err := c.refreshScope(ctx, s, force)
		res := Result{Scope: s, Fetched: fetched}
		if err != nil {
			res.FellBack = true
			res.Err = forcedErr(force, err)
		}
		ch <- res
	}()
	return ch
}

func forcedErr(force bool, err error) error {
	if force {
		return err
	}
	return nil
}

func (c *Coordinator) refreshScope(ctx context.Context, s staleness.Scope, force bool) (bool, error) {
	switch s.Kind {
	case staleness.KindCounters:
		return c.refreshCounters(ctx, force)
	case staleness.KindCategories:
		return c.refreshCategories(ctx, force)
	case staleness.KindVirtualCategories:
		return c.refreshVirtualCategories(ctx, force)
	case staleness.KindFeeds:
		return c.refreshFeeds(ctx, force)
	case staleness.KindArticles:
		return c.refreshArticles(ctx, s.ID, false, false, force)
	case staleness.KindCategoryArticles:
		return c.refreshArticles(ctx, s.ID, true, false, force)
	case staleness.KindAllArticles:
		return c.refreshAllArticles(ctx, force)
	case staleness.KindCleanup:
		n, err := c.Cleanup(ctx, force)
		return n > 0, err
	default:
		return false, fmt.Errorf("unknown scope %q", s.Kind)
	}
}
