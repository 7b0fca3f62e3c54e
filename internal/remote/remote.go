// ABOUTME: Remote client contract the sync coordinator consumes
// ABOUTME: Lists and mutates categories, feeds and articles on the feed-aggregation server

package remote

import (
	"context"

	"github.com/harper/ttcache/internal/models"
)

// ViewMode selects which headlines a listing returns.
type ViewMode string

const (
	ViewAll    ViewMode = "all_articles"
	ViewUnread ViewMode = "unread"
)

// MaxPageSize is the largest page the server returns for one listing call.
const MaxPageSize = 200

// HeadlineQuery describes one page of a headline listing.
type HeadlineQuery struct {
	FeedID      int
	IsCategory  bool
	Limit       int
	Offset      int
	View        ViewMode
	SinceID     int
	ShowContent bool
}

// Counters holds unread counts keyed by category id and feed id.
type Counters struct {
	Categories map[int]int
	Feeds      map[int]int
}

// Client is the server-side collaborator. Every method may fail with an
// error matching ErrConnectivity or ErrRemote; single-article mutations may
// also return ErrConflictIgnorable when the article is gone.
type Client interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	// ListFeeds returns every subscribed feed grouped by category id.
	ListFeeds(ctx context.Context) (map[int][]models.Feed, error)
	// ListVirtualCategories returns the special categories and labels.
	ListVirtualCategories(ctx context.Context) ([]models.Category, error)
	ListHeadlines(ctx context.Context, q HeadlineQuery) ([]models.Article, error)
	FetchArticle(ctx context.Context, id int) (*models.Article, error)
	FetchCounters(ctx context.Context) (*Counters, error)
	FetchFeedIcon(ctx context.Context, feedID int) ([]byte, error)

	MutateReadState(ctx context.Context, ids []int, read bool) error
	MutateStarState(ctx context.Context, id int, starred bool) error
	MutatePublishState(ctx context.Context, id int, published bool, note string) error
	MutateNote(ctx context.Context, id int, note string) error

	Subscribe(ctx context.Context, feedURL string, categoryID int) (int, error)
	Unsubscribe(ctx context.Context, feedID int) error

	// LastError returns the opaque message of the most recent failed call.
	LastError() string
}
