// ABOUTME: Storage interface and types for the offline article cache
// ABOUTME: Defines the Local Store contract: bulk upserts, eviction, pending mutations, refresh times

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harper/ttcache/internal/models"
)

var (
	// ErrStorage marks any failure of the local persistence layer.
	ErrStorage = errors.New("storage error")

	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
)

func storageErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// ArticleFilter selects cached articles. FeedID and CategoryID accept the
// virtual category ids and label ids as well as real ones; FeedID wins when
// both are set.
type ArticleFilter struct {
	FeedID     *int
	CategoryID *int
	UnreadOnly bool
	// FreshSince bounds the fresh virtual category. Zero means one day before now.
	FreshSince time.Time
	// Since drops articles last updated before it when set.
	Since  time.Time
	Limit  int
	Offset int
}

// Stats summarizes what is cached.
type Stats struct {
	Categories       int `db:"categories" json:"categories"`
	Feeds            int `db:"feeds" json:"feeds"`
	Articles         int `db:"articles" json:"articles"`
	Unread           int `db:"unread" json:"unread"`
	Starred          int `db:"starred" json:"starred"`
	Published        int `db:"published" json:"published"`
	WithContent      int `db:"with_content" json:"with_content"`
	PendingMutations int `db:"pending" json:"pending_mutations"`
	RemoteFiles      int `db:"remote_files" json:"remote_files"`
}

// Store is the Local Store. Every multi-row write runs in a single
// transaction on a serialized writer lane; reads never wait on the network
// and see only committed data.
type Store interface {
	// Close closes the store and releases resources.
	Close() error

	// Categories

	UpsertCategories(ctx context.Context, cats []models.Category) error
	// ReplaceCategories upserts cats and deletes every other category of the
	// same class (virtual when virtual is true, real otherwise).
	ReplaceCategories(ctx context.Context, cats []models.Category, virtual bool) error
	GetCategory(ctx context.Context, id int) (*models.Category, error)
	GetCategories(ctx context.Context, includeVirtual bool) ([]models.Category, error)
	CountCategories(ctx context.Context, virtual bool) (int, error)
	DeleteCategories(ctx context.Context, includeVirtual bool) error

	// Feeds

	UpsertFeeds(ctx context.Context, feeds []models.Feed) error
	// ReplaceFeeds upserts feeds and deletes feeds not in the set. Cached
	// icons of surviving feeds are kept.
	ReplaceFeeds(ctx context.Context, feeds []models.Feed) error
	GetFeed(ctx context.Context, id int) (*models.Feed, error)
	GetFeeds(ctx context.Context) ([]models.Feed, error)
	GetFeedsForCategory(ctx context.Context, catID int) ([]models.Feed, error)
	CountFeeds(ctx context.Context) (int, error)
	DeleteFeed(ctx context.Context, id int) error
	DeleteFeeds(ctx context.Context) error
	SetFeedIcon(ctx context.Context, feedID int, icon []byte) error
	FeedIDsWithoutIcon(ctx context.Context) ([]int, error)

	// Articles

	// UpsertArticles merges arts by id in one transaction, re-applies pending
	// local mutations over them, then evicts down to retainLimit (when > 0)
	// in a follow-up transaction. It returns the number of evicted articles.
	UpsertArticles(ctx context.Context, arts []models.Article, retainLimit int) (int, error)
	GetArticle(ctx context.Context, id int) (*models.Article, error)
	GetArticlesForFeed(ctx context.Context, feedID int) ([]models.Article, error)
	ListArticles(ctx context.Context, filter *ArticleFilter) ([]models.Article, error)
	CountArticles(ctx context.Context, filter *ArticleFilter) (int, error)
	UnreadCount(ctx context.Context, id int, isCategory bool, freshSince time.Time) (int, error)
	MaxArticleID(ctx context.Context) (int, error)
	DeleteArticle(ctx context.Context, id int) error
	// ReconcileMarked clears the star or publish flag from cached articles
	// newer than the oldest fetched id that the server no longer reports.
	ReconcileMarked(ctx context.Context, kind models.MutationKind, fetched []int) (int, error)
	Search(ctx context.Context, query string, limit int) ([]models.Article, error)
	RemoteFiles(ctx context.Context, articleID int) ([]string, error)

	// Counters

	SetUnreadCounts(ctx context.Context, categoryCounts, feedCounts map[int]int) error
	// RecalculateCounters derives feed, category and virtual counts from the
	// cached articles in one transaction.
	RecalculateCounters(ctx context.Context, freshSince time.Time) error
	// RecalculateVirtualCounters derives only the fixed virtual categories.
	RecalculateVirtualCounters(ctx context.Context, freshSince time.Time) error

	// Eviction

	PurgeExcess(ctx context.Context, retainLimit int) (int, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	PurgeOrphanedArticles(ctx context.Context) (int, error)

	// Pending mutations

	// ApplyLocalMutations writes the article flags and the queue rows for
	// muts in one transaction.
	ApplyLocalMutations(ctx context.Context, muts []models.PendingMutation) error
	// MarkFeedRead marks every cached unread article in the scope read and
	// queues a read mutation for each. It returns the affected ids.
	MarkFeedRead(ctx context.Context, id int, isCategory bool, freshSince, now time.Time) ([]int, error)
	ListPendingMutations(ctx context.Context) ([]models.PendingMutation, error)
	DeletePendingMutations(ctx context.Context, ids []string) (int, error)

	// Refresh times

	LoadRefreshTimes(ctx context.Context) (map[string]time.Time, error)
	SaveRefreshTime(ctx context.Context, scope string, at time.Time) error
	DeleteRefreshTime(ctx context.Context, scope string) error

	// Maintenance

	Stats(ctx context.Context) (*Stats, error)
	Compact(ctx context.Context) error
}
