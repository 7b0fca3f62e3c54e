// ABOUTME: Feed persistence for the SQLite store
// ABOUTME: Feed rows reference categories by id only, icons survive feed list refreshes

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/harper/ttcache/internal/models"
)

type feedRow struct {
	ID         int    `db:"id"`
	CategoryID int    `db:"category_id"`
	Title      string `db:"title"`
	URL        string `db:"url"`
	Unread     int    `db:"unread"`
	Icon       []byte `db:"icon"`
}

func (r feedRow) toModel() models.Feed {
	return models.Feed{
		ID:         r.ID,
		CategoryID: r.CategoryID,
		Title:      r.Title,
		URL:        r.URL,
		Unread:     r.Unread,
		Icon:       r.Icon,
	}
}

func toFeedRow(f models.Feed) feedRow {
	return feedRow{
		ID:         f.ID,
		CategoryID: f.CategoryID,
		Title:      f.Title,
		URL:        f.URL,
		Unread:     f.Unread,
		Icon:       f.Icon,
	}
}

const feedColumns = `id, category_id, title, url, unread, icon`

const upsertFeedQuery = `
	INSERT INTO feeds (id, category_id, title, url, unread, icon)
	VALUES (:id, :category_id, :title, :url, :unread, :icon)
	ON CONFLICT(id) DO UPDATE SET
		category_id = excluded.category_id,
		title = excluded.title,
		url = excluded.url,
		unread = excluded.unread,
		icon = COALESCE(excluded.icon, feeds.icon)
`

// UpsertFeeds inserts or overwrites feeds by id.
func (s *SQLiteStore) UpsertFeeds(ctx context.Context, feeds []models.Feed) error {
	if len(feeds) == 0 {
		return nil
	}
	return s.withTx(ctx, "upsert feeds", func(tx *sqlx.Tx) error {
		return upsertFeeds(ctx, tx, feeds)
	})
}

func upsertFeeds(ctx context.Context, tx *sqlx.Tx, feeds []models.Feed) error {
	for _, f := range feeds {
		if _, err := tx.NamedExecContext(ctx, upsertFeedQuery, toFeedRow(f)); err != nil {
			return fmt.Errorf("upsert feed %d: %w", f.ID, err)
		}
	}
	return nil
}

// ReplaceFeeds upserts feeds and drops the ones the server no longer lists.
func (s *SQLiteStore) ReplaceFeeds(ctx context.Context, feeds []models.Feed) error {
	return s.withTx(ctx, "replace feeds", func(tx *sqlx.Tx) error {
		if err := upsertFeeds(ctx, tx, feeds); err != nil {
			return err
		}
		ids := make([]int, len(feeds))
		for i, f := range feeds {
			ids[i] = f.ID
		}
		return deleteNotIn(ctx, tx, "feeds", "1 = 1", ids)
	})
}

// GetFeed retrieves a feed by id.
func (s *SQLiteStore) GetFeed(ctx context.Context, id int) (*models.Feed, error) {
	var row feedRow
	err := s.db.GetContext(ctx, &row, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get feed", err)
	}
	f := row.toModel()
	return &f, nil
}

// GetFeeds returns every cached feed sorted by title.
func (s *SQLiteStore) GetFeeds(ctx context.Context) ([]models.Feed, error) {
	return s.selectFeeds(ctx, `SELECT `+feedColumns+` FROM feeds ORDER BY title COLLATE NOCASE, id`)
}

// GetFeedsForCategory returns the feeds of a real category. The all-articles
// virtual category yields every feed; other virtual ids yield none.
func (s *SQLiteStore) GetFeedsForCategory(ctx context.Context, catID int) ([]models.Feed, error) {
	if catID == int(models.VirtualAll) {
		return s.GetFeeds(ctx)
	}
	if catID < 0 {
		return nil, nil
	}
	return s.selectFeeds(ctx, `SELECT `+feedColumns+` FROM feeds WHERE category_id = ? ORDER BY title COLLATE NOCASE, id`, catID)
}

func (s *SQLiteStore) selectFeeds(ctx context.Context, query string, args ...interface{}) ([]models.Feed, error) {
	var rows []feedRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr("list feeds", err)
	}
	feeds := make([]models.Feed, len(rows))
	for i, r := range rows {
		feeds[i] = r.toModel()
	}
	return feeds, nil
}

// CountFeeds counts cached feeds.
func (s *SQLiteStore) CountFeeds(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM feeds`); err != nil {
		return 0, storageErr("count feeds", err)
	}
	return n, nil
}

// DeleteFeed removes one feed. Its articles stay until orphan cleanup.
func (s *SQLiteStore) DeleteFeed(ctx context.Context, id int) error {
	return s.withTx(ctx, "delete feed", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("feed %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// DeleteFeeds removes all feeds.
func (s *SQLiteStore) DeleteFeeds(ctx context.Context) error {
	return s.withTx(ctx, "delete feeds", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM feeds`)
		return err
	})
}

// SetFeedIcon stores icon bytes for a feed.
func (s *SQLiteStore) SetFeedIcon(ctx context.Context, feedID int, icon []byte) error {
	return s.withTx(ctx, "set feed icon", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE feeds SET icon = ? WHERE id = ?`, icon, feedID)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("feed %d: %w", feedID, ErrNotFound)
		}
		return nil
	})
}

// FeedIDsWithoutIcon lists feeds that have no cached icon.
func (s *SQLiteStore) FeedIDsWithoutIcon(ctx context.Context) ([]int, error) {
	var ids []int
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM feeds WHERE icon IS NULL OR length(icon) = 0 ORDER BY id`); err != nil {
		return nil, storageErr("list feeds without icon", err)
	}
	return ids, nil
}
