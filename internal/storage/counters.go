// ABOUTME: Unread counter persistence for the SQLite store
// ABOUTME: Server counters are stored as given; local recalculation runs as one snapshot transaction

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/harper/ttcache/internal/models"
)

// SetUnreadCounts stores server-reported unread counts.
func (s *SQLiteStore) SetUnreadCounts(ctx context.Context, categoryCounts, feedCounts map[int]int) error {
	return s.withTx(ctx, "set unread counts", func(tx *sqlx.Tx) error {
		for id, n := range categoryCounts {
			if _, err := tx.ExecContext(ctx, `UPDATE categories SET unread = ? WHERE id = ?`, n, id); err != nil {
				return fmt.Errorf("update category %d: %w", id, err)
			}
		}
		for id, n := range feedCounts {
			if _, err := tx.ExecContext(ctx, `UPDATE feeds SET unread = ? WHERE id = ?`, n, id); err != nil {
				return fmt.Errorf("update feed %d: %w", id, err)
			}
		}
		return nil
	})
}

// RecalculateCounters derives every unread count from the cached articles.
func (s *SQLiteStore) RecalculateCounters(ctx context.Context, freshSince time.Time) error {
	return s.withTx(ctx, "recalculate counters", func(tx *sqlx.Tx) error {
		stmts := []string{
			`UPDATE feeds SET unread = (SELECT COUNT(*) FROM articles a WHERE a.feed_id = feeds.id AND a.unread = 1)`,
			`UPDATE categories SET unread = (SELECT COALESCE(SUM(f.unread), 0) FROM feeds f WHERE f.category_id = categories.id) WHERE id >= 0`,
			`UPDATE categories SET unread = (SELECT COUNT(*) FROM article_labels al INNER JOIN articles a ON a.id = al.article_id
				WHERE al.label_id = categories.id AND a.unread = 1) WHERE id <= ` + fmt.Sprint(models.LabelIDMax),
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return recalculateVirtual(ctx, tx, freshSince)
	})
}

// RecalculateVirtualCounters derives the fixed virtual category counts.
func (s *SQLiteStore) RecalculateVirtualCounters(ctx context.Context, freshSince time.Time) error {
	return s.withTx(ctx, "recalculate virtual counters", func(tx *sqlx.Tx) error {
		return recalculateVirtual(ctx, tx, freshSince)
	})
}

func recalculateVirtual(ctx context.Context, tx *sqlx.Tx, freshSince time.Time) error {
	for _, v := range models.VirtualCategories {
		cond, args := scopeCondition(int(v), true, freshSince)
		query := `UPDATE categories SET unread = (SELECT COUNT(*) FROM articles WHERE unread = 1`
		if cond != "" {
			query += " AND " + cond
		}
		query += `) WHERE id = ?`
		args = append(args, int(v))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("recalculate %s: %w", v.Title(), err)
		}
	}
	return nil
}

// adjustUnread shifts the cached unread counters of a feed and its category.
func adjustUnread(ctx context.Context, tx *sqlx.Tx, feedID, delta int) error {
	if delta == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE feeds SET unread = MAX(unread + ?, 0) WHERE id = ?`, delta, feedID); err != nil {
		return fmt.Errorf("adjust feed counter: %w", err)
	}
	_, err := tx.ExecContext(ctx, `UPDATE categories SET unread = MAX(unread + ?, 0)
		WHERE id = (SELECT category_id FROM feeds WHERE id = ?)`, delta, feedID)
	if err != nil {
		return fmt.Errorf("adjust category counter: %w", err)
	}
	return nil
}
