// ABOUTME: Pending mutation queue for the SQLite store
// ABOUTME: Local flag changes and their queue rows commit together; one row per article and kind

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/harper/ttcache/internal/models"
)

type mutationRow struct {
	ID        string `db:"id"`
	ArticleID int    `db:"article_id"`
	Kind      string `db:"kind"`
	Value     bool   `db:"value"`
	Note      string `db:"note"`
	CreatedAt int64  `db:"created_at"`
}

func toMutationRow(m models.PendingMutation) mutationRow {
	return mutationRow{
		ID:        m.ID,
		ArticleID: m.ArticleID,
		Kind:      string(m.Kind),
		Value:     m.Value,
		Note:      m.Note,
		CreatedAt: m.CreatedAt.UnixNano(),
	}
}

func (r mutationRow) toModel() models.PendingMutation {
	return models.PendingMutation{
		ID:        r.ID,
		ArticleID: r.ArticleID,
		Kind:      models.MutationKind(r.Kind),
		Value:     r.Value,
		Note:      r.Note,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// enqueueQuery replaces any older mutation of the same kind for the article.
// The row takes the new id so a push that read the old row cannot delete it.
const enqueueQuery = `
	INSERT INTO pending_mutations (id, article_id, kind, value, note, created_at)
	VALUES (:id, :article_id, :kind, :value, :note, :created_at)
	ON CONFLICT(article_id, kind) DO UPDATE SET
		id = excluded.id,
		value = excluded.value,
		note = excluded.note,
		created_at = excluded.created_at
`

// ApplyLocalMutations updates the cached article flags and enqueues muts.
// Mutations for articles that are not cached are still queued.
func (s *SQLiteStore) ApplyLocalMutations(ctx context.Context, muts []models.PendingMutation) error {
	if len(muts) == 0 {
		return nil
	}
	for _, m := range muts {
		if m.ID == "" {
			return fmt.Errorf("apply local mutations: mutation for article %d has no id", m.ArticleID)
		}
	}

	return s.withTx(ctx, "apply local mutations", func(tx *sqlx.Tx) error {
		for _, m := range muts {
			if err := applyFlag(ctx, tx, m); err != nil {
				return err
			}
			if _, err := tx.NamedExecContext(ctx, enqueueQuery, toMutationRow(m)); err != nil {
				return fmt.Errorf("enqueue %s mutation for article %d: %w", m.Kind, m.ArticleID, err)
			}
		}
		return nil
	})
}

// applyFlag applies m to the cached article, if any, and keeps the feed's
// unread count in step.
func applyFlag(ctx context.Context, tx *sqlx.Tx, m models.PendingMutation) error {
	if !slices.Contains(models.MutationKinds, m.Kind) {
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}

	var cur struct {
		FeedID    int     `db:"feed_id"`
		Unread    bool    `db:"unread"`
		Starred   bool    `db:"starred"`
		Published bool    `db:"published"`
		Note      *string `db:"note"`
	}
	err := tx.GetContext(ctx, &cur, `SELECT feed_id, unread, starred, published, note FROM articles WHERE id = ?`, m.ArticleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load article %d: %w", m.ArticleID, err)
	}

	a := models.Article{ID: m.ArticleID, FeedID: cur.FeedID, Unread: cur.Unread, Starred: cur.Starred, Published: cur.Published, Note: cur.Note}
	m.Apply(&a)
	_, err = tx.ExecContext(ctx, `UPDATE articles SET unread = ?, starred = ?, published = ?, note = ? WHERE id = ?`,
		boolToInt(a.Unread), boolToInt(a.Starred), boolToInt(a.Published), a.Note, a.ID)
	if err != nil {
		return fmt.Errorf("update %s: %w", m.Kind, err)
	}

	switch {
	case a.Unread == cur.Unread:
		return nil
	case a.Unread:
		return adjustUnread(ctx, tx, cur.FeedID, 1)
	default:
		return adjustUnread(ctx, tx, cur.FeedID, -1)
	}
}

// MarkFeedRead marks all cached unread articles of a feed, category or
// virtual category read and queues one read mutation per article.
func (s *SQLiteStore) MarkFeedRead(ctx context.Context, id int, isCategory bool, freshSince, now time.Time) ([]int, error) {
	filter := &ArticleFilter{UnreadOnly: true, FreshSince: freshSince}
	if isCategory {
		filter.CategoryID = &id
	} else {
		filter.FeedID = &id
	}
	where, args := filterConditions(filter)

	var ids []int
	err := s.withTx(ctx, "mark feed read", func(tx *sqlx.Tx) error {
		var rows []struct {
			ID     int `db:"id"`
			FeedID int `db:"feed_id"`
		}
		if err := tx.SelectContext(ctx, &rows, `SELECT id, feed_id FROM articles`+where, args...); err != nil {
			return err
		}

		perFeed := make(map[int]int)
		ids = make([]int, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
			perFeed[r.FeedID]++

			m := models.NewPendingMutation(r.ID, models.MutationRead, true, now)
			if _, err := tx.NamedExecContext(ctx, enqueueQuery, toMutationRow(m)); err != nil {
				return fmt.Errorf("enqueue read mutation for article %d: %w", r.ID, err)
			}
		}
		if len(ids) == 0 {
			return nil
		}

		q, qargs, err := sqlx.In(`UPDATE articles SET unread = 0 WHERE id IN (?)`, ids)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), qargs...); err != nil {
			return err
		}
		for feedID, n := range perFeed {
			if err := adjustUnread(ctx, tx, feedID, -n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListPendingMutations returns the queue, oldest first.
func (s *SQLiteStore) ListPendingMutations(ctx context.Context) ([]models.PendingMutation, error) {
	var rows []mutationRow
	query := `SELECT id, article_id, kind, value, note, created_at FROM pending_mutations ORDER BY created_at, article_id, kind`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, storageErr("list pending mutations", err)
	}
	muts := make([]models.PendingMutation, len(rows))
	for i, r := range rows {
		muts[i] = r.toModel()
	}
	return muts, nil
}

// DeletePendingMutations removes queue rows by mutation id. Rows that were
// replaced by a newer mutation since they were read no longer match.
func (s *SQLiteStore) DeletePendingMutations(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int
	err := s.withTx(ctx, "delete pending mutations", func(tx *sqlx.Tx) error {
		q, args, err := sqlx.In(`DELETE FROM pending_mutations WHERE id IN (?)`, ids)
		if err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, tx.Rebind(q), args...)
		if err != nil {
			return err
		}
		n, _ := result.RowsAffected()
		deleted = int(n)
		return nil
	})
	return deleted, err
}
