// ABOUTME: Article eviction for the SQLite store
// ABOUTME: Count-based purge keeps the newest articles and spares starred and published ones

package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// PurgeExcess deletes the oldest non-exempt articles until at most
// retainLimit of them remain. Starred and published articles neither count
// toward the limit nor get deleted.
func (s *SQLiteStore) PurgeExcess(ctx context.Context, retainLimit int) (int, error) {
	if retainLimit < 0 {
		retainLimit = 0
	}
	return s.deleteArticles(ctx, "purge excess articles", `
		DELETE FROM articles WHERE id IN (
			SELECT id FROM articles
			WHERE starred = 0 AND published = 0
			ORDER BY updated_at DESC, id DESC
			LIMIT -1 OFFSET ?
		)`, retainLimit)
}

// PurgeOlderThan deletes every article last updated before cutoff, starred
// and published ones included.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return s.deleteArticles(ctx, "purge old articles", `DELETE FROM articles WHERE updated_at < ?`, cutoff.Unix())
}

// PurgeOrphanedArticles deletes unmarked articles whose feed is no longer
// cached. Nothing is deleted while the feed list is empty.
func (s *SQLiteStore) PurgeOrphanedArticles(ctx context.Context) (int, error) {
	return s.deleteArticles(ctx, "purge orphaned articles", `
		DELETE FROM articles
		WHERE starred = 0 AND published = 0
			AND feed_id NOT IN (SELECT id FROM feeds)
			AND EXISTS (SELECT 1 FROM feeds)`)
}

func (s *SQLiteStore) deleteArticles(ctx context.Context, op, query string, args ...interface{}) (int, error) {
	var deleted int
	err := s.withTx(ctx, op, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(n)
		return nil
	})
	return deleted, err
}
