// ABOUTME: Persisted refresh timestamps for staleness scopes
// ABOUTME: Lets the staleness tracker survive restarts

package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// LoadRefreshTimes returns every persisted scope timestamp.
func (s *SQLiteStore) LoadRefreshTimes(ctx context.Context) (map[string]time.Time, error) {
	var rows []struct {
		Scope       string `db:"scope"`
		RefreshedAt int64  `db:"refreshed_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT scope, refreshed_at FROM refresh_times`); err != nil {
		return nil, storageErr("load refresh times", err)
	}
	times := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		times[r.Scope] = time.Unix(0, r.RefreshedAt).UTC()
	}
	return times, nil
}

// SaveRefreshTime records when scope was last refreshed.
func (s *SQLiteStore) SaveRefreshTime(ctx context.Context, scope string, at time.Time) error {
	return s.withTx(ctx, "save refresh time", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO refresh_times (scope, refreshed_at) VALUES (?, ?)
			ON CONFLICT(scope) DO UPDATE SET refreshed_at = excluded.refreshed_at
		`, scope, at.UnixNano())
		return err
	})
}

// DeleteRefreshTime forgets the timestamp of scope.
func (s *SQLiteStore) DeleteRefreshTime(ctx context.Context, scope string) error {
	return s.withTx(ctx, "delete refresh time", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM refresh_times WHERE scope = ?`, scope)
		return err
	})
}
