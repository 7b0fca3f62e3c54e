// ABOUTME: Category persistence for the SQLite store
// ABOUTME: Real and virtual categories share one table and are told apart by id sign

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/harper/ttcache/internal/models"
)

const upsertCategoryQuery = `
	INSERT INTO categories (id, title, unread) VALUES (:id, :title, :unread)
	ON CONFLICT(id) DO UPDATE SET title = excluded.title, unread = excluded.unread
`

// categoryOrder puts the virtual categories first (-1, -2, ... then labels)
// and real ones after them by title.
const categoryOrder = ` ORDER BY (id >= 0), CASE WHEN id < 0 THEN -id ELSE 0 END, title COLLATE NOCASE`

// UpsertCategories inserts or overwrites cats by id.
func (s *SQLiteStore) UpsertCategories(ctx context.Context, cats []models.Category) error {
	if len(cats) == 0 {
		return nil
	}
	return s.withTx(ctx, "upsert categories", func(tx *sqlx.Tx) error {
		return upsertCategories(ctx, tx, cats)
	})
}

func upsertCategories(ctx context.Context, tx *sqlx.Tx, cats []models.Category) error {
	for _, c := range cats {
		if _, err := tx.NamedExecContext(ctx, upsertCategoryQuery, c); err != nil {
			return fmt.Errorf("upsert category %d: %w", c.ID, err)
		}
	}
	return nil
}

// ReplaceCategories upserts cats and removes the rest of their class.
func (s *SQLiteStore) ReplaceCategories(ctx context.Context, cats []models.Category, virtual bool) error {
	class := "id >= 0"
	if virtual {
		class = "id < 0"
	}

	return s.withTx(ctx, "replace categories", func(tx *sqlx.Tx) error {
		if err := upsertCategories(ctx, tx, cats); err != nil {
			return err
		}
		ids := make([]int, len(cats))
		for i, c := range cats {
			ids[i] = c.ID
		}
		return deleteNotIn(ctx, tx, "categories", class, ids)
	})
}

// deleteNotIn deletes rows of table matching cond whose id is not in keep.
func deleteNotIn(ctx context.Context, tx *sqlx.Tx, table, cond string, keep []int) error {
	if len(keep) == 0 {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, cond))
		return err
	}
	query, args, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE %s AND id NOT IN (?)", table, cond), keep)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
	return err
}

// GetCategory retrieves a category by id.
func (s *SQLiteStore) GetCategory(ctx context.Context, id int) (*models.Category, error) {
	var c models.Category
	err := s.db.GetContext(ctx, &c, `SELECT id, title, unread FROM categories WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get category", err)
	}
	return &c, nil
}

// GetCategories returns the cached categories, virtual ones first.
func (s *SQLiteStore) GetCategories(ctx context.Context, includeVirtual bool) ([]models.Category, error) {
	query := `SELECT id, title, unread FROM categories`
	if !includeVirtual {
		query += ` WHERE id >= 0`
	}
	query += categoryOrder

	var cats []models.Category
	if err := s.db.SelectContext(ctx, &cats, query); err != nil {
		return nil, storageErr("list categories", err)
	}
	return cats, nil
}

// CountCategories counts real or virtual categories.
func (s *SQLiteStore) CountCategories(ctx context.Context, virtual bool) (int, error) {
	query := `SELECT COUNT(*) FROM categories WHERE id >= 0`
	if virtual {
		query = `SELECT COUNT(*) FROM categories WHERE id < 0`
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query); err != nil {
		return 0, storageErr("count categories", err)
	}
	return n, nil
}

// DeleteCategories removes the real categories, and the virtual ones too
// when includeVirtual is set. Feeds bound to them are left alone.
func (s *SQLiteStore) DeleteCategories(ctx context.Context, includeVirtual bool) error {
	query := `DELETE FROM categories WHERE id >= 0`
	if includeVirtual {
		query = `DELETE FROM categories`
	}
	return s.withTx(ctx, "delete categories", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query)
		return err
	})
}
