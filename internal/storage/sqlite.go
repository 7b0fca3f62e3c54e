// ABOUTME: SQLite storage implementation using modernc.org/sqlite (pure Go) through sqlx
// ABOUTME: Serializes writes through one lane while WAL lets readers see committed snapshots

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db *sqlx.DB

	// mu is the single writer lane. Readers never take it.
	mu sync.Mutex
}

// NewSQLiteStore creates a new SQLite storage instance.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	// WAL keeps readers off the writer's path. Write transactions begin
	// IMMEDIATE so another process holding the lock makes them wait for
	// busy_timeout instead of failing on upgrade.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_txlock=immediate"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			unread INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS feeds (
			id INTEGER PRIMARY KEY,
			category_id INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			unread INTEGER NOT NULL DEFAULT 0,
			icon BLOB
		);

		CREATE INDEX IF NOT EXISTS idx_feeds_category_id ON feeds(category_id);

		CREATE TABLE IF NOT EXISTS articles (
			id INTEGER PRIMARY KEY,
			feed_id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			unread INTEGER NOT NULL DEFAULT 1,
			starred INTEGER NOT NULL DEFAULT 0,
			published INTEGER NOT NULL DEFAULT 0,
			content TEXT,
			updated_at INTEGER NOT NULL DEFAULT 0,
			url TEXT NOT NULL DEFAULT '',
			comment_url TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			attachments TEXT,
			note TEXT,
			score INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_articles_feed_id ON articles(feed_id);
		CREATE INDEX IF NOT EXISTS idx_articles_updated_at ON articles(updated_at);
		CREATE INDEX IF NOT EXISTS idx_articles_unread ON articles(unread);

		CREATE TABLE IF NOT EXISTS labels (
			id INTEGER PRIMARY KEY,
			caption TEXT NOT NULL DEFAULT '',
			fg_color TEXT NOT NULL DEFAULT '',
			bg_color TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS article_labels (
			article_id INTEGER NOT NULL,
			label_id INTEGER NOT NULL,
			PRIMARY KEY (article_id, label_id)
		);

		CREATE INDEX IF NOT EXISTS idx_article_labels_label_id ON article_labels(label_id);

		CREATE TABLE IF NOT EXISTS remote_files (
			article_id INTEGER NOT NULL,
			url TEXT NOT NULL,
			PRIMARY KEY (article_id, url)
		);

		CREATE TABLE IF NOT EXISTS pending_mutations (
			id TEXT UNIQUE NOT NULL,
			article_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			value INTEGER NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			PRIMARY KEY (article_id, kind)
		);

		CREATE TABLE IF NOT EXISTS refresh_times (
			scope TEXT PRIMARY KEY,
			refreshed_at INTEGER NOT NULL
		);

		-- FTS5 for offline search
		CREATE VIRTUAL TABLE IF NOT EXISTS articles_fts USING fts5(
			title,
			content,
			content=articles,
			content_rowid=id
		);

		-- Triggers to keep FTS and dependent rows in sync
		CREATE TRIGGER IF NOT EXISTS articles_ai AFTER INSERT ON articles BEGIN
			INSERT INTO articles_fts(rowid, title, content)
			VALUES (new.id, new.title, new.content);
		END;

		CREATE TRIGGER IF NOT EXISTS articles_ad AFTER DELETE ON articles BEGIN
			INSERT INTO articles_fts(articles_fts, rowid, title, content)
			VALUES ('delete', old.id, old.title, old.content);
			DELETE FROM article_labels WHERE article_id = old.id;
			DELETE FROM remote_files WHERE article_id = old.id;
		END;

		CREATE TRIGGER IF NOT EXISTS articles_au AFTER UPDATE OF title, content ON articles BEGIN
			INSERT INTO articles_fts(articles_fts, rowid, title, content)
			VALUES ('delete', old.id, old.title, old.content);
			INSERT INTO articles_fts(rowid, title, content)
			VALUES (new.id, new.title, new.content);
		END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a write transaction on the writer lane. Any error
// rolls the whole transaction back.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return storageErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(op, err)
	}
	return nil
}

// readTx runs fn inside a read transaction so multi-query reads observe one
// committed snapshot. It does not take the writer lane, and a read-only
// transaction begins deferred despite the DSN's lock mode.
func (s *SQLiteStore) readTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return storageErr(op, err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return storageErr(op, err)
	}
	return nil
}

// Maintenance

// Stats counts cached rows.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM categories WHERE id >= 0) AS categories,
			(SELECT COUNT(*) FROM feeds) AS feeds,
			(SELECT COUNT(*) FROM articles) AS articles,
			(SELECT COUNT(*) FROM articles WHERE unread = 1) AS unread,
			(SELECT COUNT(*) FROM articles WHERE starred = 1) AS starred,
			(SELECT COUNT(*) FROM articles WHERE published = 1) AS published,
			(SELECT COUNT(*) FROM articles WHERE content IS NOT NULL) AS with_content,
			(SELECT COUNT(*) FROM pending_mutations) AS pending,
			(SELECT COUNT(*) FROM remote_files) AS remote_files
	`
	var stats Stats
	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		return nil, storageErr("stats", err)
	}
	return &stats, nil
}

// Compact performs database maintenance (VACUUM).
func (s *SQLiteStore) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return storageErr("vacuum", err)
	}
	return nil
}

// Helper functions

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
