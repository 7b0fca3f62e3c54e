// ABOUTME: Article persistence for the SQLite store: partial-merge upserts and scoped listing
// ABOUTME: Nullable columns are only overwritten by reported values so headline refreshes keep content

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/harper/ttcache/internal/content"
	"github.com/harper/ttcache/internal/models"
)

type articleRow struct {
	ID          int            `db:"id"`
	FeedID      int            `db:"feed_id"`
	Title       string         `db:"title"`
	Unread      bool           `db:"unread"`
	Starred     bool           `db:"starred"`
	Published   bool           `db:"published"`
	Content     sql.NullString `db:"content"`
	UpdatedAt   int64          `db:"updated_at"`
	URL         string         `db:"url"`
	CommentURL  string         `db:"comment_url"`
	Author      string         `db:"author"`
	Attachments sql.NullString `db:"attachments"`
	Note        sql.NullString `db:"note"`
	Score       int            `db:"score"`
}

const articleColumns = `id, feed_id, title, unread, starred, published, content, updated_at, url, comment_url, author, attachments, note, score`

func toArticleRow(a models.Article) (articleRow, error) {
	row := articleRow{
		ID:         a.ID,
		FeedID:     a.FeedID,
		Title:      a.Title,
		Unread:     a.Unread,
		Starred:    a.Starred,
		Published:  a.Published,
		UpdatedAt:  a.Updated.Unix(),
		URL:        a.URL,
		CommentURL: a.CommentURL,
		Author:     a.Author,
		Score:      a.Score,
	}
	if a.Content != nil {
		row.Content = sql.NullString{String: *a.Content, Valid: true}
	}
	if a.Note != nil {
		row.Note = sql.NullString{String: *a.Note, Valid: true}
	}
	if a.Attachments != nil {
		data, err := json.Marshal(a.Attachments)
		if err != nil {
			return row, fmt.Errorf("encode attachments: %w", err)
		}
		row.Attachments = sql.NullString{String: string(data), Valid: true}
	}
	return row, nil
}

func (r articleRow) toModel() (models.Article, error) {
	a := models.Article{
		ID:         r.ID,
		FeedID:     r.FeedID,
		Title:      r.Title,
		Unread:     r.Unread,
		Starred:    r.Starred,
		Published:  r.Published,
		Updated:    time.Unix(r.UpdatedAt, 0).UTC(),
		URL:        r.URL,
		CommentURL: r.CommentURL,
		Author:     r.Author,
		Score:      r.Score,
	}
	if r.Content.Valid {
		c := r.Content.String
		a.Content = &c
	}
	if r.Note.Valid {
		n := r.Note.String
		a.Note = &n
	}
	if r.Attachments.Valid {
		if err := json.Unmarshal([]byte(r.Attachments.String), &a.Attachments); err != nil {
			return a, fmt.Errorf("decode attachments of article %d: %w", r.ID, err)
		}
	}
	return a, nil
}

const upsertArticleQuery = `
	INSERT INTO articles (` + articleColumns + `)
	VALUES (:id, :feed_id, :title, :unread, :starred, :published, :content, :updated_at, :url, :comment_url, :author, :attachments, :note, :score)
	ON CONFLICT(id) DO UPDATE SET
		feed_id = excluded.feed_id,
		title = excluded.title,
		unread = excluded.unread,
		starred = excluded.starred,
		published = excluded.published,
		content = COALESCE(excluded.content, articles.content),
		updated_at = excluded.updated_at,
		url = excluded.url,
		comment_url = excluded.comment_url,
		author = excluded.author,
		attachments = COALESCE(excluded.attachments, articles.attachments),
		note = COALESCE(excluded.note, articles.note),
		score = excluded.score
`

// overlayPendingQueries re-apply queued local changes over rows that were
// just overwritten with server state, so a refresh racing an unpushed
// mutation cannot revert it.
var overlayPendingQueries = []string{
	`UPDATE articles SET unread = 1 - (SELECT p.value FROM pending_mutations p WHERE p.article_id = articles.id AND p.kind = 'read')
		WHERE id IN (SELECT article_id FROM pending_mutations WHERE kind = 'read')`,
	`UPDATE articles SET starred = (SELECT p.value FROM pending_mutations p WHERE p.article_id = articles.id AND p.kind = 'star')
		WHERE id IN (SELECT article_id FROM pending_mutations WHERE kind = 'star')`,
	`UPDATE articles SET published = (SELECT p.value FROM pending_mutations p WHERE p.article_id = articles.id AND p.kind = 'publish')
		WHERE id IN (SELECT article_id FROM pending_mutations WHERE kind = 'publish')`,
	`UPDATE articles SET note = (SELECT p.note FROM pending_mutations p WHERE p.article_id = articles.id AND p.kind = 'note')
		WHERE id IN (SELECT article_id FROM pending_mutations WHERE kind = 'note')`,
}

// UpsertArticles merges arts into the cache. The merge commits as a whole
// or not at all; eviction runs afterwards in its own transaction.
func (s *SQLiteStore) UpsertArticles(ctx context.Context, arts []models.Article, retainLimit int) (int, error) {
	if len(arts) == 0 {
		return 0, nil
	}

	rows := make([]articleRow, len(arts))
	for i, a := range arts {
		row, err := toArticleRow(a)
		if err != nil {
			return 0, storageErr("upsert articles", err)
		}
		rows[i] = row
	}

	err := s.withTx(ctx, "upsert articles", func(tx *sqlx.Tx) error {
		for i, row := range rows {
			if _, err := tx.NamedExecContext(ctx, upsertArticleQuery, row); err != nil {
				return fmt.Errorf("upsert article %d: %w", row.ID, err)
			}
			if err := replaceLabels(ctx, tx, arts[i]); err != nil {
				return err
			}
			if err := recordRemoteFiles(ctx, tx, arts[i]); err != nil {
				return err
			}
		}
		for _, q := range overlayPendingQueries {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("apply pending mutations: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if retainLimit <= 0 {
		return 0, nil
	}
	return s.PurgeExcess(ctx, retainLimit)
}

// replaceLabels swaps the label set of a when the server reported one.
func replaceLabels(ctx context.Context, tx *sqlx.Tx, a models.Article) error {
	if a.Labels == nil {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM article_labels WHERE article_id = ?`, a.ID); err != nil {
		return fmt.Errorf("clear labels of article %d: %w", a.ID, err)
	}
	for _, l := range a.Labels {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO labels (id, caption, fg_color, bg_color) VALUES (:id, :caption, :fg_color, :bg_color)
			ON CONFLICT(id) DO UPDATE SET caption = excluded.caption, fg_color = excluded.fg_color, bg_color = excluded.bg_color
		`, labelRow(l))
		if err != nil {
			return fmt.Errorf("upsert label %d: %w", l.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO article_labels (article_id, label_id) VALUES (?, ?)`, a.ID, l.ID); err != nil {
			return fmt.Errorf("link label %d: %w", l.ID, err)
		}
	}
	return nil
}

type labelDBRow struct {
	ArticleID int    `db:"article_id"`
	ID        int    `db:"id"`
	Caption   string `db:"caption"`
	FgColor   string `db:"fg_color"`
	BgColor   string `db:"bg_color"`
}

func labelRow(l models.Label) labelDBRow {
	return labelDBRow{ID: l.ID, Caption: l.Caption, FgColor: l.FgColor, BgColor: l.BgColor}
}

// recordRemoteFiles indexes the attachment and inline media URLs of a.
func recordRemoteFiles(ctx context.Context, tx *sqlx.Tx, a models.Article) error {
	urls := append([]string{}, a.Attachments...)
	if a.Content != nil {
		urls = append(urls, content.MediaURLs(*a.Content, a.URL)...)
	}
	for _, u := range urls {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO remote_files (article_id, url) VALUES (?, ?)`, a.ID, u); err != nil {
			return fmt.Errorf("record remote file: %w", err)
		}
	}
	return nil
}

// GetArticle retrieves an article by id.
func (s *SQLiteStore) GetArticle(ctx context.Context, id int) (*models.Article, error) {
	var arts []models.Article
	err := s.readTx(ctx, "get article", func(tx *sqlx.Tx) error {
		var err error
		arts, err = selectArticles(ctx, tx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(arts) == 0 {
		return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return &arts[0], nil
}

// GetArticlesForFeed returns every cached article of a feed or virtual feed.
func (s *SQLiteStore) GetArticlesForFeed(ctx context.Context, feedID int) ([]models.Article, error) {
	return s.ListArticles(ctx, &ArticleFilter{FeedID: &feedID})
}

// ListArticles returns cached articles matching filter, newest first.
func (s *SQLiteStore) ListArticles(ctx context.Context, filter *ArticleFilter) ([]models.Article, error) {
	where, args := filterConditions(filter)
	query := `SELECT ` + articleColumns + ` FROM articles` + where + ` ORDER BY updated_at DESC, id DESC`

	if filter != nil {
		if filter.Limit > 0 {
			query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		}
		if filter.Offset > 0 {
			if filter.Limit <= 0 {
				query += " LIMIT -1"
			}
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	var arts []models.Article
	err := s.readTx(ctx, "list articles", func(tx *sqlx.Tx) error {
		var err error
		arts, err = selectArticles(ctx, tx, query, args...)
		return err
	})
	return arts, err
}

// CountArticles counts cached articles matching filter (all when nil).
func (s *SQLiteStore) CountArticles(ctx context.Context, filter *ArticleFilter) (int, error) {
	where, args := filterConditions(filter)
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM articles`+where, args...); err != nil {
		return 0, storageErr("count articles", err)
	}
	return n, nil
}

// UnreadCount counts cached unread articles of a feed or category.
func (s *SQLiteStore) UnreadCount(ctx context.Context, id int, isCategory bool, freshSince time.Time) (int, error) {
	filter := &ArticleFilter{UnreadOnly: true, FreshSince: freshSince}
	if isCategory {
		filter.CategoryID = &id
	} else {
		filter.FeedID = &id
	}
	return s.CountArticles(ctx, filter)
}

// MaxArticleID returns the highest cached article id, or 0.
func (s *SQLiteStore) MaxArticleID(ctx context.Context) (int, error) {
	var id int
	if err := s.db.GetContext(ctx, &id, `SELECT COALESCE(MAX(id), 0) FROM articles`); err != nil {
		return 0, storageErr("max article id", err)
	}
	return id, nil
}

// DeleteArticle removes one article together with its labels and file index.
func (s *SQLiteStore) DeleteArticle(ctx context.Context, id int) error {
	return s.withTx(ctx, "delete article", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("article %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// ReconcileMarked clears a star or publish flag the server dropped. Only ids
// above the smallest fetched id are touched, since older ones may simply not
// have been part of the fetched page; an empty listing touches nothing.
// Articles with a queued change for the same flag are left alone.
func (s *SQLiteStore) ReconcileMarked(ctx context.Context, kind models.MutationKind, fetched []int) (int, error) {
	var column string
	switch kind {
	case models.MutationStar:
		column = "starred"
	case models.MutationPublish:
		column = "published"
	default:
		return 0, fmt.Errorf("reconcile marked: unsupported kind %q", kind)
	}

	if len(fetched) == 0 {
		return 0, nil
	}
	minID := slices.Min(fetched)

	var cleared int
	err := s.withTx(ctx, "reconcile marked", func(tx *sqlx.Tx) error {
		query := fmt.Sprintf(`UPDATE articles SET %s = 0 WHERE %s = 1 AND id > ?
			AND id NOT IN (SELECT article_id FROM pending_mutations WHERE kind = ?)
			AND id NOT IN (?)`, column, column)
		q, qargs, err := sqlx.In(query, minID, string(kind), fetched)
		if err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, tx.Rebind(q), qargs...)
		if err != nil {
			return err
		}
		n, _ := result.RowsAffected()
		cleared = int(n)
		return nil
	})
	return cleared, err
}

// Search performs full-text search on cached titles and content.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]models.Article, error) {
	sqlQuery := `
		SELECT a.id, a.feed_id, a.title, a.unread, a.starred, a.published, a.content, a.updated_at,
			a.url, a.comment_url, a.author, a.attachments, a.note, a.score
		FROM articles a
		INNER JOIN articles_fts fts ON a.id = fts.rowid
		WHERE articles_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`

	var arts []models.Article
	err := s.readTx(ctx, "search articles", func(tx *sqlx.Tx) error {
		var err error
		arts, err = selectArticles(ctx, tx, sqlQuery, query, limit)
		return err
	})
	return arts, err
}

// RemoteFiles lists the file URLs indexed for an article.
func (s *SQLiteStore) RemoteFiles(ctx context.Context, articleID int) ([]string, error) {
	var urls []string
	if err := s.db.SelectContext(ctx, &urls, `SELECT url FROM remote_files WHERE article_id = ? ORDER BY url`, articleID); err != nil {
		return nil, storageErr("list remote files", err)
	}
	return urls, nil
}

// selectArticles runs query and attaches labels to the resulting articles.
func selectArticles(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) ([]models.Article, error) {
	var rows []articleRow
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	arts := make([]models.Article, len(rows))
	index := make(map[int]int, len(rows))
	ids := make([]int, len(rows))
	for i, r := range rows {
		a, err := r.toModel()
		if err != nil {
			return nil, err
		}
		arts[i] = a
		index[a.ID] = i
		ids[i] = a.ID
	}

	q, qargs, err := sqlx.In(`
		SELECT al.article_id, l.id, l.caption, l.fg_color, l.bg_color
		FROM article_labels al INNER JOIN labels l ON l.id = al.label_id
		WHERE al.article_id IN (?) ORDER BY l.caption`, ids)
	if err != nil {
		return nil, err
	}
	var labels []labelDBRow
	if err := tx.SelectContext(ctx, &labels, tx.Rebind(q), qargs...); err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	for _, l := range labels {
		i := index[l.ArticleID]
		arts[i].Labels = append(arts[i].Labels, models.Label{ID: l.ID, Caption: l.Caption, FgColor: l.FgColor, BgColor: l.BgColor})
	}
	return arts, nil
}

// scopeCondition translates a feed or category id, virtual ids included,
// into a WHERE fragment.
func scopeCondition(id int, isCategory bool, freshSince time.Time) (string, []interface{}) {
	if v, ok := models.AsVirtual(id); ok {
		switch v {
		case models.VirtualStarred:
			return "starred = 1", nil
		case models.VirtualPublished:
			return "published = 1", nil
		case models.VirtualFresh:
			if freshSince.IsZero() {
				freshSince = time.Now().Add(-24 * time.Hour)
			}
			return "updated_at > ?", []interface{}{freshSince.Unix()}
		case models.VirtualAll:
			return "", nil
		}
	}
	if models.IsLabel(id) {
		return "id IN (SELECT article_id FROM article_labels WHERE label_id = ?)", []interface{}{id}
	}
	if isCategory {
		return "feed_id IN (SELECT id FROM feeds WHERE category_id = ?)", []interface{}{id}
	}
	return "feed_id = ?", []interface{}{id}
}

func filterConditions(filter *ArticleFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	var conditions []string
	var args []interface{}

	// FeedID takes precedence over CategoryID
	if filter.FeedID != nil {
		cond, a := scopeCondition(*filter.FeedID, false, filter.FreshSince)
		if cond != "" {
			conditions = append(conditions, cond)
			args = append(args, a...)
		}
	} else if filter.CategoryID != nil {
		cond, a := scopeCondition(*filter.CategoryID, true, filter.FreshSince)
		if cond != "" {
			conditions = append(conditions, cond)
			args = append(args, a...)
		}
	}

	if filter.UnreadOnly {
		conditions = append(conditions, "unread = 1")
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, filter.Since.Unix())
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
