// ABOUTME: Tests for SQLite store setup, categories and feeds
// ABOUTME: Covers schema creation, replace semantics and virtual category ordering

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harper/ttcache/internal/models"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	// Verify database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestCategoriesReplaceKeepsOtherClass(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	virtual := []models.Category{
		{ID: int(models.VirtualStarred), Title: "Starred articles"},
		{ID: int(models.VirtualAll), Title: "All articles"},
		{ID: -11, Title: "later"},
	}
	if err := store.ReplaceCategories(ctx, virtual, true); err != nil {
		t.Fatalf("ReplaceCategories virtual: %v", err)
	}

	regular := []models.Category{
		{ID: 3, Title: "tech", Unread: 4},
		{ID: 0, Title: "Uncategorized"},
		{ID: 7, Title: "Art"},
	}
	if err := store.ReplaceCategories(ctx, regular, false); err != nil {
		t.Fatalf("ReplaceCategories real: %v", err)
	}

	// A second replace drops category 7 but leaves the virtual ones
	if err := store.ReplaceCategories(ctx, regular[:2], false); err != nil {
		t.Fatalf("ReplaceCategories real again: %v", err)
	}

	cats, err := store.GetCategories(ctx, true)
	if err != nil {
		t.Fatalf("GetCategories: %v", err)
	}
	wantOrder := []int{-1, -4, -11, 3, 0}
	if len(cats) != len(wantOrder) {
		t.Fatalf("got %d categories, want %d: %+v", len(cats), len(wantOrder), cats)
	}
	for i, id := range wantOrder {
		if cats[i].ID != id {
			t.Errorf("position %d: got id %d, want %d", i, cats[i].ID, id)
		}
	}

	realOnly, err := store.GetCategories(ctx, false)
	if err != nil {
		t.Fatalf("GetCategories real: %v", err)
	}
	if len(realOnly) != 2 {
		t.Errorf("expected 2 real categories, got %d", len(realOnly))
	}

	n, err := store.CountCategories(ctx, true)
	if err != nil || n != 3 {
		t.Errorf("CountCategories(virtual) = %d, %v; want 3", n, err)
	}
}

func TestDeleteCategoriesDoesNotCascade(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.UpsertCategories(ctx, []models.Category{{ID: 1, Title: "News"}, {ID: -1, Title: "Starred"}}); err != nil {
		t.Fatalf("UpsertCategories: %v", err)
	}
	if err := store.UpsertFeeds(ctx, []models.Feed{{ID: 10, CategoryID: 1, Title: "Daily"}}); err != nil {
		t.Fatalf("UpsertFeeds: %v", err)
	}

	if err := store.DeleteCategories(ctx, false); err != nil {
		t.Fatalf("DeleteCategories: %v", err)
	}

	if _, err := store.GetCategory(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for deleted category, got %v", err)
	}
	if _, err := store.GetCategory(ctx, -1); err != nil {
		t.Errorf("virtual category should survive: %v", err)
	}
	if _, err := store.GetFeed(ctx, 10); err != nil {
		t.Errorf("feed should survive category deletion: %v", err)
	}

	if err := store.DeleteCategories(ctx, true); err != nil {
		t.Fatalf("DeleteCategories(includeVirtual): %v", err)
	}
	n, _ := store.CountCategories(ctx, true)
	if n != 0 {
		t.Errorf("expected no virtual categories, got %d", n)
	}
}

func TestFeedsReplaceKeepsIcons(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	feeds := []models.Feed{
		{ID: 1, CategoryID: 2, Title: "Beta", URL: "https://b.example/feed"},
		{ID: 2, CategoryID: 2, Title: "alpha", URL: "https://a.example/feed"},
		{ID: 3, CategoryID: 5, Title: "Gamma", URL: "https://c.example/feed"},
	}
	if err := store.ReplaceFeeds(ctx, feeds); err != nil {
		t.Fatalf("ReplaceFeeds: %v", err)
	}
	if err := store.SetFeedIcon(ctx, 1, []byte{1, 2, 3}); err != nil {
		t.Fatalf("SetFeedIcon: %v", err)
	}

	missing, err := store.FeedIDsWithoutIcon(ctx)
	if err != nil {
		t.Fatalf("FeedIDsWithoutIcon: %v", err)
	}
	if len(missing) != 2 || missing[0] != 2 || missing[1] != 3 {
		t.Errorf("FeedIDsWithoutIcon = %v, want [2 3]", missing)
	}

	// Server renames feed 1 and drops feed 3
	feeds[0].Title = "Beta Weekly"
	if err := store.ReplaceFeeds(ctx, feeds[:2]); err != nil {
		t.Fatalf("ReplaceFeeds again: %v", err)
	}

	got, err := store.GetFeed(ctx, 1)
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}
	if got.Title != "Beta Weekly" {
		t.Errorf("title = %q, want %q", got.Title, "Beta Weekly")
	}
	if !got.HasIcon() {
		t.Error("icon should survive feed list refresh")
	}
	if _, err := store.GetFeed(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("feed 3 should be gone, got %v", err)
	}

	inCat, err := store.GetFeedsForCategory(ctx, 2)
	if err != nil {
		t.Fatalf("GetFeedsForCategory: %v", err)
	}
	if len(inCat) != 2 || inCat[0].Title != "alpha" {
		t.Errorf("expected feeds sorted case-insensitively, got %+v", inCat)
	}

	all, _ := store.GetFeedsForCategory(ctx, int(models.VirtualAll))
	if len(all) != 2 {
		t.Errorf("all-articles category should list every feed, got %d", len(all))
	}
	starred, _ := store.GetFeedsForCategory(ctx, int(models.VirtualStarred))
	if len(starred) != 0 {
		t.Errorf("starred category has no feeds, got %d", len(starred))
	}
}

func TestDeleteFeed(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.DeleteFeed(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.UpsertFeeds(ctx, []models.Feed{{ID: 1}, {ID: 2}}); err != nil {
		t.Fatalf("UpsertFeeds: %v", err)
	}
	if err := store.DeleteFeed(ctx, 1); err != nil {
		t.Fatalf("DeleteFeed: %v", err)
	}
	if n, _ := store.CountFeeds(ctx); n != 1 {
		t.Errorf("expected 1 feed left, got %d", n)
	}
	if err := store.DeleteFeeds(ctx); err != nil {
		t.Fatalf("DeleteFeeds: %v", err)
	}
	if n, _ := store.CountFeeds(ctx); n != 0 {
		t.Errorf("expected no feeds, got %d", n)
	}
}

func TestRefreshTimesPersist(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := store.SaveRefreshTime(ctx, "feeds", at); err != nil {
		t.Fatalf("SaveRefreshTime: %v", err)
	}
	if err := store.SaveRefreshTime(ctx, "articles:7", at.Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshTime: %v", err)
	}
	if err := store.DeleteRefreshTime(ctx, "articles:7"); err != nil {
		t.Fatalf("DeleteRefreshTime: %v", err)
	}
	store.Close()

	store, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	times, err := store.LoadRefreshTimes(ctx)
	if err != nil {
		t.Fatalf("LoadRefreshTimes: %v", err)
	}
	if len(times) != 1 || !times["feeds"].Equal(at) {
		t.Errorf("LoadRefreshTimes = %v", times)
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	content := "<p><img src=\"https://img.example/a.png\"></p>"
	arts := []models.Article{
		{ID: 1, FeedID: 1, Unread: true, Content: &content, Updated: time.Unix(100, 0)},
		{ID: 2, FeedID: 1, Starred: true, Updated: time.Unix(200, 0), Attachments: []string{"https://cdn.example/ep.mp3"}},
	}
	if _, err := store.UpsertArticles(ctx, arts, 0); err != nil {
		t.Fatalf("UpsertArticles: %v", err)
	}
	if err := store.ApplyLocalMutations(ctx, []models.PendingMutation{models.NewPendingMutation(2, models.MutationPublish, true, time.Now())}); err != nil {
		t.Fatalf("ApplyLocalMutations: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{Articles: 2, Unread: 1, Starred: 1, Published: 1, WithContent: 1, PendingMutations: 1, RemoteFiles: 2}
	if *stats != want {
		t.Errorf("Stats = %+v, want %+v", *stats, want)
	}

	if err := store.Compact(ctx); err != nil {
		t.Errorf("Compact: %v", err)
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	return store
}
