// ABOUTME: Tests for root command wiring and helpers
// ABOUTME: Covers logger construction, config paths, flag parsing and an offline end-to-end run

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/config"
	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/tui"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("warn", "json", &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "scope", "feeds")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("expected info to be filtered at warn level")
	}
	if !strings.Contains(out, `"scope":"feeds"`) {
		t.Errorf("expected JSON attributes, got %q", out)
	}
}

func TestNewLogger_Defaults(t *testing.T) {
	if _, err := newLogger("", "", &bytes.Buffer{}); err != nil {
		t.Errorf("expected empty level and format to default, got %v", err)
	}
}

func TestNewLogger_Invalid(t *testing.T) {
	if _, err := newLogger("loud", "text", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := newLogger("info", "xml", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNeedsCache(t *testing.T) {
	if !needsCache(listCmd) {
		t.Error("list should open the cache")
	}
	for _, c := range []*cobra.Command{setupCmd, offlineCmd, versionCmd} {
		if needsCache(c) {
			t.Errorf("%s should not open the cache", c.Name())
		}
	}
}

func TestConfigSavePath(t *testing.T) {
	old := configPath
	defer func() { configPath = old }()

	configPath = "/tmp/custom.json"
	if got := configSavePath(); got != "/tmp/custom.json" {
		t.Errorf("expected custom JSON path, got %q", got)
	}

	configPath = "/tmp/custom.hcl"
	if got := configSavePath(); got != config.GetConfigPath() {
		t.Errorf("expected HCL edits to go to %q, got %q", config.GetConfigPath(), got)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	c := &config.Config{
		UpdateWindow:  10 * time.Minute,
		RetainLimit:   100,
		PageSize:      50,
		Workers:       2,
		DownloadIcons: true,
	}
	s := settingsFromConfig(c)
	if s.UpdateWindow != 10*time.Minute || s.RetainLimit != 100 || s.PageSize != 50 || s.Workers != 2 || !s.DownloadIcons {
		t.Errorf("settings not copied: %+v", s)
	}
}

func TestParseMarkAction(t *testing.T) {
	tests := []struct {
		action string
		kind   models.MutationKind
		value  bool
	}{
		{"read", models.MutationRead, true},
		{"unread", models.MutationRead, false},
		{"star", models.MutationStar, true},
		{"unstar", models.MutationStar, false},
		{"publish", models.MutationPublish, true},
		{"unpublish", models.MutationPublish, false},
	}
	for _, tt := range tests {
		kind, value, err := parseMarkAction(tt.action)
		if err != nil {
			t.Errorf("parseMarkAction(%q): %v", tt.action, err)
			continue
		}
		if kind != tt.kind || value != tt.value {
			t.Errorf("parseMarkAction(%q) = %s/%t, expected %s/%t", tt.action, kind, value, tt.kind, tt.value)
		}
	}

	if _, _, err := parseMarkAction("note"); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestParseArticleIDs(t *testing.T) {
	ids, err := parseArticleIDs([]string{"3", "1", "3"})
	if err != nil {
		t.Fatalf("parseArticleIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 1 {
		t.Errorf("expected [3 1], got %v", ids)
	}

	if _, err := parseArticleIDs([]string{"abc"}); err == nil {
		t.Error("expected error for non-numeric id")
	}
	if _, err := parseArticleIDs([]string{"-1"}); err == nil {
		t.Error("expected error for non-positive id")
	}
}

func TestArticleLine(t *testing.T) {
	color.NoColor = true

	line := articleLine(models.Article{ID: 42, Title: "Hello", Unread: false, Starred: true})
	if !strings.Contains(line, "42") || !strings.Contains(line, "✓") || !strings.Contains(line, "★") || !strings.Contains(line, "Hello") {
		t.Errorf("unexpected line %q", line)
	}

	line = articleLine(models.Article{ID: 7, Unread: true})
	if !strings.Contains(line, "Untitled") || strings.Contains(line, "✓") {
		t.Errorf("unexpected line %q", line)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("expected 01234567, got %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
}

func TestOfflineRun(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	if err := os.WriteFile(cfgFile, []byte(`{"server_url": "http://127.0.0.1:9", "log_level": "error"}`), 0600); err != nil {
		t.Fatal(err)
	}
	db := filepath.Join(dir, "ttcache.db")

	for _, args := range [][]string{
		{"status"},
		{"categories", "--no-refresh"},
		{"list", "--no-refresh"},
		{"pending"},
	} {
		full := append([]string{"--config", cfgFile, "--db", db, "--offline"}, args...)
		rootCmd.SetArgs(full)
		if err := rootCmd.ExecuteContext(context.Background()); err != nil {
			t.Errorf("%v: %v", args, err)
		}
	}

	if _, err := os.Stat(db); err != nil {
		t.Errorf("expected database to be created: %v", err)
	}
	if store != nil || coord != nil {
		t.Error("expected cache to be closed after each command")
	}
}

func TestCategoryForFolder(t *testing.T) {
	cats := []models.Category{{ID: -1, Title: "Starred articles"}, {ID: 3, Title: "Tech"}}

	if got := categoryForFolder(cats, "tech"); got != 3 {
		t.Errorf("expected case-insensitive match 3, got %d", got)
	}
	if got := categoryForFolder(cats, "Starred articles"); got != models.Uncategorized {
		t.Errorf("expected virtual categories to be ignored, got %d", got)
	}
	if got := categoryForFolder(cats, ""); got != models.Uncategorized {
		t.Errorf("expected root feeds to be uncategorized, got %d", got)
	}
}

func TestArticleLink(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://go.dev/blog/generics", false},
		{"http://example.com/a", false},
		{"", true},
		{"javascript:alert(1)", true},
		{"file:///etc/passwd", true},
	}
	for _, tt := range tests {
		_, err := articleLink(&models.Article{ID: 1, URL: tt.url})
		if (err != nil) != tt.wantErr {
			t.Errorf("articleLink(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestApplyCredentials(t *testing.T) {
	c := &config.Config{ServerURL: "https://old.example", Username: "old", Password: "kept"}

	applyCredentials(c, tui.Credentials{ServerURL: "https://rss.example/tt-rss", Username: "admin"})
	if c.ServerURL != "https://rss.example/tt-rss" || c.Username != "admin" {
		t.Errorf("unexpected config: %+v", c)
	}
	if c.Password != "kept" {
		t.Errorf("empty password should keep the old one, got %q", c.Password)
	}

	applyCredentials(c, tui.Credentials{ServerURL: c.ServerURL, Username: "admin", Password: "new"})
	if c.Password != "new" {
		t.Errorf("expected new password, got %q", c.Password)
	}
}

func TestVerifyCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := map[string]interface{}{"seq": 0, "status": 0, "content": map[string]interface{}{"session_id": "s1", "api_level": 18}}
		if req["password"] != "secret" {
			resp["status"] = 1
			resp["content"] = map[string]string{"error": "LOGIN_ERROR"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	color.NoColor = true
	cfg := &config.Config{ServerURL: srv.URL, Username: "admin", Password: "secret", HTTPTimeout: 5 * time.Second}
	if err := verifyCredentials(context.Background(), cfg); err != nil {
		t.Errorf("expected valid credentials to pass, got %v", err)
	}

	cfg.Password = "wrong"
	if err := verifyCredentials(context.Background(), cfg); err == nil {
		t.Error("expected rejected credentials to fail")
	}

	unreachable := httptest.NewServer(http.NotFoundHandler())
	unreachable.Close()
	cfg.ServerURL = unreachable.URL
	if err := verifyCredentials(context.Background(), cfg); err != nil {
		t.Errorf("unreachable server should only warn, got %v", err)
	}
}
