// ABOUTME: MCP tool definitions and handlers for categories, feeds and articles
// ABOUTME: Reads come from the local cache; flag changes are queued and pushed in the background

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"

	"github.com/harper/ttcache/internal/content"
	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/storage"
	"github.com/harper/ttcache/internal/timeutil"
)

// Type definitions for input/output structures

type ListCategoriesInput struct {
	IncludeVirtual *bool `json:"include_virtual,omitempty"`
	Refresh        *bool `json:"refresh,omitempty"`
}

type ListCategoriesOutput struct {
	Categories []models.Category `json:"categories"`
	Count      int               `json:"count"`
	Warning    string            `json:"warning,omitempty"`
}

type ListFeedsInput struct {
	CategoryID *int  `json:"category_id,omitempty"`
	Refresh    *bool `json:"refresh,omitempty"`
}

type FeedOutput struct {
	ID         int    `json:"id"`
	CategoryID int    `json:"category_id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Unread     int    `json:"unread"`
}

type ListFeedsOutput struct {
	Feeds   []FeedOutput `json:"feeds"`
	Count   int          `json:"count"`
	Warning string       `json:"warning,omitempty"`
}

type ListArticlesInput struct {
	FeedID     *int    `json:"feed_id,omitempty"`
	CategoryID *int    `json:"category_id,omitempty"`
	UnreadOnly *bool   `json:"unread_only,omitempty"`
	Since      *string `json:"since,omitempty"`
	Limit      *int    `json:"limit,omitempty"`
	Offset     *int    `json:"offset,omitempty"`
	Refresh    *bool   `json:"refresh,omitempty"`
}

type ArticleOutput struct {
	ID        int       `json:"id"`
	FeedID    int       `json:"feed_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Author    string    `json:"author,omitempty"`
	Updated   time.Time `json:"updated"`
	Unread    bool      `json:"unread"`
	Starred   bool      `json:"starred"`
	Published bool      `json:"published"`
	Labels    []string  `json:"labels,omitempty"`
	Note      string    `json:"note,omitempty"`
}

type ListArticlesOutput struct {
	Articles []ArticleOutput `json:"articles"`
	Count    int             `json:"count"`
	Filters  map[string]any  `json:"filters"`
	Warning  string          `json:"warning,omitempty"`
}

type GetArticleInput struct {
	ArticleID int `json:"article_id"`
}

type GetArticleOutput struct {
	ArticleOutput
	FeedTitle   string   `json:"feed_title,omitempty"`
	Content     *string  `json:"content,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	Warning     string   `json:"warning,omitempty"`
}

type SearchInput struct {
	Query string `json:"query"`
	Limit *int   `json:"limit,omitempty"`
}

type SetFlagInput struct {
	ArticleIDs []int  `json:"article_ids"`
	Flag       string `json:"flag"`
	Value      bool   `json:"value"`
}

type SetFlagOutput struct {
	Updated []int  `json:"updated"`
	Flag    string `json:"flag"`
	Value   bool   `json:"value"`
	Pending int    `json:"pending"`
	Message string `json:"message"`
}

type SetNoteInput struct {
	ArticleID int    `json:"article_id"`
	Note      string `json:"note"`
}

type MarkFeedReadInput struct {
	ID         int   `json:"id"`
	IsCategory *bool `json:"is_category,omitempty"`
}

type MarkFeedReadOutput struct {
	Count   int    `json:"count"`
	Message string `json:"message"`
}

type SyncInput struct {
	Force *bool `json:"force,omitempty"`
}

type SyncOutput struct {
	Pushed  int    `json:"pushed"`
	Dropped int    `json:"dropped"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

// Tool registration

func (s *Server) registerTools() {
	s.registerListCategoriesTool()
	s.registerListFeedsTool()
	s.registerListArticlesTool()
	s.registerGetArticleTool()
	s.registerSearchTool()
	s.registerSetFlagTool()
	s.registerSetNoteTool()
	s.registerMarkFeedReadTool()
	s.registerSyncTool()
	s.registerStatusTool()
}

func (s *Server) registerListCategoriesTool() {
	tool := mcp.Tool{
		Name:        "list_categories",
		Description: "List cached categories with unread counts. Set include_virtual to also get the special categories (starred -1, published -2, fresh -3, all -4) and labels (ids below -10). Set refresh=true to update from the server first when the cache is stale; offline, the cached list is returned with a warning.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"include_virtual": map[string]interface{}{
					"type":        "boolean",
					"description": "Include virtual categories and labels. Default: false",
				},
				"refresh": map[string]interface{}{
					"type":        "boolean",
					"description": "Refresh stale data from the server before listing. Default: false",
				},
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListCategories)
}

func (s *Server) registerListFeedsTool() {
	tool := mcp.Tool{
		Name:        "list_feeds",
		Description: "List cached feeds, optionally limited to one category id. Returns id, title, URL and unread count for each feed.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"category_id": map[string]interface{}{
					"type":        "integer",
					"description": "Only feeds of this category. Example: 3",
				},
				"refresh": map[string]interface{}{
					"type":        "boolean",
					"description": "Refresh stale data from the server before listing. Default: false",
				},
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListFeeds)
}

func (s *Server) registerListArticlesTool() {
	tool := mcp.Tool{
		Name:        "list_articles",
		Description: "List cached articles, newest first. Filter by feed_id (also accepts -1 starred, -2 published, -3 fresh, -4 all and label ids) or category_id, unread_only, and since ('today', 'week', '7d', or YYYY-MM-DD). Use get_article to read the full content.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"feed_id": map[string]interface{}{
					"type":        "integer",
					"description": "Feed or virtual feed id. Example: -1 for starred articles",
				},
				"category_id": map[string]interface{}{
					"type":        "integer",
					"description": "Category id. Ignored when feed_id is set",
				},
				"unread_only": map[string]interface{}{
					"type":        "boolean",
					"description": "Only unread articles. Default: false",
				},
				"since": map[string]interface{}{
					"type":        "string",
					"description": "Only articles updated on or after this point: 'today', 'yesterday', 'week', 'month', an age like '3d', or YYYY-MM-DD",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of articles to return. Example: 50",
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of articles to skip for paging",
				},
				"refresh": map[string]interface{}{
					"type":        "boolean",
					"description": "Refresh the feed or category from the server first when stale. Default: false",
				},
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListArticles)
}

func (s *Server) registerGetArticleTool() {
	tool := mcp.Tool{
		Name:        "get_article",
		Description: "Get one article with its content converted to Markdown. Content missing from the cache is fetched from the server when reachable.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"article_id": map[string]interface{}{
					"type":        "integer",
					"description": "The article id. Example: 4821",
				},
			},
			Required: []string{"article_id"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleGetArticle)
}

func (s *Server) registerSearchTool() {
	tool := mcp.Tool{
		Name:        "search_articles",
		Description: "Full-text search over cached article titles and content. Works offline.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search terms. Example: 'sqlite wal'",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum results. Default: 20",
				},
			},
			Required: []string{"query"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleSearch)
}

func (s *Server) registerSetFlagTool() {
	tool := mcp.Tool{
		Name:        "set_flag",
		Description: "Set the read, star or publish flag on one or more articles. The change is applied to the cache immediately and queued for the server, so it works offline and is delivered later.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"article_ids": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "integer"},
					"description": "Article ids. Example: [4821, 4822]",
				},
				"flag": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"read", "star", "publish"},
					"description": "Which flag to set",
				},
				"value": map[string]interface{}{
					"type":        "boolean",
					"description": "New value. read=true marks read, star=false unstars",
				},
			},
			Required: []string{"article_ids", "flag", "value"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleSetFlag)
}

func (s *Server) registerSetNoteTool() {
	tool := mcp.Tool{
		Name:        "set_note",
		Description: "Attach a note to an article. An empty note clears it. Queued for the server like flag changes.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"article_id": map[string]interface{}{
					"type":        "integer",
					"description": "The article id",
				},
				"note": map[string]interface{}{
					"type":        "string",
					"description": "Note text",
				},
			},
			Required: []string{"article_id", "note"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleSetNote)
}

func (s *Server) registerMarkFeedReadTool() {
	tool := mcp.Tool{
		Name:        "mark_feed_read",
		Description: "Mark every cached unread article of a feed (or category when is_category is true) as read. Returns how many were marked.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "integer",
					"description": "Feed or category id",
				},
				"is_category": map[string]interface{}{
					"type":        "boolean",
					"description": "Treat id as a category. Default: false",
				},
			},
			Required: []string{"id"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleMarkFeedRead)
}

func (s *Server) registerSyncTool() {
	tool := mcp.Tool{
		Name:        "sync_now",
		Description: "Push queued changes to the server and refresh stale data. Set force=true to refresh everything regardless of staleness.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "Refresh every scope even when fresh. Default: false",
				},
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleSync)
}

func (s *Server) registerStatusTool() {
	tool := mcp.Tool{
		Name:        "status",
		Description: "Report cache counts, queued changes, connectivity, last refresh time per scope and the last sync error.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
	s.mcpServer.AddTool(tool, s.handleStatus)
}

// Handler implementations

func (s *Server) handleListCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ListCategoriesInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	includeVirtual := lo.FromPtr(input.IncludeVirtual)

	var warnings []error
	if lo.FromPtr(input.Refresh) {
		if _, err := s.coord.RefreshCategories(ctx, false); err != nil {
			warnings = append(warnings, err)
		}
		if includeVirtual {
			if _, err := s.coord.RefreshVirtualCategories(ctx, false); err != nil {
				warnings = append(warnings, err)
			}
		}
	}

	cats, err := s.coord.Categories(ctx, includeVirtual)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return jsonResult(ListCategoriesOutput{
		Categories: cats,
		Count:      len(cats),
		Warning:    warning(warnings...),
	})
}

func (s *Server) handleListFeeds(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ListFeedsInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	var warnings []error
	if lo.FromPtr(input.Refresh) {
		if _, err := s.coord.RefreshFeeds(ctx, false); err != nil {
			warnings = append(warnings, err)
		}
	}

	catID := int(models.VirtualAll)
	if input.CategoryID != nil {
		catID = *input.CategoryID
	}
	feeds, err := s.coord.Feeds(ctx, catID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	out := lo.Map(feeds, func(f models.Feed, _ int) FeedOutput {
		return FeedOutput{ID: f.ID, CategoryID: f.CategoryID, Title: f.Title, URL: f.URL, Unread: f.Unread}
	})
	return jsonResult(ListFeedsOutput{Feeds: out, Count: len(out), Warning: warning(warnings...)})
}

func (s *Server) handleListArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ListArticlesInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if input.Offset != nil && *input.Offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative, got %d", *input.Offset)
	}
	if input.Limit != nil && *input.Limit < 0 {
		return nil, fmt.Errorf("limit must be non-negative, got %d", *input.Limit)
	}

	filter := storage.ArticleFilter{
		FeedID:     input.FeedID,
		CategoryID: input.CategoryID,
		UnreadOnly: lo.FromPtr(input.UnreadOnly),
		Limit:      lo.FromPtr(input.Limit),
		Offset:     lo.FromPtr(input.Offset),
	}
	filters := map[string]any{"unread_only": filter.UnreadOnly}
	if input.FeedID != nil {
		filters["feed_id"] = *input.FeedID
	}
	if input.CategoryID != nil {
		filters["category_id"] = *input.CategoryID
	}
	if input.Since != nil && *input.Since != "" {
		since, err := timeutil.ParseCutoff(*input.Since, s.now())
		if err != nil {
			return nil, fmt.Errorf("invalid since value: %w", err)
		}
		filter.Since = since
		filters["since"] = since
	}

	var warnings []error
	if lo.FromPtr(input.Refresh) {
		switch {
		case input.FeedID != nil:
			_, err := s.coord.RefreshArticles(ctx, *input.FeedID, false, filter.UnreadOnly, false)
			warnings = append(warnings, err)
		case input.CategoryID != nil:
			_, err := s.coord.RefreshArticles(ctx, *input.CategoryID, true, filter.UnreadOnly, false)
			warnings = append(warnings, err)
		default:
			warnings = append(warnings, s.coord.RefreshAllArticles(ctx, false))
		}
	}

	arts, err := s.coord.Articles(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	out := lo.Map(arts, func(a models.Article, _ int) ArticleOutput { return articleOutput(a) })
	return jsonResult(ListArticlesOutput{
		Articles: out,
		Count:    len(out),
		Filters:  filters,
		Warning:  warning(warnings...),
	})
}

func (s *Server) handleGetArticle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input GetArticleInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	art, err := s.coord.LoadArticle(ctx, input.ArticleID)
	if art == nil {
		return nil, fmt.Errorf("article %d not found: %w", input.ArticleID, err)
	}

	output := GetArticleOutput{
		ArticleOutput: articleOutput(*art),
		Attachments:   art.Attachments,
		Warning:       warning(err),
	}
	if art.Content != nil {
		md := content.ToMarkdown(*art.Content, art.URL)
		output.Content = &md
	}
	if feeds, ferr := s.coord.Feeds(ctx, int(models.VirtualAll)); ferr == nil {
		if f, ok := lo.Find(feeds, func(f models.Feed) bool { return f.ID == art.FeedID }); ok {
			output.FeedTitle = f.Title
		}
	}
	return jsonResult(output)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SearchInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if input.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	limit := 20
	if input.Limit != nil && *input.Limit > 0 {
		limit = *input.Limit
	}

	arts, err := s.coord.Search(ctx, input.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	out := lo.Map(arts, func(a models.Article, _ int) ArticleOutput { return articleOutput(a) })
	return jsonResult(ListArticlesOutput{
		Articles: out,
		Count:    len(out),
		Filters:  map[string]any{"query": input.Query},
	})
}

func (s *Server) handleSetFlag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SetFlagInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if len(input.ArticleIDs) == 0 {
		return nil, fmt.Errorf("article_ids is required")
	}
	kind, err := models.ParseMutationKind(input.Flag)
	if err != nil || kind == models.MutationNote {
		return nil, fmt.Errorf("flag must be read, star or publish, got %q", input.Flag)
	}

	var updated []int
	for _, id := range lo.Uniq(input.ArticleIDs) {
		if err := s.coord.RecordLocalMutation(ctx, id, kind, input.Value); err != nil {
			return nil, fmt.Errorf("failed to set %s on article %d: %w", kind, id, err)
		}
		updated = append(updated, id)
	}

	pending, err := s.coord.PendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return jsonResult(SetFlagOutput{
		Updated: updated,
		Flag:    string(kind),
		Value:   input.Value,
		Pending: pending,
		Message: fmt.Sprintf("Set %s=%t on %d article(s); %d change(s) waiting for the server", kind, input.Value, len(updated), pending),
	})
}

func (s *Server) handleSetNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SetNoteInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if err := s.coord.SetNote(ctx, input.ArticleID, input.Note); err != nil {
		return nil, fmt.Errorf("failed to set note: %w", err)
	}
	art, err := s.coord.Article(ctx, input.ArticleID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload article: %w", err)
	}
	return jsonResult(articleOutput(*art))
}

func (s *Server) handleMarkFeedRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input MarkFeedReadInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	n, err := s.coord.MarkFeedRead(ctx, input.ID, lo.FromPtr(input.IsCategory))
	if err != nil {
		return nil, fmt.Errorf("failed to mark read: %w", err)
	}
	output := MarkFeedReadOutput{Count: n}
	if n == 0 {
		output.Message = "No unread articles to mark"
	} else {
		output.Message = fmt.Sprintf("Marked %d articles as read", n)
	}
	return jsonResult(output)
}

func (s *Server) handleSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SyncInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	res, perr := s.coord.PushPendingMutations(ctx)
	rerr := s.coord.RefreshAll(ctx, lo.FromPtr(input.Force))
	return jsonResult(SyncOutput{
		Pushed:  res.Pushed,
		Dropped: res.Dropped,
		Failed:  res.Failed,
		Error:   warning(perr, rerr),
	})
}

func (s *Server) handleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.coord.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	return jsonResult(st)
}

func articleOutput(a models.Article) ArticleOutput {
	out := ArticleOutput{
		ID:        a.ID,
		FeedID:    a.FeedID,
		Title:     a.Title,
		URL:       a.URL,
		Author:    a.Author,
		Updated:   a.Updated,
		Unread:    a.Unread,
		Starred:   a.Starred,
		Published: a.Published,
		Note:      lo.FromPtr(a.Note),
	}
	for _, l := range a.Labels {
		out.Labels = append(out.Labels, l.Caption)
	}
	return out
}

// warning joins the non-nil errors into one message for the client.
func warning(errs ...error) string {
	if err := errors.Join(errs...); err != nil {
		return err.Error()
	}
	return ""
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
