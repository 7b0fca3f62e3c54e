// ABOUTME: MCP prompt templates for ttcache
// ABOUTME: Guides agents through triaging unread articles and tidying starred ones using the cache tools

package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(
		mcp.Prompt{
			Name:        "triage-unread",
			Description: "Work through unread articles: summarize, star what matters, mark the rest read",
			Arguments: []mcp.PromptArgument{
				{
					Name:        "since",
					Description: "How far back to look: 'today', 'week' or an age like '3d' (default: today)",
					Required:    false,
				},
			},
		},
		s.handleTriageUnread,
	)
	s.mcpServer.AddPrompt(
		mcp.Prompt{
			Name:        "review-starred",
			Description: "Review starred articles and unstar the ones that are done",
			Arguments:   []mcp.PromptArgument{},
		},
		s.handleReviewStarred,
	)
}

func (s *Server) handleTriageUnread(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	since := "today"
	if req.Params.Arguments != nil {
		if v, ok := req.Params.Arguments["since"]; ok && v != "" {
			since = v
		}
	}

	template := fmt.Sprintf(`# Triage Unread Articles

Work through unread articles updated since **%[1]s**. Everything is read from the
local cache, so this works offline; changes you make are queued and delivered to
the server on the next sync.

## Steps
1. Call list_articles with unread_only=true and since="%[1]s". Add refresh=true
   if you want newer articles and the server is reachable.
2. Group the results by feed. Skim titles first.
3. For anything that looks important, call get_article and write a two-line summary.
4. Star articles worth keeping with set_flag (flag="star", value=true).
5. Mark everything you have handled as read with set_flag (flag="read", value=true),
   or use mark_feed_read for a whole feed you want to skip.
6. Finish with status and report how many changes are still waiting for the server.

## Output
- A short digest grouped by feed
- The list of starred article ids
- The number of articles marked read
`, since)

	return &mcp.GetPromptResult{
		Description: "Triage workflow for unread articles",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: template},
			},
		},
	}, nil
}

func (s *Server) handleReviewStarred(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	template := `# Review Starred Articles

Starred articles are never evicted from the cache, so the list only grows unless
it is pruned.

## Steps
1. Read ttcache://articles/starred.
2. For each article, decide whether it still needs attention. Use get_article when
   the title is not enough.
3. Unstar finished ones with set_flag (flag="star", value=false). Leave a note with
   set_note on anything you keep, saying why.
4. Report what was kept and what was unstarred.
`

	return &mcp.GetPromptResult{
		Description: "Review workflow for starred articles",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: template},
			},
		},
	}, nil
}
