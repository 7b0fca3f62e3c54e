// ABOUTME: MCP resource providers for ttcache
// ABOUTME: Exposes read-only views of the cache: categories, unread and starred articles, queued changes, status

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"

	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/storage"
)

const (
	uriCategories = "ttcache://categories"
	uriUnread     = "ttcache://articles/unread"
	uriStarred    = "ttcache://articles/starred"
	uriPending    = "ttcache://pending"
	uriStatus     = "ttcache://status"

	// resourceArticleLimit caps article lists returned as resources.
	resourceArticleLimit = 200
)

// ResourceData is the standard response format for all resources.
type ResourceData struct {
	Metadata ResourceMetadata  `json:"metadata"`
	Data     interface{}       `json:"data"`
	Links    map[string]string `json:"links"`
}

// ResourceMetadata contains metadata about the resource response.
type ResourceMetadata struct {
	Timestamp   time.Time `json:"timestamp"`
	Count       int       `json:"count"`
	ResourceURI string    `json:"resource_uri"`
}

var resourceLinks = map[string]string{
	"categories": uriCategories,
	"unread":     uriUnread,
	"starred":    uriStarred,
	"pending":    uriPending,
	"status":     uriStatus,
}

func (s *Server) registerResources() {
	s.addResource(uriCategories, "Categories",
		"All cached categories including virtual categories and labels, with unread counts",
		func(ctx context.Context) (interface{}, int, error) {
			cats, err := s.coord.Categories(ctx, true)
			return cats, len(cats), err
		})

	s.addResource(uriUnread, "Unread Articles",
		"Cached unread articles across all feeds, newest first",
		func(ctx context.Context) (interface{}, int, error) {
			return s.articles(ctx, storage.ArticleFilter{UnreadOnly: true, Limit: resourceArticleLimit})
		})

	s.addResource(uriStarred, "Starred Articles",
		"Cached starred articles, newest first",
		func(ctx context.Context) (interface{}, int, error) {
			starred := int(models.VirtualStarred)
			return s.articles(ctx, storage.ArticleFilter{FeedID: &starred, Limit: resourceArticleLimit})
		})

	s.addResource(uriPending, "Pending Changes",
		"Local flag and note changes waiting to be delivered to the server, oldest first",
		func(ctx context.Context) (interface{}, int, error) {
			muts, err := s.coord.PendingMutations(ctx)
			return muts, len(muts), err
		})

	s.addResource(uriStatus, "Sync Status",
		"Cache counts, connectivity, last refresh per scope and last sync error",
		func(ctx context.Context) (interface{}, int, error) {
			st, err := s.coord.Status(ctx)
			if err != nil {
				return nil, 0, err
			}
			return st, st.Stats.Articles, nil
		})
}

func (s *Server) articles(ctx context.Context, filter storage.ArticleFilter) (interface{}, int, error) {
	arts, err := s.coord.Articles(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	out := lo.Map(arts, func(a models.Article, _ int) ArticleOutput { return articleOutput(a) })
	return out, len(out), nil
}

func (s *Server) addResource(uri, name, description string, load func(ctx context.Context) (interface{}, int, error)) {
	s.mcpServer.AddResource(
		mcp.Resource{
			URI:         uri,
			Name:        name,
			Description: description,
			MIMEType:    "application/json",
		},
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return s.readResource(ctx, uri, request.Params.URI, load)
		},
	)
}

func (s *Server) readResource(ctx context.Context, uri, requested string, load func(ctx context.Context) (interface{}, int, error)) ([]mcp.ResourceContents, error) {
	data, count, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}

	resourceData := ResourceData{
		Metadata: ResourceMetadata{
			Timestamp:   s.now(),
			Count:       count,
			ResourceURI: uri,
		},
		Data:  data,
		Links: resourceLinks,
	}
	jsonBytes, err := json.MarshalIndent(resourceData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource data: %w", err)
	}

	if requested == "" {
		requested = uri
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      requested,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
