// ABOUTME: TT-RSS API operations: listing categories, feeds, headlines and counters, and article updates
// ABOUTME: updateArticle fields are 0 starred, 1 published, 2 unread, 3 note

package ttrss

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/remote"
)

const (
	fieldStarred   = 0
	fieldPublished = 1
	fieldUnread    = 2
	fieldNote      = 3

	// specialCategory and labelsCategory are the server's pseudo-category ids
	// for the special feeds and the labels.
	specialCategory = -1
	labelsCategory  = -2

	// maxIDsPerUpdate bounds the article_ids list of one updateArticle call.
	maxIDsPerUpdate = 100
)

// ListCategories returns the real categories with their unread counts.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var raw []categoryJSON
	params := map[string]interface{}{"unread_only": false, "enable_nested": false, "include_empty": true}
	if err := c.call(ctx, "getCategories", params, &raw); err != nil {
		return nil, err
	}
	cats := make([]models.Category, 0, len(raw))
	for _, rc := range raw {
		if rc.ID < 0 {
			continue
		}
		cats = append(cats, rc.toModel())
	}
	return cats, nil
}

// ListFeeds returns every subscribed feed grouped by category.
func (c *Client) ListFeeds(ctx context.Context) (map[int][]models.Feed, error) {
	var raw []feedJSON
	params := map[string]interface{}{"cat_id": int(models.VirtualAll), "unread_only": false}
	if err := c.call(ctx, "getFeeds", params, &raw); err != nil {
		return nil, err
	}
	feeds := make(map[int][]models.Feed)
	for _, rf := range raw {
		if rf.ID <= 0 {
			continue
		}
		f := rf.toModel()
		feeds[f.CategoryID] = append(feeds[f.CategoryID], f)
	}
	return feeds, nil
}

// ListVirtualCategories returns the fixed special categories and the labels.
func (c *Client) ListVirtualCategories(ctx context.Context) ([]models.Category, error) {
	var special []feedJSON
	if err := c.call(ctx, "getFeeds", map[string]interface{}{"cat_id": specialCategory}, &special); err != nil {
		return nil, err
	}
	var labels []feedJSON
	if err := c.call(ctx, "getFeeds", map[string]interface{}{"cat_id": labelsCategory}, &labels); err != nil {
		return nil, err
	}

	var cats []models.Category
	for _, f := range special {
		if v, ok := models.AsVirtual(int(f.ID)); ok {
			title := f.Title
			if title == "" {
				title = v.Title()
			}
			cats = append(cats, models.Category{ID: int(v), Title: title, Unread: int(f.Unread)})
		}
	}
	for _, f := range labels {
		if models.IsLabel(int(f.ID)) {
			cats = append(cats, models.Category{ID: int(f.ID), Title: f.Title, Unread: int(f.Unread)})
		}
	}
	return cats, nil
}

// ListHeadlines returns one page of headlines.
func (c *Client) ListHeadlines(ctx context.Context, q remote.HeadlineQuery) ([]models.Article, error) {
	limit := q.Limit
	if limit <= 0 || limit > remote.MaxPageSize {
		limit = remote.MaxPageSize
	}
	view := q.View
	if view == "" {
		view = remote.ViewAll
	}

	params := map[string]interface{}{
		"feed_id":             q.FeedID,
		"limit":               limit,
		"skip":                q.Offset,
		"view_mode":           string(view),
		"is_cat":              q.IsCategory,
		"show_content":        q.ShowContent,
		"include_attachments": true,
	}
	if q.SinceID > 0 {
		params["since_id"] = q.SinceID
	}

	var raw []headlineJSON
	if err := c.call(ctx, "getHeadlines", params, &raw); err != nil {
		return nil, err
	}
	arts := make([]models.Article, len(raw))
	for i, h := range raw {
		arts[i] = h.toModel()
	}
	return arts, nil
}

// FetchArticle returns one article with full content.
func (c *Client) FetchArticle(ctx context.Context, id int) (*models.Article, error) {
	var raw []headlineJSON
	if err := c.call(ctx, "getArticle", map[string]interface{}{"article_id": strconv.Itoa(id)}, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, remote.NewError("getArticle", remote.ErrConflictIgnorable, fmt.Sprintf("article %d", id), nil)
	}
	a := raw[0].toModel()
	if a.Content == nil {
		empty := ""
		a.Content = &empty
	}
	return &a, nil
}

// FetchCounters returns the unread counts of categories and feeds.
func (c *Client) FetchCounters(ctx context.Context) (*remote.Counters, error) {
	var raw []counterJSON
	if err := c.call(ctx, "getCounters", map[string]interface{}{"output_mode": "flc"}, &raw); err != nil {
		return nil, err
	}

	counters := &remote.Counters{Categories: make(map[int]int), Feeds: make(map[int]int)}
	for _, rc := range raw {
		var id flexInt
		// Global counters use string ids like "global-unread"
		if err := json.Unmarshal(rc.ID, &id); err != nil {
			continue
		}
		if rc.Kind == "cat" {
			counters.Categories[int(id)] = int(rc.Counter)
			continue
		}
		if _, virtual := models.AsVirtual(int(id)); virtual || models.IsLabel(int(id)) {
			counters.Categories[int(id)] = int(rc.Counter)
			continue
		}
		// Archived (0) and the other special feeds are not cached
		if id <= 0 {
			continue
		}
		counters.Feeds[int(id)] = int(rc.Counter)
	}
	return counters, nil
}

// FetchFeedIcon downloads the feed's icon from the server's icon directory.
func (c *Client) FetchFeedIcon(ctx context.Context, feedID int) ([]byte, error) {
	url := fmt.Sprintf("%s/feed-icons/%d.ico", c.baseURL, feedID)
	res, err := c.icons.Get(ctx, url, nil, nil)
	if err != nil {
		return nil, remote.NewError("feedIcon", remote.ErrRemote, "", err)
	}
	return res.Body, nil
}

// MutateReadState marks articles read or unread.
func (c *Client) MutateReadState(ctx context.Context, ids []int, read bool) error {
	mode := 1
	if read {
		mode = 0
	}
	for start := 0; start < len(ids); start += maxIDsPerUpdate {
		end := start + maxIDsPerUpdate
		if end > len(ids) {
			end = len(ids)
		}
		if _, err := c.updateArticles(ctx, ids[start:end], fieldUnread, mode, ""); err != nil {
			return err
		}
	}
	return nil
}

// MutateStarState stars or unstars an article.
func (c *Client) MutateStarState(ctx context.Context, id int, starred bool) error {
	return c.updateOne(ctx, id, fieldStarred, boolMode(starred), "")
}

// MutatePublishState publishes or unpublishes an article, attaching note
// when one is given.
func (c *Client) MutatePublishState(ctx context.Context, id int, published bool, note string) error {
	if err := c.updateOne(ctx, id, fieldPublished, boolMode(published), ""); err != nil {
		return err
	}
	if note == "" {
		return nil
	}
	return c.MutateNote(ctx, id, note)
}

// MutateNote sets the article note.
func (c *Client) MutateNote(ctx context.Context, id int, note string) error {
	return c.updateOne(ctx, id, fieldNote, 0, note)
}

// updateOne updates a single article. The server reporting nothing updated
// means the article is gone.
func (c *Client) updateOne(ctx context.Context, id, field, mode int, data string) error {
	updated, err := c.updateArticles(ctx, []int{id}, field, mode, data)
	if err != nil {
		return err
	}
	if updated == 0 && field != fieldNote {
		return remote.NewError("updateArticle", remote.ErrConflictIgnorable, fmt.Sprintf("article %d", id), nil)
	}
	return nil
}

func (c *Client) updateArticles(ctx context.Context, ids []int, field, mode int, data string) (int, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	params := map[string]interface{}{
		"article_ids": strings.Join(parts, ","),
		"field":       field,
		"mode":        mode,
	}
	if field == fieldNote {
		params["data"] = data
	}

	var resp updateResponse
	if err := c.call(ctx, "updateArticle", params, &resp); err != nil {
		return 0, err
	}
	return int(resp.Updated), nil
}

func boolMode(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Subscribe adds a feed to the given category and returns its id when the
// server reports one.
func (c *Client) Subscribe(ctx context.Context, feedURL string, categoryID int) (int, error) {
	var resp subscribeResponse
	params := map[string]interface{}{"feed_url": feedURL, "category_id": categoryID}
	if err := c.call(ctx, "subscribeToFeed", params, &resp); err != nil {
		return 0, err
	}
	switch resp.Status.Code {
	case 0, 1:
		return int(resp.Status.FeedID), nil
	default:
		msg := resp.Status.Message
		if msg == "" {
			msg = fmt.Sprintf("subscription failed with code %d", int(resp.Status.Code))
		}
		err := remote.NewError("subscribeToFeed", remote.ErrRemote, msg, nil)
		c.setLastError(err)
		return 0, err
	}
}

// Unsubscribe removes a feed.
func (c *Client) Unsubscribe(ctx context.Context, feedID int) error {
	return c.call(ctx, "unsubscribeFeed", map[string]interface{}{"feed_id": feedID}, nil)
}
