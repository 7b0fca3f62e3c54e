// ABOUTME: JSON shapes of the TT-RSS API responses
// ABOUTME: Numeric ids sometimes arrive as strings, flexInt accepts both

package ttrss

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/harper/ttcache/internal/models"
)

// envelope wraps every API response.
type envelope struct {
	Seq     int             `json:"seq"`
	Status  int             `json:"status"`
	Content json.RawMessage `json:"content"`
}

type apiError struct {
	Error string `json:"error"`
}

// flexInt decodes a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("decode id %q: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

type loginResponse struct {
	SessionID string  `json:"session_id"`
	APILevel  flexInt `json:"api_level"`
}

type categoryJSON struct {
	ID     flexInt `json:"id"`
	Title  string  `json:"title"`
	Unread flexInt `json:"unread"`
}

func (c categoryJSON) toModel() models.Category {
	return models.Category{ID: int(c.ID), Title: c.Title, Unread: int(c.Unread)}
}

type feedJSON struct {
	ID         flexInt `json:"id"`
	Title      string  `json:"title"`
	FeedURL    string  `json:"feed_url"`
	Unread     flexInt `json:"unread"`
	CategoryID flexInt `json:"cat_id"`
}

func (f feedJSON) toModel() models.Feed {
	return models.Feed{
		ID:         int(f.ID),
		CategoryID: int(f.CategoryID),
		Title:      f.Title,
		URL:        f.FeedURL,
		Unread:     int(f.Unread),
	}
}

type attachmentJSON struct {
	ContentURL  string `json:"content_url"`
	ContentType string `json:"content_type"`
}

// headlineJSON serves both getHeadlines and getArticle. Fields the server
// did not send stay nil so the store keeps what it already has.
type headlineJSON struct {
	ID           flexInt             `json:"id"`
	FeedID       flexInt             `json:"feed_id"`
	Title        string              `json:"title"`
	Unread       bool                `json:"unread"`
	Marked       bool                `json:"marked"`
	Published    bool                `json:"published"`
	Updated      int64               `json:"updated"`
	Link         string              `json:"link"`
	CommentsLink string              `json:"comments_link"`
	Author       string              `json:"author"`
	Content      *string             `json:"content"`
	Note         *string             `json:"note"`
	Score        int                 `json:"score"`
	Attachments  []attachmentJSON    `json:"attachments"`
	Labels       [][]json.RawMessage `json:"labels"`
}

func (h headlineJSON) toModel() models.Article {
	a := models.Article{
		ID:         int(h.ID),
		FeedID:     int(h.FeedID),
		Title:      h.Title,
		Unread:     h.Unread,
		Starred:    h.Marked,
		Published:  h.Published,
		Updated:    time.Unix(h.Updated, 0).UTC(),
		URL:        h.Link,
		CommentURL: h.CommentsLink,
		Author:     h.Author,
		Content:    h.Content,
		Note:       h.Note,
		Score:      h.Score,
	}
	if h.Attachments != nil {
		a.Attachments = make([]string, 0, len(h.Attachments))
		for _, att := range h.Attachments {
			if att.ContentURL != "" {
				a.Attachments = append(a.Attachments, att.ContentURL)
			}
		}
	}
	if h.Labels != nil {
		a.Labels = make([]models.Label, 0, len(h.Labels))
		for _, raw := range h.Labels {
			if l, ok := decodeLabel(raw); ok {
				a.Labels = append(a.Labels, l)
			}
		}
	}
	return a
}

// decodeLabel reads the [id, caption, fg_color, bg_color] tuple form.
func decodeLabel(raw []json.RawMessage) (models.Label, bool) {
	if len(raw) < 2 {
		return models.Label{}, false
	}
	var id flexInt
	if err := json.Unmarshal(raw[0], &id); err != nil {
		return models.Label{}, false
	}
	l := models.Label{ID: int(id)}
	_ = json.Unmarshal(raw[1], &l.Caption)
	if len(raw) > 2 {
		_ = json.Unmarshal(raw[2], &l.FgColor)
	}
	if len(raw) > 3 {
		_ = json.Unmarshal(raw[3], &l.BgColor)
	}
	return l, true
}

type counterJSON struct {
	ID      json.RawMessage `json:"id"`
	Counter flexInt         `json:"counter"`
	Kind    string          `json:"kind"`
}

type updateResponse struct {
	Status  string  `json:"status"`
	Updated flexInt `json:"updated"`
}

type subscribeResponse struct {
	Status struct {
		Code    flexInt `json:"code"`
		Message string  `json:"message"`
		FeedID  flexInt `json:"feed_id"`
	} `json:"status"`
}
