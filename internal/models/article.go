// ABOUTME: Article model with read/star/publish flags and nullable content
// ABOUTME: Nil content or attachments mean the server has not reported them yet

package models

import "time"

// Label is a user label the server can attach to articles.
type Label struct {
	ID      int    `json:"id"`
	Caption string `json:"caption"`
	FgColor string `json:"fg_color,omitempty"`
	BgColor string `json:"bg_color,omitempty"`
}

// Article is a cached headline or full article.
//
// Content, Attachments, Note and Labels use nil to mean "not reported by this
// fetch". A stored value is only replaced by a non-nil incoming value, so a
// headline-only refresh never erases content cached by an earlier full fetch.
// An empty string content is a real, empty body.
type Article struct {
	ID          int       `json:"id"`
	FeedID      int       `json:"feed_id"`
	Title       string    `json:"title"`
	Unread      bool      `json:"unread"`
	Starred     bool      `json:"starred"`
	Published   bool      `json:"published"`
	Content     *string   `json:"content,omitempty"`
	Updated     time.Time `json:"updated"`
	URL         string    `json:"url,omitempty"`
	CommentURL  string    `json:"comment_url,omitempty"`
	Author      string    `json:"author,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	Note        *string   `json:"note,omitempty"`
	Labels      []Label   `json:"labels,omitempty"`
	Score       int       `json:"score,omitempty"`
}

// HasContent reports whether the full body has been fetched.
func (a *Article) HasContent() bool {
	return a.Content != nil
}
