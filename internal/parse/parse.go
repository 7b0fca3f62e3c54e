// ABOUTME: RSS/Atom/JSON feed parsing used to validate a URL before subscribing
// ABOUTME: Summarizes a gofeed.Feed into a title, type, entry list and newest entry time

package parse

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// ErrNotFeed is returned when the data is not a recognizable feed.
var ErrNotFeed = errors.New("not an RSS, Atom or JSON feed")

// Feed summarizes a fetched feed.
type Feed struct {
	Title   string
	Link    string
	Type    string
	Entries []Entry
	Newest  time.Time
}

// Entry is one item of a feed.
type Entry struct {
	GUID      string
	Title     string
	Link      string
	Published *time.Time
}

// Parse parses feed data. Empty input and documents gofeed cannot detect
// return ErrNotFeed.
func Parse(data []byte) (*Feed, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNotFeed
	}
	raw, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
			return nil, ErrNotFeed
		}
		return nil, err
	}

	feed := &Feed{
		Title:   strings.TrimSpace(raw.Title),
		Link:    raw.Link,
		Type:    raw.FeedType,
		Entries: make([]Entry, 0, len(raw.Items)),
	}
	for _, item := range raw.Items {
		e := Entry{
			GUID:  item.GUID,
			Title: strings.TrimSpace(item.Title),
			Link:  item.Link,
		}
		if e.GUID == "" {
			e.GUID = item.Link
		}
		if item.PublishedParsed != nil {
			e.Published = item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			e.Published = item.UpdatedParsed
		}
		if e.Published != nil && e.Published.After(feed.Newest) {
			feed.Newest = *e.Published
		}
		feed.Entries = append(feed.Entries, e)
	}
	return feed, nil
}
