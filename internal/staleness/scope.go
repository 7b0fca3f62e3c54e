// ABOUTME: Staleness scopes: the units whose last refresh time is tracked
// ABOUTME: Per-feed article scopes are independent so one feed's refresh never invalidates another

package staleness

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind names a class of cached data.
type Kind string

const (
	KindCounters          Kind = "counters"
	KindCategories        Kind = "categories"
	KindVirtualCategories Kind = "virtual_categories"
	KindFeeds             Kind = "feeds"
	KindArticles          Kind = "articles"
	KindCategoryArticles  Kind = "category_articles"
	KindAllArticles       Kind = "all_articles"
	KindCleanup           Kind = "cleanup"
)

// Scope is a tracked unit of staleness. ID is only meaningful for the
// per-feed and per-category article kinds.
type Scope struct {
	Kind Kind
	ID   int
}

var (
	Counters          = Scope{Kind: KindCounters}
	Categories        = Scope{Kind: KindCategories}
	VirtualCategories = Scope{Kind: KindVirtualCategories}
	Feeds             = Scope{Kind: KindFeeds}
	AllArticles       = Scope{Kind: KindAllArticles}
	Cleanup           = Scope{Kind: KindCleanup}
)

// Articles is the scope of one feed's (or virtual feed's) articles.
func Articles(feedID int) Scope {
	return Scope{Kind: KindArticles, ID: feedID}
}

// CategoryArticles is the scope of the articles of a whole category.
func CategoryArticles(catID int) Scope {
	return Scope{Kind: KindCategoryArticles, ID: catID}
}

func (s Scope) hasID() bool {
	return s.Kind == KindArticles || s.Kind == KindCategoryArticles
}

// String renders the persisted key, e.g. "feeds" or "articles:7".
func (s Scope) String() string {
	if s.hasID() {
		return string(s.Kind) + ":" + strconv.Itoa(s.ID)
	}
	return string(s.Kind)
}

// ParseScope is the inverse of String.
func ParseScope(key string) (Scope, error) {
	kind, id, hasID := strings.Cut(key, ":")
	s := Scope{Kind: Kind(kind)}
	switch s.Kind {
	case KindArticles, KindCategoryArticles:
		if !hasID {
			return Scope{}, fmt.Errorf("scope %q: missing id", key)
		}
		n, err := strconv.Atoi(id)
		if err != nil {
			return Scope{}, fmt.Errorf("scope %q: %w", key, err)
		}
		s.ID = n
	case KindCounters, KindCategories, KindVirtualCategories, KindFeeds, KindAllArticles, KindCleanup:
		if hasID {
			return Scope{}, fmt.Errorf("scope %q: unexpected id", key)
		}
	default:
		return Scope{}, fmt.Errorf("unknown scope %q", key)
	}
	return s, nil
}
