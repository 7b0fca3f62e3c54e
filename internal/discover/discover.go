// ABOUTME: Feed discovery for the subscribe command: turns a site URL into feed URLs
// ABOUTME: Checks the page itself, then its <link> tags, then probes well-known feed paths concurrently

package discover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/harper/ttcache/internal/fetch"
	"github.com/harper/ttcache/internal/parse"
)

// wellKnownPaths are probed, in preference order, when a page advertises no feed.
var wellKnownPaths = []string{
	"/feed",
	"/feed.xml",
	"/rss.xml",
	"/rss",
	"/atom.xml",
	"/index.xml",
	"/feed.json",
	"/feeds/posts/default",
}

const probeWorkers = 4

var (
	ErrNoFeedFound = errors.New("no feed found")
	ErrInvalidURL  = errors.New("invalid URL")
)

// DiscoveredFeed is a verified feed.
type DiscoveredFeed struct {
	URL   string
	Title string
	Items int
}

// Discoverer finds feeds through a Fetcher.
type Discoverer struct {
	fetcher *fetch.Fetcher
}

// New returns a Discoverer. A nil fetcher uses the default, which refuses
// private addresses.
func New(f *fetch.Fetcher) *Discoverer {
	if f == nil {
		f = fetch.New()
	}
	return &Discoverer{fetcher: f}
}

// Discover returns the preferred feed for pageURL using the default fetcher.
func Discover(ctx context.Context, pageURL string) (*DiscoveredFeed, error) {
	return New(nil).Discover(ctx, pageURL)
}

// Discover returns the preferred feed for pageURL.
func (d *Discoverer) Discover(ctx context.Context, pageURL string) (*DiscoveredFeed, error) {
	feeds, err := d.Candidates(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return &feeds[0], nil
}

// Candidates returns every verified feed for pageURL, best first. A page that
// is itself a feed yields just that feed.
func (d *Discoverer) Candidates(ctx context.Context, pageURL string) ([]DiscoveredFeed, error) {
	base, err := normalizeURL(pageURL)
	if err != nil {
		return nil, err
	}

	self, body, err := d.verify(ctx, base.String())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", base, err)
	}
	if self != nil {
		return []DiscoveredFeed{*self}, nil
	}

	var found []DiscoveredFeed
	for _, link := range feedLinks(body, base) {
		f, _, err := d.verify(ctx, link.URL)
		if err != nil || f == nil {
			continue
		}
		if f.Title == "" {
			f.Title = link.Title
		}
		found = append(found, *f)
	}
	if len(found) == 0 {
		if found, err = d.probe(ctx, base); err != nil {
			return nil, err
		}
	}

	found = lo.UniqBy(found, func(f DiscoveredFeed) string { return f.URL })
	if len(found) == 0 {
		return nil, ErrNoFeedFound
	}
	return found, nil
}

// normalizeURL checks pageURL and defaults a bare host to https.
func normalizeURL(pageURL string) (*url.URL, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(pageURL, "://") {
		pageURL = "https://" + pageURL
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Fragment = ""
	return u, nil
}

// verify fetches feedURL and parses it. A body that is not a feed is
// returned with a nil feed and no error.
func (d *Discoverer) verify(ctx context.Context, feedURL string) (*DiscoveredFeed, []byte, error) {
	res, err := d.fetcher.Get(ctx, feedURL, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	feed, err := parse.Parse(res.Body)
	if err != nil {
		return nil, res.Body, nil //nolint:nilerr // not a feed
	}
	return &DiscoveredFeed{URL: feedURL, Title: feed.Title, Items: len(feed.Entries)}, res.Body, nil
}

// probe tries the well-known paths on the site root and keeps the hits in
// path order.
func (d *Discoverer) probe(ctx context.Context, base *url.URL) ([]DiscoveredFeed, error) {
	root := &url.URL{Scheme: base.Scheme, Host: base.Host}
	hits := make([]*DiscoveredFeed, len(wellKnownPaths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeWorkers)
	for i, p := range wellKnownPaths {
		g.Go(func() error {
			f, _, err := d.verify(gctx, root.String()+p)
			if err == nil {
				hits[i] = f
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return lo.FilterMap(hits, func(f *DiscoveredFeed, _ int) (DiscoveredFeed, bool) {
		if f == nil {
			return DiscoveredFeed{}, false
		}
		return *f, true
	}), nil
}

// feedLinks scans body for <link> elements that advertise a feed.
func feedLinks(body []byte, base *url.URL) []DiscoveredFeed {
	var links []DiscoveredFeed
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return lo.UniqBy(links, func(f DiscoveredFeed) string { return f.URL })
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "link" || !hasAttr {
				continue
			}
			attrs := make(map[string]string)
			for {
				k, v, more := z.TagAttr()
				attrs[string(k)] = string(v)
				if !more {
					break
				}
			}
			if f, ok := linkedFeed(attrs, base); ok {
				links = append(links, f)
			}
		}
	}
}

func linkedFeed(attrs map[string]string, base *url.URL) (DiscoveredFeed, bool) {
	rels := strings.Fields(strings.ToLower(attrs["rel"]))
	href := strings.TrimSpace(attrs["href"])
	if href == "" {
		return DiscoveredFeed{}, false
	}
	switch {
	case lo.Contains(rels, "feed"):
	case lo.Contains(rels, "alternate") && isFeedType(attrs["type"]):
	default:
		return DiscoveredFeed{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return DiscoveredFeed{}, false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return DiscoveredFeed{}, false
	}
	return DiscoveredFeed{URL: u.String(), Title: strings.TrimSpace(attrs["title"])}, true
}

func isFeedType(mediaType string) bool {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case strings.Contains(mediaType, "rss"), strings.Contains(mediaType, "atom"):
		return true
	case strings.HasSuffix(mediaType, "feed+json"):
		return true
	case mediaType == "application/xml", mediaType == "text/xml":
		return true
	}
	return false
}
