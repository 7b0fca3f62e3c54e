// ABOUTME: Processing of cached article bodies
// ABOUTME: Renders HTML as Markdown for display and lists the media URLs an article references

package content

import (
	"net/url"
	"regexp"
	"slices"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"golang.org/x/net/html"
)

var markupPattern = regexp.MustCompile(`(?i)<\s*(p|div|span|a|br|img|h[1-6]|ul|ol|li|table|tr|td|th|strong|em|b|i|code|pre|blockquote|figure|video|audio|iframe)\b[^>]*>`)

// IsHTML reports whether body looks like HTML rather than plain text.
func IsHTML(body string) bool {
	if strings.Contains(body, "<!DOCTYPE") || strings.Contains(body, "<html") {
		return true
	}
	return markupPattern.MatchString(body)
}

// ToMarkdown renders an article body as Markdown. Relative links and images
// resolve against articleURL when it is absolute. Plain text, and HTML the
// converter rejects, come back unchanged.
func ToMarkdown(body, articleURL string) string {
	if body == "" || !IsHTML(body) {
		return body
	}

	var opts []converter.ConvertOptionFunc
	if origin := siteOrigin(articleURL); origin != "" {
		opts = append(opts, converter.WithDomain(origin))
	}
	md, err := htmltomarkdown.ConvertString(body, opts...)
	if err != nil {
		return body
	}
	return strings.TrimSpace(md)
}

func siteOrigin(articleURL string) string {
	u, err := url.Parse(articleURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// mediaAttrs lists, per element, the attributes that point at a file.
var mediaAttrs = map[string][]string{
	"img":    {"src"},
	"video":  {"src", "poster"},
	"audio":  {"src"},
	"source": {"src"},
}

// MediaURLs returns the distinct http(s) URLs of images, video, audio and
// their sources in body, in document order. Relative URLs resolve against
// articleURL and are dropped when it is not absolute; data: URLs are skipped.
func MediaURLs(body, articleURL string) []string {
	if body == "" || !strings.Contains(body, "<") {
		return nil
	}
	base, _ := url.Parse(articleURL)
	if base != nil && !base.IsAbs() {
		base = nil
	}

	seen := make(map[string]bool)
	var urls []string
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return urls
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		keys, ok := mediaAttrs[string(name)]
		if !ok || !hasAttr {
			continue
		}
		for {
			k, v, more := z.TagAttr()
			if slices.Contains(keys, string(k)) {
				if u := resolve(strings.TrimSpace(string(v)), base); u != "" && !seen[u] {
					seen[u] = true
					urls = append(urls, u)
				}
			}
			if !more {
				break
			}
		}
	}
}

func resolve(ref string, base *url.URL) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		if base == nil {
			return ""
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
