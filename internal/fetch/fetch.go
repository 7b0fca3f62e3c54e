// ABOUTME: HTTP fetcher for feed discovery and feed icons with conditional request support
// ABOUTME: Blocks private address ranges unless allowed and caps response size

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const MaxResponseSize = 10 * 1024 * 1024 // 10MB

var (
	ErrInvalidURL     = errors.New("invalid URL")
	ErrPrivateAddress = errors.New("private address not allowed")
	ErrTooLarge       = errors.New("response too large")
)

// DefaultUserAgent identifies ttcache to remote servers.
const DefaultUserAgent = "ttcache/1.0 (offline RSS client)"

// Result contains the response from an HTTP fetch operation.
type Result struct {
	Body         []byte
	ContentType  string
	ETag         string
	LastModified string
	NotModified  bool
}

// Fetcher performs bounded GET requests.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxSize      int64
	allowPrivate bool
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout sets the overall request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client = &http.Client{Timeout: d} }
}

// WithMaxSize caps the response body.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) { f.maxSize = n }
}

// AllowPrivate permits private address ranges. Used for the user's own
// server, which commonly lives on a LAN.
func AllowPrivate() Option {
	return func(f *Fetcher) { f.allowPrivate = true }
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: DefaultUserAgent,
		maxSize:   MaxResponseSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var defaultFetcher = New()

// Fetch retrieves a URL with the default public-only fetcher.
func Fetch(ctx context.Context, urlStr string, etag, lastModified *string) (*Result, error) {
	return defaultFetcher.Get(ctx, urlStr, etag, lastModified)
}

// blockedIP reports whether ip is in a range the public fetcher refuses.
// Loopback stays reachable so local test servers work.
func blockedIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return false
	}
	return ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// StatusError is returned for any answer other than 200 or 304.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Get retrieves urlStr. A non-empty etag or lastModified makes the request
// conditional; a 304 answer yields NotModified=true and no body.
func (f *Fetcher) Get(ctx context.Context, urlStr string, etag, lastModified *string) (*Result, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if err := f.checkHost(ctx, u.Hostname()); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if etag != nil && *etag != "" {
		req.Header.Set("If-None-Match", *etag)
	}
	if lastModified != nil && *lastModified != "" {
		req.Header.Set("If-Modified-Since", *lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		return &Result{NotModified: true}, nil
	default:
		return nil, &StatusError{URL: u.Redacted(), Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, f.maxSize)
	}

	return &Result{
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// checkHost refuses hosts that resolve into a blocked range. Resolution
// failures are left for the dial to report.
func (f *Fetcher) checkHost(ctx context.Context, host string) error {
	if f.allowPrivate {
		return nil
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil //nolint:nilerr // the request reports it
	}
	for _, ip := range ips {
		if blockedIP(ip) {
			return fmt.Errorf("%w: %s", ErrPrivateAddress, host)
		}
	}
	return nil
}
