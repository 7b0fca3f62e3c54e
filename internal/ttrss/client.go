// ABOUTME: TT-RSS JSON API client implementing remote.Client
// ABOUTME: Manages the session id, re-logs in once on NOT_LOGGED_IN and maps failures to the remote error taxonomy

package ttrss

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/harper/ttcache/internal/fetch"
	"github.com/harper/ttcache/internal/remote"
)

const (
	errNotLoggedIn  = "NOT_LOGGED_IN"
	errLoginError   = "LOGIN_ERROR"
	errAPIDisabled  = "API_DISABLED"
	errFeedNotFound = "FEED_NOT_FOUND"

	maxResponseSize = 32 * 1024 * 1024
)

// Config holds what the client needs to reach the server.
type Config struct {
	ServerURL string
	Username  string
	Password  string
	Timeout   time.Duration
}

// Client talks to a TT-RSS server.
type Client struct {
	apiURL  string
	baseURL string
	user    string
	pass    string
	http    *http.Client
	icons   *fetch.Fetcher
	logger  *slog.Logger

	mu       sync.Mutex
	sid      string
	apiLevel int
	lastErr  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a client for the server at cfg.ServerURL. The URL may point at
// the installation root or directly at its /api/ endpoint.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("server url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	base := strings.TrimRight(cfg.ServerURL, "/")
	base = strings.TrimSuffix(base, "/api")

	c := &Client{
		apiURL:  base + "/api/",
		baseURL: base,
		user:    cfg.Username,
		pass:    cfg.Password,
		http:    &http.Client{Timeout: timeout},
		icons:   fetch.New(fetch.AllowPrivate(), fetch.WithTimeout(timeout), fetch.WithMaxSize(1<<20)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LastError returns the message of the most recent failed call.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// APILevel returns the level reported at login, 0 before the first login.
func (c *Client) APILevel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiLevel
}

// Login discards any session and logs in again, returning the API level.
func (c *Client) Login(ctx context.Context) (int, error) {
	c.mu.Lock()
	c.sid = ""
	c.mu.Unlock()
	if err := c.login(ctx); err != nil {
		c.setLastError(err)
		return 0, err
	}
	return c.APILevel(), nil
}

func (c *Client) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// call performs op with params and decodes the content into out. An expired
// session is renewed once.
func (c *Client) call(ctx context.Context, op string, params map[string]interface{}, out interface{}) error {
	if err := c.ensureSession(ctx); err != nil {
		c.setLastError(err)
		return err
	}

	err := c.do(ctx, op, params, out, true)
	if errors.Is(err, errSessionExpired) {
		c.mu.Lock()
		c.sid = ""
		c.mu.Unlock()
		if err = c.ensureSession(ctx); err == nil {
			err = c.do(ctx, op, params, out, true)
		}
	}
	if errors.Is(err, errSessionExpired) {
		err = remote.NewError(op, remote.ErrAuth, errNotLoggedIn, nil)
	}
	if err != nil {
		c.setLastError(err)
	}
	return err
}

var errSessionExpired = errors.New("session expired")

func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	sid := c.sid
	c.mu.Unlock()
	if sid != "" {
		return nil
	}
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	var resp loginResponse
	params := map[string]interface{}{"user": c.user, "password": c.pass}
	if err := c.do(ctx, "login", params, &resp, false); err != nil {
		if errors.Is(err, errSessionExpired) {
			return remote.NewError("login", remote.ErrAuth, errNotLoggedIn, nil)
		}
		return err
	}
	if resp.SessionID == "" {
		return remote.NewError("login", remote.ErrMalformed, "missing session id", nil)
	}

	c.mu.Lock()
	c.sid = resp.SessionID
	c.apiLevel = int(resp.APILevel)
	c.mu.Unlock()
	c.logger.Debug("logged in", "api_level", int(resp.APILevel))
	return nil
}

// do sends one request. It never retries.
func (c *Client) do(ctx context.Context, op string, params map[string]interface{}, out interface{}, withSession bool) error {
	body := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		body[k] = v
	}
	body["op"] = op
	if withSession {
		c.mu.Lock()
		body["sid"] = c.sid
		c.mu.Unlock()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return remote.NewError(op, remote.ErrConnectivity, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", fetch.DefaultUserAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return remote.NewError(op, remote.ErrConnectivity, "", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return remote.NewError(op, remote.ErrAuth, resp.Status, nil)
	case resp.StatusCode != http.StatusOK:
		return remote.NewError(op, remote.ErrRemote, resp.Status, nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return remote.NewError(op, remote.ErrConnectivity, "", err)
	}
	c.logger.Debug("api call", "op", op, "bytes", len(data), "duration", time.Since(start))

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return remote.NewError(op, remote.ErrMalformed, "", err)
	}

	if env.Status != 0 {
		var apiErr apiError
		_ = json.Unmarshal(env.Content, &apiErr)
		switch apiErr.Error {
		case errNotLoggedIn:
			return errSessionExpired
		case errLoginError, errAPIDisabled:
			return remote.NewError(op, remote.ErrAuth, apiErr.Error, nil)
		case errFeedNotFound:
			return remote.NewError(op, remote.ErrConflictIgnorable, apiErr.Error, nil)
		case "":
			return remote.NewError(op, remote.ErrRemote, "status "+fmt.Sprint(env.Status), nil)
		default:
			return remote.NewError(op, remote.ErrRemote, apiErr.Error, nil)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Content, out); err != nil {
		return remote.NewError(op, remote.ErrMalformed, "", err)
	}
	return nil
}

// Ensure Client implements remote.Client
var _ remote.Client = (*Client)(nil)
