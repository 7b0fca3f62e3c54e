// ABOUTME: Tests for the TT-RSS client against an httptest server
// ABOUTME: Covers login, session renewal, error mapping and response decoding

package ttrss

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/ttcache/internal/remote"
)

// fakeServer answers API calls from a per-op handler table.
type fakeServer struct {
	mu       sync.Mutex
	calls    []map[string]interface{}
	logins   int
	sid      string
	handlers map[string]func(req map[string]interface{}) (int, interface{})
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{sid: "s1", handlers: map[string]func(map[string]interface{}) (int, interface{}){}}
	srv := httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/" {
		http.NotFound(w, r)
		return
	}
	var req map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fs.mu.Lock()
	fs.calls = append(fs.calls, req)
	op, _ := req["op"].(string)
	if op == "login" {
		fs.logins++
	}
	sid := fs.sid
	h := fs.handlers[op]
	fs.mu.Unlock()

	status, content := 0, interface{}(nil)
	switch {
	case op == "login":
		if req["password"] != "secret" {
			status, content = 1, map[string]string{"error": "LOGIN_ERROR"}
		} else {
			content = map[string]interface{}{"session_id": sid, "api_level": 18}
		}
	case req["sid"] != sid:
		status, content = 1, map[string]string{"error": "NOT_LOGGED_IN"}
	case h != nil:
		status, content = h(req)
	default:
		status, content = 1, map[string]string{"error": "UNKNOWN_METHOD"}
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{"seq": 0, "status": status, "content": content})
}

func (fs *fakeServer) handle(op string, h func(req map[string]interface{}) (int, interface{})) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.handlers[op] = h
}

func (fs *fakeServer) callsTo(op string) []map[string]interface{} {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []map[string]interface{}
	for _, c := range fs.calls {
		if c["op"] == op {
			out = append(out, c)
		}
	}
	return out
}

func newTestClient(t *testing.T, url, password string) *Client {
	t.Helper()
	c, err := New(Config{ServerURL: url, Username: "admin", Password: password})
	require.NoError(t, err)
	return c
}

func TestNew_NormalizesAPIURL(t *testing.T) {
	c, err := New(Config{ServerURL: "https://rss.example.com/tt-rss/api/"})
	require.NoError(t, err)
	assert.Equal(t, "https://rss.example.com/tt-rss/api/", c.apiURL)
	assert.Equal(t, "https://rss.example.com/tt-rss", c.baseURL)

	_, err = New(Config{})
	assert.Error(t, err)
}

func TestClient_LoginAndCategories(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.handle("getCategories", func(map[string]interface{}) (int, interface{}) {
		return 0, []map[string]interface{}{
			{"id": "3", "title": "Tech", "unread": 4},
			{"id": -1, "title": "Special", "unread": 9},
		}
	})

	c := newTestClient(t, srv.URL, "secret")
	cats, err := c.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, 3, cats[0].ID)
	assert.Equal(t, "Tech", cats[0].Title)
	assert.Equal(t, 4, cats[0].Unread)
	assert.Equal(t, 18, c.APILevel())
	assert.Equal(t, 1, fs.logins)
}

func TestClient_Login(t *testing.T) {
	fs, srv := newFakeServer(t)

	level, err := newTestClient(t, srv.URL, "secret").Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 18, level)

	c := newTestClient(t, srv.URL, "nope")
	_, err = c.Login(context.Background())
	assert.ErrorIs(t, err, remote.ErrAuth)
	assert.NotEmpty(t, c.LastError())
	assert.Equal(t, 2, fs.logins)
}

func TestClient_RenewsExpiredSessionOnce(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.handle("getCategories", func(map[string]interface{}) (int, interface{}) {
		return 0, []interface{}{}
	})
	c := newTestClient(t, srv.URL, "secret")

	_, err := c.ListCategories(context.Background())
	require.NoError(t, err)

	fs.mu.Lock()
	fs.sid = "s2"
	fs.mu.Unlock()

	_, err = c.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fs.logins)
}

func TestClient_ErrorMapping(t *testing.T) {
	t.Run("bad password is auth", func(t *testing.T) {
		_, srv := newFakeServer(t)
		c := newTestClient(t, srv.URL, "wrong")
		_, err := c.ListCategories(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, remote.ErrAuth)
		assert.ErrorIs(t, err, remote.ErrRemote)
		assert.False(t, remote.IsRetriable(err))
		assert.Contains(t, c.LastError(), "LOGIN_ERROR")
	})

	t.Run("unknown api error is remote", func(t *testing.T) {
		_, srv := newFakeServer(t)
		c := newTestClient(t, srv.URL, "secret")
		_, err := c.FetchCounters(context.Background())
		assert.ErrorIs(t, err, remote.ErrRemote)
		assert.NotErrorIs(t, err, remote.ErrAuth)
	})

	t.Run("feed not found is ignorable", func(t *testing.T) {
		fs, srv := newFakeServer(t)
		fs.handle("unsubscribeFeed", func(map[string]interface{}) (int, interface{}) {
			return 1, map[string]string{"error": "FEED_NOT_FOUND"}
		})
		c := newTestClient(t, srv.URL, "secret")
		err := c.Unsubscribe(context.Background(), 5)
		assert.ErrorIs(t, err, remote.ErrConflictIgnorable)
	})

	t.Run("http 403 is auth", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()
		c := newTestClient(t, srv.URL, "secret")
		_, err := c.ListCategories(context.Background())
		assert.ErrorIs(t, err, remote.ErrAuth)
	})

	t.Run("garbage body is malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		}))
		defer srv.Close()
		c := newTestClient(t, srv.URL, "secret")
		_, err := c.ListCategories(context.Background())
		assert.ErrorIs(t, err, remote.ErrMalformed)
		assert.ErrorIs(t, err, remote.ErrRemote)
	})

	t.Run("unreachable is connectivity", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c := newTestClient(t, url, "secret")
		_, err := c.ListCategories(context.Background())
		assert.ErrorIs(t, err, remote.ErrConnectivity)
		assert.True(t, remote.IsRetriable(err))
	})
}

func TestClient_ListFeedsGroupsByCategory(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.handle("getFeeds", func(req map[string]interface{}) (int, interface{}) {
		return 0, []map[string]interface{}{
			{"id": 1, "title": "A", "feed_url": "http://a/rss", "cat_id": 3, "unread": 2},
			{"id": 2, "title": "B", "feed_url": "http://b/rss", "cat_id": 3},
			{"id": 7, "title": "C", "feed_url": "http://c/rss", "cat_id": 0},
			{"id": -4, "title": "All articles"},
		}
	})
	c := newTestClient(t, srv.URL, "secret")

	feeds, err := c.ListFeeds(context.Background())
	require.NoError(t, err)
	assert.Len(t, feeds[3], 2)
	assert.Len(t, feeds[0], 1)
	assert.Equal(t, "http://c/rss", feeds[0][0].URL)
	assert.Equal(t, float64(-4), fs.callsTo("getFeeds")[0]["cat_id"])
}

func TestClient_ListVirtualCategories(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.handle("getFeeds", func(req map[string]interface{}) (int, interface{}) {
		switch req["cat_id"] {
		case float64(-1):
			return 0, []map[string]interface{}{
				{"id": -1, "title": "Starred articles", "unread": 1},
				{"id": -3, "title": "Fresh articles", "unread": 5},
				{"id": -6, "title": "Recently read"},
				{"id": 0, "title": "Archived articles"},
			}
		default:
			return 0, []map[string]interface{}{
				{"id": -11, "title": "later", "unread": 2},
				{"id": -12, "title": "work"},
			}
		}
	})
	c := newTestClient(t, srv.URL, "secret")

	cats, err := c.ListVirtualCategories(context.Background())
	require.NoError(t, err)
	var ids []int
	for _, cat := range cats {
		ids = append(ids, cat.ID)
	}
	assert.Equal(t, []int{-1, -3, -11, -12}, ids)
	assert.Equal(t, 5, cats[1].Unread)
}

func TestClient_ListHeadlines(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.handle("getHeadlines", func(req map[string]interface{}) (int, interface{}) {
		return 0, []map[string]interface{}{
			{
				"id": 42, "feed_id": "7", "title": "Hello", "unread": true, "marked": true,
				"updated": 1700000000, "link": "http://x/42", "author": "sam",
				"labels":      []interface{}{[]interface{}{-11, "later", "#fff", "#000"}},
				"attachments": []map[string]string{{"content_url": "http://x/a.mp3"}},
			},
			{"id": 43, "feed_id": 7, "title": "No extras", "content": ""},
		}
	})
	c := newTestClient(t, srv.URL, "secret")

	arts, err := c.ListHeadlines(context.Background(), remote.HeadlineQuery{FeedID: 7, Limit: 1000, View: remote.ViewUnread})
	require.NoError(t, err)
	require.Len(t, arts, 2)

	a := arts[0]
	assert.Equal(t, 42, a.ID)
	assert.Equal(t, 7, a.FeedID)
	assert.True(t, a.Unread)
	assert.True(t, a.Starred)
	assert.Equal(t, int64(1700000000), a.Updated.Unix())
	assert.Nil(t, a.Content)
	require.Len(t, a.Labels, 1)
	assert.Equal(t, "later", a.Labels[0].Caption)
	assert.Equal(t, []string{"http://x/a.mp3"}, a.Attachments)

	b := arts[1]
	require.NotNil(t, b.Content)
	assert.Equal(t, "", *b.Content)
	assert.Nil(t, b.Labels)
	assert.Nil(t, b.Attachments)

	req := fs.callsTo("getHeadlines")[0]
	assert.Equal(t, float64(remote.MaxPageSize), req["limit"])
	assert.Equal(t, "unread", req["view_mode"])
	_, hasSince := req["since_id"]
	assert.False(t, hasSince)
}

func TestClient_FetchCounters(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.handle("getCounters", func(req map[string]interface{}) (int, interface{}) {
		return 0, []map[string]interface{}{
			{"id": "global-unread", "counter": 12},
			{"id": 3, "counter": 4, "kind": "cat"},
			{"id": 7, "counter": 2},
			{"id": -11, "counter": 1},
			{"id": -3, "counter": 6},
			{"id": 0, "counter": 9},
		}
	})
	c := newTestClient(t, srv.URL, "secret")

	counters, err := c.FetchCounters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int]int{3: 4, -11: 1, -3: 6}, counters.Categories)
	assert.Equal(t, map[int]int{7: 2}, counters.Feeds)
	assert.Equal(t, "flc", fs.callsTo("getCounters")[0]["output_mode"])
}

func TestClient_Mutations(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.handle("updateArticle", func(req map[string]interface{}) (int, interface{}) {
		if req["article_ids"] == "999" {
			return 0, map[string]interface{}{"status": "OK", "updated": 0}
		}
		n := len(strings.Split(req["article_ids"].(string), ","))
		return 0, map[string]interface{}{"status": "OK", "updated": n}
	})
	c := newTestClient(t, srv.URL, "secret")
	ctx := context.Background()

	ids := make([]int, 250)
	for i := range ids {
		ids[i] = i + 1
	}
	require.NoError(t, c.MutateReadState(ctx, ids, true))
	reads := fs.callsTo("updateArticle")
	require.Len(t, reads, 3)
	assert.Equal(t, float64(fieldUnread), reads[0]["field"])
	assert.Equal(t, float64(0), reads[0]["mode"])

	require.NoError(t, c.MutateStarState(ctx, 5, true))
	require.NoError(t, c.MutatePublishState(ctx, 5, true, "worth a look"))
	calls := fs.callsTo("updateArticle")
	require.Len(t, calls, 6)
	assert.Equal(t, float64(fieldStarred), calls[3]["field"])
	assert.Equal(t, float64(1), calls[3]["mode"])
	assert.Equal(t, float64(fieldPublished), calls[4]["field"])
	assert.Equal(t, float64(fieldNote), calls[5]["field"])
	assert.Equal(t, "worth a look", calls[5]["data"])

	err := c.MutateStarState(ctx, 999, false)
	assert.True(t, errors.Is(err, remote.ErrConflictIgnorable))
}

func TestClient_Subscribe(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.handle("subscribeToFeed", func(req map[string]interface{}) (int, interface{}) {
		if req["feed_url"] == "http://bad" {
			return 0, map[string]interface{}{"status": map[string]interface{}{"code": 2, "message": "invalid url"}}
		}
		return 0, map[string]interface{}{"status": map[string]interface{}{"code": 1, "feed_id": 31}}
	})
	c := newTestClient(t, srv.URL, "secret")

	id, err := c.Subscribe(context.Background(), "http://good/rss", 3)
	require.NoError(t, err)
	assert.Equal(t, 31, id)

	_, err = c.Subscribe(context.Background(), "http://bad", 0)
	assert.ErrorIs(t, err, remote.ErrRemote)
	assert.Contains(t, c.LastError(), "invalid url")
}

func TestClient_FetchFeedIcon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/feed-icons/7.ico" {
			_, _ = w.Write([]byte("ICON"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, "secret")

	icon, err := c.FetchFeedIcon(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("ICON"), icon)

	_, err = c.FetchFeedIcon(context.Background(), 8)
	assert.Error(t, err)
}
