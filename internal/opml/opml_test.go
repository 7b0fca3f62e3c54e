// ABOUTME: Test suite for OPML parsing, writing and building from the cache
// ABOUTME: Covers folder mapping, nested outlines and round-trip integrity

package opml

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/harper/ttcache/internal/models"
)

func TestParseOPML(t *testing.T) {
	opmlData := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head>
    <title>My Feeds</title>
  </head>
  <body>
    <outline text="Tech News">
      <outline type="rss" text="Hacker News" xmlUrl="https://hnrss.org/frontpage" />
      <outline type="rss" text="TechCrunch" xmlUrl="https://techcrunch.com/feed/" />
    </outline>
    <outline text="Blogs">
      <outline type="rss" text="Joel on Software" xmlUrl="https://www.joelonsoftware.com/feed/" />
    </outline>
    <outline type="rss" text="No Folder Feed" xmlUrl="https://example.com/feed" />
  </body>
</opml>`

	doc, err := Parse(bytes.NewBufferString(opmlData))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if doc.Title != "My Feeds" {
		t.Errorf("Title = %q, want %q", doc.Title, "My Feeds")
	}

	feeds := doc.AllFeeds()
	if len(feeds) != 4 {
		t.Fatalf("AllFeeds() returned %d feeds, want 4", len(feeds))
	}
	if feeds[0].Folder != "Tech News" || feeds[0].Title != "Hacker News" {
		t.Errorf("feeds[0] = %+v", feeds[0])
	}
	if feeds[2].Folder != "Blogs" {
		t.Errorf("feeds[2].Folder = %q, want Blogs", feeds[2].Folder)
	}
	if feeds[3].Folder != "" {
		t.Errorf("root feed has folder %q", feeds[3].Folder)
	}
}

func TestParseNestedFolders(t *testing.T) {
	opmlData := `<opml version="2.0"><head><title>x</title></head><body>
  <outline text="Outer">
    <outline text="Inner">
      <outline type="rss" text="Deep" xmlUrl="https://deep.example.com/feed" />
    </outline>
  </outline>
</body></opml>`

	doc, err := Parse(strings.NewReader(opmlData))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	feeds := doc.AllFeeds()
	if len(feeds) != 1 || feeds[0].Folder != "Inner" {
		t.Errorf("AllFeeds() = %+v, want one feed in Inner", feeds)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse(strings.NewReader("not xml")); err == nil {
		t.Error("expected error for invalid OPML")
	}

	rss := `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title></channel></rss>`
	if _, err := Parse(strings.NewReader(rss)); !errors.Is(err, ErrNotOPML) {
		t.Errorf("Parse(rss) error = %v, want ErrNotOPML", err)
	}
}

func TestWriteDefaults(t *testing.T) {
	var buf bytes.Buffer
	doc := &Document{Title: "bare", Outlines: []Outline{{Text: "Feed", XMLURL: "https://example.com/rss"}}}
	if err := doc.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{`<opml version="2.0">`, "<title>bare</title>", "<dateCreated>", `xmlUrl="https://example.com/rss"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if doc.Version != "" || doc.Created != "" {
		t.Error("Write must not modify the document")
	}
}

func TestFromCache(t *testing.T) {
	cats := []models.Category{
		{ID: -1, Title: "Starred articles"},
		{ID: 0, Title: "Uncategorized"},
		{ID: 3, Title: "Tech"},
		{ID: 4, Title: "Empty"},
	}
	feeds := []models.Feed{
		{ID: 1, CategoryID: 3, Title: "Go Blog", URL: "https://go.dev/blog/feed.atom"},
		{ID: 2, CategoryID: 0, Title: "Loose", URL: "https://loose.example.com/rss"},
		{ID: 3, CategoryID: 9, Title: "Orphan", URL: "https://orphan.example.com/rss"},
	}

	doc := FromCache("ttcache subscriptions", cats, feeds)

	if len(doc.Outlines) != 3 {
		t.Fatalf("expected one folder and two top-level feeds, got %d outlines", len(doc.Outlines))
	}
	if doc.Outlines[0].Text != "Tech" || len(doc.Outlines[0].Children) != 1 {
		t.Errorf("first outline = %+v, want Tech folder with one feed", doc.Outlines[0])
	}
	if doc.Outlines[1].XMLURL != "https://loose.example.com/rss" {
		t.Errorf("second outline = %+v", doc.Outlines[1])
	}
	if doc.Outlines[2].XMLURL != "https://orphan.example.com/rss" {
		t.Errorf("third outline = %+v", doc.Outlines[2])
	}
}

func TestWriteRoundTrip(t *testing.T) {
	cats := []models.Category{{ID: 3, Title: "Tech & Science"}}
	feeds := []models.Feed{
		{ID: 1, CategoryID: 3, Title: "Go Blog", URL: "https://go.dev/blog/feed.atom"},
		{ID: 2, CategoryID: 0, Title: "Loose", URL: "https://loose.example.com/rss?a=1&b=2"},
	}

	var buf bytes.Buffer
	if err := FromCache("export", cats, feeds).Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "<?xml") {
		t.Error("expected XML header")
	}

	doc, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got := doc.AllFeeds()
	if len(got) != 2 {
		t.Fatalf("round trip returned %d feeds, want 2", len(got))
	}
	if got[0].Folder != "Tech & Science" || got[0].URL != "https://go.dev/blog/feed.atom" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].URL != "https://loose.example.com/rss?a=1&b=2" {
		t.Errorf("got[1].URL = %q", got[1].URL)
	}
}
