// ABOUTME: Tests for feed parsing used by subscribe validation
// ABOUTME: Inline RSS 2.0 and Atom documents plus non-feed input

package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rss20XML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>  Planet Go  </title>
    <link>https://planet.golang.example/</link>
    <description>Aggregated Go writing</description>
    <item>
      <guid>https://planet.golang.example/2006/01/scheduler</guid>
      <title>Inside the scheduler</title>
      <link>https://planet.golang.example/2006/01/scheduler</link>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
    </item>
    <item>
      <title>Escape analysis notes</title>
      <link>https://planet.golang.example/2006/01/escape-analysis</link>
      <pubDate>Tue, 03 Jan 2006 15:04:05 GMT</pubDate>
    </item>
  </channel>
</rss>`

const atomXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Tiny Tiny RSS releases</title>
  <link href="https://tt-rss.example/"/>
  <updated>2006-01-02T15:04:05Z</updated>
  <entry>
    <id>tag:tt-rss.example,2006:release-1</id>
    <title>Release 1.0</title>
    <link href="https://tt-rss.example/releases/1.0"/>
    <updated>2006-01-02T16:04:05Z</updated>
  </entry>
</feed>`

func TestParseRSS(t *testing.T) {
	feed, err := Parse([]byte(rss20XML))
	require.NoError(t, err)

	assert.Equal(t, "Planet Go", feed.Title)
	assert.Equal(t, "rss", feed.Type)
	require.Len(t, feed.Entries, 2)
	assert.Equal(t, "https://planet.golang.example/2006/01/scheduler", feed.Entries[0].GUID)
	assert.Equal(t, "https://planet.golang.example/2006/01/escape-analysis", feed.Entries[1].GUID, "GUID falls back to the link")
	assert.Equal(t, time.Date(2006, 1, 3, 15, 4, 5, 0, time.UTC), feed.Newest.UTC())
}

func TestParseAtomUsesUpdated(t *testing.T) {
	feed, err := Parse([]byte(atomXML))
	require.NoError(t, err)

	assert.Equal(t, "atom", feed.Type)
	require.Len(t, feed.Entries, 1)
	require.NotNil(t, feed.Entries[0].Published)
	assert.Equal(t, time.Date(2006, 1, 2, 16, 4, 5, 0, time.UTC), feed.Entries[0].Published.UTC())
}

func TestParseRejectsNonFeeds(t *testing.T) {
	for _, in := range []string{"", "   ", "<html><body>hello</body></html>"} {
		_, err := Parse([]byte(in))
		assert.ErrorIs(t, err, ErrNotFeed, "input %q", in)
	}
}
