// ABOUTME: OPML reading and writing for exporting and importing subscriptions
// ABOUTME: Builds a document from the cached categories and feeds; categories become folders

package opml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/harper/ttcache/internal/models"
)

// ErrNotOPML is returned when the input parses as XML but is not an OPML document.
var ErrNotOPML = errors.New("not an OPML document")

// Document is an OPML file. Outlines map directly onto <outline> elements.
type Document struct {
	XMLName  xml.Name  `xml:"opml"`
	Version  string    `xml:"version,attr"`
	Title    string    `xml:"head>title"`
	Created  string    `xml:"head>dateCreated,omitempty"`
	Outlines []Outline `xml:"body>outline"`
}

// Outline is a folder (Children set, no XMLURL) or a feed.
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	Children []Outline `xml:"outline,omitempty"`
}

// Feed is a single subscription with the folder it sits in.
type Feed struct {
	URL    string
	Title  string
	Folder string
}

// FromCache builds a document from real categories and feeds. Feeds of
// uncategorized or unknown categories sit at the top level after the folders.
// Virtual categories are skipped.
func FromCache(title string, cats []models.Category, feeds []models.Feed) *Document {
	doc := &Document{Version: "2.0", Title: title}

	byCat := make(map[int][]models.Feed)
	for _, f := range feeds {
		byCat[f.CategoryID] = append(byCat[f.CategoryID], f)
	}

	for _, c := range cats {
		if c.IsVirtual() || c.ID == models.Uncategorized || len(byCat[c.ID]) == 0 {
			continue
		}
		folder := Outline{Text: c.Title, Title: c.Title}
		for _, f := range byCat[c.ID] {
			folder.Children = append(folder.Children, feedOutline(f))
		}
		doc.Outlines = append(doc.Outlines, folder)
		delete(byCat, c.ID)
	}

	// Whatever is left has no exported folder.
	for _, f := range feeds {
		if _, ok := byCat[f.CategoryID]; ok {
			doc.Outlines = append(doc.Outlines, feedOutline(f))
		}
	}
	return doc
}

func feedOutline(f models.Feed) Outline {
	return Outline{Text: f.Title, Title: f.Title, Type: "rss", XMLURL: f.URL}
}

// Parse reads an OPML document.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		var se xml.UnmarshalError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%w: %v", ErrNotOPML, err)
		}
		return nil, fmt.Errorf("decode OPML: %w", err)
	}
	return &doc, nil
}

// AllFeeds flattens the document in order. A feed inside nested folders
// belongs to the innermost one.
func (d *Document) AllFeeds() []Feed {
	var feeds []Feed
	var walk func(o Outline, folder string)
	walk = func(o Outline, folder string) {
		if o.XMLURL != "" {
			feeds = append(feeds, Feed{URL: strings.TrimSpace(o.XMLURL), Title: o.name(), Folder: folder})
		}
		inner := folder
		if o.XMLURL == "" && len(o.Children) > 0 {
			inner = o.Text
		}
		for _, c := range o.Children {
			walk(c, inner)
		}
	}
	for _, o := range d.Outlines {
		walk(o, "")
	}
	return feeds
}

func (o Outline) name() string {
	if o.Title != "" {
		return o.Title
	}
	return o.Text
}

// Write encodes the document with an XML declaration. A missing version
// defaults to 2.0 and a missing creation date to now.
func (d *Document) Write(w io.Writer) error {
	out := *d
	if out.Version == "" {
		out.Version = "2.0"
	}
	if out.Created == "" {
		out.Created = time.Now().UTC().Format(time.RFC1123Z)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write OPML: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode OPML: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
