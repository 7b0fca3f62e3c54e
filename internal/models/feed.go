// ABOUTME: Category and feed models mirrored from the TT-RSS server
// ABOUTME: Virtual categories are a fixed set of reserved negative ids, labels sit below -10

package models

// VirtualCategory identifies one of the server's synthetic groupings. The
// membership of an article is derived from its flags and timestamp.
type VirtualCategory int

const (
	// Uncategorized is the real category feeds land in without an explicit one.
	Uncategorized = 0

	VirtualStarred   VirtualCategory = -1
	VirtualPublished VirtualCategory = -2
	VirtualFresh     VirtualCategory = -3
	VirtualAll       VirtualCategory = -4

	// LabelIDMax is the largest id a label category may carry.
	LabelIDMax = -11
)

// VirtualCategories lists the fixed virtual set in display order.
var VirtualCategories = []VirtualCategory{VirtualStarred, VirtualPublished, VirtualFresh, VirtualAll}

// Title returns the default display title used until the server provides one.
func (v VirtualCategory) Title() string {
	switch v {
	case VirtualStarred:
		return "Starred articles"
	case VirtualPublished:
		return "Published articles"
	case VirtualFresh:
		return "Fresh articles"
	case VirtualAll:
		return "All articles"
	}
	return ""
}

// Valid reports whether v is one of the known virtual categories.
func (v VirtualCategory) Valid() bool {
	return v.Title() != ""
}

// AsVirtual converts a raw category or feed id into a VirtualCategory.
func AsVirtual(id int) (VirtualCategory, bool) {
	v := VirtualCategory(id)
	return v, v.Valid()
}

// IsLabel reports whether id addresses a label pseudo-feed.
func IsLabel(id int) bool {
	return id <= LabelIDMax
}

// Category is a server category or one of the virtual groupings.
type Category struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Unread int    `json:"unread"`
}

// IsVirtual reports whether the category is synthetic (virtual or label).
func (c Category) IsVirtual() bool {
	return c.ID < 0
}

// Feed represents a subscribed feed on the server.
type Feed struct {
	ID         int    `json:"id"`
	CategoryID int    `json:"category_id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Unread     int    `json:"unread"`
	Icon       []byte `json:"-"`
}

// HasIcon reports whether icon bytes have been cached for the feed.
func (f Feed) HasIcon() bool {
	return len(f.Icon) > 0
}
