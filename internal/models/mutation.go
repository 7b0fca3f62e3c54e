// ABOUTME: Pending mutation model for locally applied state changes awaiting push
// ABOUTME: Mutation kinds form a closed set so the push loop can switch exhaustively

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MutationKind is the closed set of article state changes that are queued.
type MutationKind string

const (
	MutationRead    MutationKind = "read"
	MutationStar    MutationKind = "star"
	MutationPublish MutationKind = "publish"
	MutationNote    MutationKind = "note"
)

// MutationKinds lists every kind.
var MutationKinds = []MutationKind{MutationRead, MutationStar, MutationPublish, MutationNote}

// ParseMutationKind accepts the kind name and a few CLI-friendly aliases.
func ParseMutationKind(s string) (MutationKind, error) {
	switch s {
	case "read", "unread":
		return MutationRead, nil
	case "star", "starred", "unstar":
		return MutationStar, nil
	case "publish", "published", "unpublish":
		return MutationPublish, nil
	case "note":
		return MutationNote, nil
	}
	return "", fmt.Errorf("unknown mutation kind %q", s)
}

// PendingMutation is a local change not yet confirmed by the server. At most
// one exists per (ArticleID, Kind); recording a newer one replaces it and
// gets a new ID.
type PendingMutation struct {
	ID        string       `json:"id"`
	ArticleID int          `json:"article_id"`
	Kind      MutationKind `json:"kind"`
	Value     bool         `json:"value"`
	Note      string       `json:"note,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewPendingMutation creates a mutation with a fresh ID stamped at now.
func NewPendingMutation(articleID int, kind MutationKind, value bool, now time.Time) PendingMutation {
	return PendingMutation{
		ID:        uuid.New().String(),
		ArticleID: articleID,
		Kind:      kind,
		Value:     value,
		CreatedAt: now,
	}
}

// NewNoteMutation creates a note mutation. The note text is the value.
func NewNoteMutation(articleID int, note string, now time.Time) PendingMutation {
	m := NewPendingMutation(articleID, MutationNote, note != "", now)
	m.Note = note
	return m
}

// Apply sets the flag the mutation describes on a.
func (m PendingMutation) Apply(a *Article) {
	switch m.Kind {
	case MutationRead:
		a.Unread = !m.Value
	case MutationStar:
		a.Starred = m.Value
	case MutationPublish:
		a.Published = m.Value
	case MutationNote:
		note := m.Note
		a.Note = &note
	}
}
