// ABOUTME: Tests for pending mutation construction and application
// ABOUTME: Verifies kind parsing and that applying a mutation sets the right flag

package models

import (
	"testing"
	"time"
)

func TestParseMutationKind(t *testing.T) {
	cases := map[string]MutationKind{
		"read":      MutationRead,
		"unread":    MutationRead,
		"star":      MutationStar,
		"unstar":    MutationStar,
		"publish":   MutationPublish,
		"published": MutationPublish,
		"note":      MutationNote,
	}
	for in, want := range cases {
		got, err := ParseMutationKind(in)
		if err != nil {
			t.Fatalf("ParseMutationKind(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseMutationKind(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := ParseMutationKind("archive"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestNewPendingMutationIDsDiffer(t *testing.T) {
	now := time.Now()
	a := NewPendingMutation(42, MutationRead, true, now)
	b := NewPendingMutation(42, MutationRead, true, now)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
}

func TestPendingMutationApply(t *testing.T) {
	a := &Article{ID: 42, Unread: true}

	NewPendingMutation(42, MutationRead, true, time.Now()).Apply(a)
	if a.Unread {
		t.Error("read mutation should clear unread")
	}

	NewPendingMutation(42, MutationStar, true, time.Now()).Apply(a)
	NewPendingMutation(42, MutationPublish, true, time.Now()).Apply(a)
	if !a.Starred || !a.Published {
		t.Error("star and publish mutations should set flags")
	}

	NewNoteMutation(42, "check later", time.Now()).Apply(a)
	if a.Note == nil || *a.Note != "check later" {
		t.Errorf("note not applied: %v", a.Note)
	}
}
