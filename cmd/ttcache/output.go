// ABOUTME: Shared terminal formatting for articles, feeds and refresh warnings
// ABOUTME: Uses fatih/color like the rest of the CLI; color is disabled automatically off a TTY

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/harper/ttcache/internal/config"
	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/remote"
)

var (
	faint  = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
)

// articleLine renders one article as a list row: id, flags, title, date.
func articleLine(a models.Article) string {
	var b strings.Builder
	b.WriteString(faint(fmt.Sprintf("%8d", a.ID)))
	b.WriteString(" ")

	if a.Unread {
		b.WriteString("  ")
	} else {
		b.WriteString("✓ ")
	}
	if a.Starred {
		b.WriteString(yellow("★ "))
	} else {
		b.WriteString("  ")
	}

	title := a.Title
	if title == "" {
		title = "Untitled"
	}
	b.WriteString(title)

	if !a.Updated.IsZero() {
		b.WriteString(" ")
		b.WriteString(faint(a.Updated.Local().Format(config.DateFormatShort)))
	}
	return b.String()
}

// printRefreshWarning explains why cached data is shown. It prints nothing
// for a nil error.
func printRefreshWarning(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, remote.ErrConnectivity):
		color.Yellow("Offline: showing cached data")
	case errors.Is(err, remote.ErrAuth):
		color.Yellow("Login failed, showing cached data (run 'ttcache setup')")
	default:
		color.Yellow("Refresh failed, showing cached data: %v", err)
	}
}

// shortID returns the first 8 chars of a mutation id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
