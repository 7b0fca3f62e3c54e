// ABOUTME: Cutoff calculations for purge and mark-read commands
// ABOUTME: Accepts calendar periods (today, week), dates (2024-03-01) and relative ages (12h, 30d, 2w)

package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date form accepted by ParseCutoff.
const DateLayout = "2006-01-02"

// StartOfDay returns midnight of the day containing t, in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns midnight of the most recent Sunday.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// StartOfMonth returns midnight of the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// ParsePeriod converts a period name to the start of that period relative to
// now. Supported values: "today", "yesterday", "week", "month".
func ParsePeriod(period string, now time.Time) (time.Time, bool) {
	switch period {
	case "today":
		return StartOfDay(now), true
	case "yesterday":
		return StartOfDay(now).AddDate(0, 0, -1), true
	case "week":
		return StartOfWeek(now), true
	case "month":
		return StartOfMonth(now), true
	default:
		return time.Time{}, false
	}
}

// ParseAge parses a relative age. Besides time.ParseDuration units it
// accepts whole days ("30d") and weeks ("2w").
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty age")
	}
	unit := s[len(s)-1]
	if unit == 'd' || unit == 'w' {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		days := n
		if unit == 'w' {
			days = n * 7
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid age %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid age %q", s)
	}
	return d, nil
}

// ParseCutoff resolves a period name, a YYYY-MM-DD date or a relative age
// into an absolute cutoff before now.
func ParseCutoff(s string, now time.Time) (time.Time, error) {
	if t, ok := ParsePeriod(s, now); ok {
		return t, nil
	}
	if t, err := time.ParseInLocation(DateLayout, s, now.Location()); err == nil {
		return t, nil
	}
	age, err := ParseAge(s)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-age), nil
}
